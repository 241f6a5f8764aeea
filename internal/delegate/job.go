package delegate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bowerhall/vpload/internal/logger"
)

// JobError reports a delegated job that failed to start, exited non-zero or
// wrote to stderr. The captured output is kept for diagnosis.
type JobError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *JobError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("delegated job %q: %v", e.Command, e.Err)
	case e.ExitCode != 0:
		return fmt.Sprintf("delegated job %q exited with code %d\n%s", e.Command, e.ExitCode, e.Stderr)
	default:
		return fmt.Sprintf("delegated job %q wrote to stderr\n%s", e.Command, e.Stderr)
	}
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// PropertyTableJob runs the external property table loader jar.
type PropertyTableJob struct {
	Runner Runner
	Java   string
	Jar    string
	Stdout io.Writer
}

// Command builds the invocation for the given input and output database.
func (j *PropertyTableJob) Command(input, database string) Command {
	java := j.Java
	if java == "" {
		java = "java"
	}

	return Command{
		Name: java,
		Args: []string{"-jar", j.Jar, input, database},
	}
}

// Run executes the loader. Its stdout is copied verbatim to j.Stdout; a
// non-zero exit code or any stderr output fails the job.
func (j *PropertyTableJob) Run(ctx context.Context, input, database string) error {
	cmd := j.Command(input, database)

	runner := j.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	logger.Info("running property table loader", "command", cmd.String())

	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return &JobError{Command: cmd.String(), Err: err}
	}

	if j.Stdout != nil && res.Stdout != "" {
		if _, err := io.WriteString(j.Stdout, res.Stdout); err != nil {
			return &JobError{Command: cmd.String(), Stdout: res.Stdout, Stderr: res.Stderr, Err: fmt.Errorf("copy stdout: %w", err)}
		}
	}

	if res.ExitCode != 0 || strings.TrimSpace(res.Stderr) != "" {
		return &JobError{
			Command:  cmd.String(),
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}

	logger.Info("property table loader finished", "duration", res.Duration)
	return nil
}
