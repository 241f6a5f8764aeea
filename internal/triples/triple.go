package triples

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when an input location does not exist.
var ErrNotFound = errors.New("input location not found")

const maxLineSize = 4 * 1024 * 1024

// Triple is one subject-predicate-object record of the input dataset.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Source streams the triples stored at a location.
type Source interface {
	Scan(ctx context.Context, location string, fn func(Triple) error) error
}

// ParseLine splits a tab separated record into a triple. Fields past the
// third stay part of the object.
func ParseLine(line string) (Triple, error) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) < 3 {
		return Triple{}, fmt.Errorf("expected 3 tab separated fields, got %d", len(fields))
	}

	return Triple{Subject: fields[0], Predicate: fields[1], Object: fields[2]}, nil
}

// Decode reads newline separated records from r and calls fn for each triple.
// name is only used in error messages.
func Decode(ctx context.Context, r io.Reader, name string, fn func(Triple) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		t, err := ParseLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}

		if err := fn(t); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	return nil
}
