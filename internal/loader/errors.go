package loader

import (
	"errors"
	"fmt"

	"github.com/bowerhall/vpload/internal/catalog"
)

var (
	// ErrNotRestartable is returned by Run on an orchestrator that already ran.
	ErrNotRestartable = errors.New("orchestrator already ran, start a new one")

	ErrCatalogUnavailable = catalog.ErrUnavailable
)

// StatsIOError reports a statistics artifact that could not be written.
// Partition tables created before the failure are kept.
type StatsIOError struct {
	Location string
	Err      error
}

func (e *StatsIOError) Error() string {
	return fmt.Sprintf("write statistics to %s: %v", e.Location, e.Err)
}

func (e *StatsIOError) Unwrap() error {
	return e.Err
}
