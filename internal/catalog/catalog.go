package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bowerhall/vpload/internal/triples"
)

var (
	// ErrUnavailable is returned when a namespace or relation an operation
	// depends on does not exist.
	ErrUnavailable = errors.New("catalog unavailable")

	// ErrTableExists is returned when a partition table already exists and
	// the existing-table policy forbids replacing it.
	ErrTableExists = errors.New("table already exists")

	// ErrSourceChanged is returned when the triple relation was registered
	// from another location and the existing-table policy forbids replacing it.
	ErrSourceChanged = errors.New("triple table registered from another location")
)

// TripleTable is the name of the raw triple relation.
const TripleTable = "tripletable"

// ExistingPolicy decides what happens to a partition table left over from a
// previous run.
type ExistingPolicy int

const (
	ExistingFail ExistingPolicy = iota
	ExistingOverwrite
)

func (p ExistingPolicy) String() string {
	switch p {
	case ExistingFail:
		return "fail"
	case ExistingOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("ExistingPolicy(%d)", int(p))
	}
}

// ParseExistingPolicy parses "fail" or "overwrite". The empty string is fail.
func ParseExistingPolicy(s string) (ExistingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return ExistingFail, nil
	case "overwrite":
		return ExistingOverwrite, nil
	default:
		return ExistingFail, fmt.Errorf("unknown existing table policy: %s", s)
	}
}

// Catalog is the relational capability the loader drives. Every method
// works on the namespace selected by UseNamespace.
type Catalog interface {
	EnsureNamespace(ctx context.Context, name string) error
	UseNamespace(ctx context.Context, name string) error

	// RegisterTriples registers location as the triple relation. A relation
	// already registered from the same location is kept under ExistingFail;
	// ExistingOverwrite reloads it and drops the partitions built from the
	// old content. It reports whether the relation was (re)loaded.
	RegisterTriples(ctx context.Context, location string, src triples.Source, policy ExistingPolicy) (bool, error)

	DistinctPredicates(ctx context.Context) ([]string, error)
	CreatePartition(ctx context.Context, table, predicate string, policy ExistingPolicy) error

	CountRows(ctx context.Context, table string) (int64, error)
	CountDistinct(ctx context.Context, table, column string) (int64, error)
}
