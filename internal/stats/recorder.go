package stats

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/bowerhall/vpload/internal/logger"
)

// SubjectColumn is the column distinct subjects are counted on.
const SubjectColumn = "s"

// Counter runs the counting scans statistics are made of.
type Counter interface {
	CountRows(ctx context.Context, table string) (int64, error)
	CountDistinct(ctx context.Context, table, column string) (int64, error)
}

// Collect scans a materialized partition table and describes it under name.
func Collect(ctx context.Context, c Counter, name, table string) (Table, error) {
	size, err := c.CountRows(ctx, table)
	if err != nil {
		return Table{}, fmt.Errorf("count rows %s: %w", table, err)
	}

	distinct, err := c.CountDistinct(ctx, table, SubjectColumn)
	if err != nil {
		return Table{}, fmt.Errorf("count distinct subjects %s: %w", table, err)
	}

	return Table{
		Name:             name,
		Size:             Int32(clamp(table, "size", size)),
		DistinctSubjects: Int32(clamp(table, "distinct_subjects", distinct)),
	}, nil
}

func clamp(table, field string, v int64) int32 {
	if v > math.MaxInt32 {
		logger.Warn("statistic exceeds int32, clamped", "table", table, "field", field, "value", v)
		return math.MaxInt32
	}
	return int32(v)
}

// Accumulator folds table statistics into a graph. The zero value is empty.
// Add never mutates its receiver, so an accumulator can be shared freely.
type Accumulator struct {
	tables []Table
}

// Add returns a new accumulator holding t after the tables already recorded.
func (a Accumulator) Add(t Table) Accumulator {
	return Accumulator{tables: append(slices.Clip(a.tables), t)}
}

// Len returns the number of recorded tables.
func (a Accumulator) Len() int {
	return len(a.tables)
}

// Graph finalizes the accumulator. Only the tables are set; the graph level
// fields stay absent.
func (a Accumulator) Graph() *Graph {
	return &Graph{Tables: slices.Clone(a.tables)}
}
