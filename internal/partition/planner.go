package partition

import (
	"context"
	"fmt"

	"github.com/bowerhall/vpload/internal/logger"
)

// PredicateLister runs the distinct projection over the predicate column.
type PredicateLister interface {
	DistinctPredicates(ctx context.Context) ([]string, error)
}

// Planner discovers which partitions a load has to create.
type Planner struct {
	catalog PredicateLister
}

func NewPlanner(c PredicateLister) *Planner {
	return &Planner{catalog: c}
}

// Discover returns the distinct predicates of the registered triple
// relation. Nothing is cached, every call reads the relation again.
func (p *Planner) Discover(ctx context.Context) ([]string, error) {
	predicates, err := p.catalog.DistinctPredicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover predicates: %w", err)
	}

	logger.Info("predicates discovered", "count", len(predicates))
	return predicates, nil
}
