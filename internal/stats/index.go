package stats

import (
	"fmt"
	"os"
)

// Index answers per-table lookups against a decoded graph. Lookups of
// unknown tables return -1, the convention query planners rely on.
type Index struct {
	graph  *Graph
	tables map[string]*Table
}

func NewIndex(g *Graph) *Index {
	idx := &Index{graph: g, tables: make(map[string]*Table)}
	if g == nil {
		return idx
	}

	for i := range g.Tables {
		idx.tables[g.Tables[i].Name] = &g.Tables[i]
	}

	return idx
}

// ReadFile loads and decodes a statistics artifact from the local disk.
func ReadFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stats %s: %w", path, err)
	}

	g, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode stats %s: %w", path, err)
	}

	return NewIndex(g), nil
}

func (idx *Index) Graph() *Graph {
	return idx.graph
}

// Names returns table names in artifact order.
func (idx *Index) Names() []string {
	if idx.graph == nil {
		return nil
	}

	names := make([]string, 0, len(idx.graph.Tables))
	for _, t := range idx.graph.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Table returns the entry for name, or nil.
func (idx *Index) Table(name string) *Table {
	return idx.tables[name]
}

func (idx *Index) TableSize(name string) int32 {
	t, ok := idx.tables[name]
	if !ok {
		return -1
	}
	return t.GetSize()
}

func (idx *Index) DistinctSubjects(name string) int32 {
	t, ok := idx.tables[name]
	if !ok {
		return -1
	}
	return t.GetDistinctSubjects()
}

// Fanout is the average number of rows per distinct subject, or -1 when the
// table is unknown or has no subjects recorded.
func (idx *Index) Fanout(name string) float64 {
	size := idx.TableSize(name)
	distinct := idx.DistinctSubjects(name)
	if size < 0 || distinct <= 0 {
		return -1
	}
	return float64(size) / float64(distinct)
}
