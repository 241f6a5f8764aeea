package stats

// Table describes one vertical partition table. Optional fields are nil when
// absent from the encoded message.
type Table struct {
	Name             string
	Size             *int32
	IsComplex        *bool
	DistinctSubjects *int32
}

// Graph is the root of the statistics artifact.
type Graph struct {
	Name             *string
	Size             *int32
	DistinctSubjects *int32
	Tables           []Table
}

func (t *Table) GetSize() int32 {
	if t == nil || t.Size == nil {
		return 0
	}
	return *t.Size
}

func (t *Table) GetIsComplex() bool {
	if t == nil || t.IsComplex == nil {
		return false
	}
	return *t.IsComplex
}

func (t *Table) GetDistinctSubjects() int32 {
	if t == nil || t.DistinctSubjects == nil {
		return 0
	}
	return *t.DistinctSubjects
}

func (g *Graph) GetName() string {
	if g == nil || g.Name == nil {
		return ""
	}
	return *g.Name
}

func (g *Graph) GetSize() int32 {
	if g == nil || g.Size == nil {
		return 0
	}
	return *g.Size
}

func (g *Graph) GetDistinctSubjects() int32 {
	if g == nil || g.DistinctSubjects == nil {
		return 0
	}
	return *g.DistinctSubjects
}

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
