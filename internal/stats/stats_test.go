package stats

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func roundTrip(t *testing.T, g *Graph) *Graph {
	t.Helper()

	data, err := Marshal(g)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	return got
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		graph *Graph
	}{
		{"empty", &Graph{}},
		{"one table", &Graph{Tables: []Table{
			{Name: "knows", Size: Int32(2), DistinctSubjects: Int32(1)},
		}}},
		{"many tables", &Graph{
			Name:             String("lubm"),
			Size:             Int32(3),
			DistinctSubjects: Int32(2),
			Tables: []Table{
				{Name: "knows", Size: Int32(2), DistinctSubjects: Int32(1)},
				{Name: "likes", Size: Int32(1), IsComplex: Bool(true), DistinctSubjects: Int32(1)},
				{Name: "http://x.org/p#1"},
				{Name: "", Size: Int32(0)},
			},
		}},
		{"negative values", &Graph{Size: Int32(-1), Tables: []Table{
			{Name: "neg", Size: Int32(math.MinInt32), IsComplex: Bool(false)},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.graph, roundTrip(t, tt.graph))
		})
	}
}

func TestWireLayout(t *testing.T) {
	g := &Graph{Tables: []Table{{Name: "a", Size: Int32(2)}}}

	data, err := Marshal(g)
	require.NoError(t, err)

	// tag 4 (bytes), length 5, then tag 1 "a" and tag 2 varint 2
	assert.Equal(t, []byte{0x22, 0x05, 0x0a, 0x01, 'a', 0x10, 0x02}, data)
}

func TestAbsentOptionalFieldsStayNil(t *testing.T) {
	got := roundTrip(t, &Graph{Tables: []Table{{Name: "bare"}}})

	require.Len(t, got.Tables, 1)
	tbl := got.Tables[0]
	assert.Nil(t, tbl.Size)
	assert.Nil(t, tbl.IsComplex)
	assert.Nil(t, tbl.DistinctSubjects)
	assert.Equal(t, int32(0), tbl.GetSize())
	assert.Nil(t, got.Name)
	assert.Equal(t, "", got.GetName())
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	var table []byte
	table = protowire.AppendTag(table, 1, protowire.BytesType)
	table = protowire.AppendString(table, "knows")
	table = protowire.AppendTag(table, 9, protowire.Fixed64Type)
	table = protowire.AppendFixed64(table, 42)

	var b []byte
	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, table)

	g, err := Unmarshal(b)
	require.NoError(t, err)
	require.Len(t, g.Tables, 1)
	assert.Equal(t, "knows", g.Tables[0].Name)
}

func TestUnmarshalRequiresTableName(t *testing.T) {
	var table []byte
	table = protowire.AppendTag(table, 2, protowire.VarintType)
	table = protowire.AppendVarint(table, 5)

	var b []byte
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, table)

	_, err := Unmarshal(b)
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestUnmarshalTruncated(t *testing.T) {
	data, err := Marshal(&Graph{Tables: []Table{{Name: "knows", Size: Int32(300)}}})
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-1])
	assert.Error(t, err)
}

type fakeCounter struct {
	rows     map[string]int64
	distinct map[string]int64
	err      error
}

func (f fakeCounter) CountRows(_ context.Context, table string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rows[table], nil
}

func (f fakeCounter) CountDistinct(_ context.Context, table, column string) (int64, error) {
	if column != SubjectColumn {
		return 0, errors.New("unexpected column " + column)
	}
	return f.distinct[table], nil
}

func TestCollect(t *testing.T) {
	c := fakeCounter{
		rows:     map[string]int64{"VP_knows": 2, "VP_huge": math.MaxInt32 + 10},
		distinct: map[string]int64{"VP_knows": 1, "VP_huge": 7},
	}

	tbl, err := Collect(context.Background(), c, "knows", "VP_knows")
	require.NoError(t, err)
	assert.Equal(t, Table{Name: "knows", Size: Int32(2), DistinctSubjects: Int32(1)}, tbl)

	tbl, err = Collect(context.Background(), c, "huge", "VP_huge")
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), tbl.GetSize())

	boom := errors.New("scan failed")
	_, err = Collect(context.Background(), fakeCounter{err: boom}, "knows", "VP_knows")
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "count rows VP_knows")
}

func TestAccumulatorDoesNotMutate(t *testing.T) {
	var empty Accumulator
	one := empty.Add(Table{Name: "a", Size: Int32(1)})
	two := one.Add(Table{Name: "b", Size: Int32(2)})
	other := one.Add(Table{Name: "c", Size: Int32(5)})

	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 1, one.Len())
	assert.Equal(t, "b", two.Graph().Tables[1].Name)
	assert.Equal(t, "c", other.Graph().Tables[1].Name)
}

func TestAccumulatorGraph(t *testing.T) {
	g := Accumulator{}.
		Add(Table{Name: "knows", Size: Int32(2), DistinctSubjects: Int32(1)}).
		Add(Table{Name: "likes", Size: Int32(1), DistinctSubjects: Int32(1)}).
		Graph()

	assert.Nil(t, g.Name)
	assert.Nil(t, g.Size)
	assert.Nil(t, g.DistinctSubjects)
	assert.Len(t, g.Tables, 2)

	assert.Empty(t, Accumulator{}.Graph().Tables)
}

func TestIndex(t *testing.T) {
	idx := NewIndex(&Graph{Tables: []Table{
		{Name: "knows", Size: Int32(6), DistinctSubjects: Int32(2)},
		{Name: "empty", Size: Int32(0), DistinctSubjects: Int32(0)},
	}})

	assert.Equal(t, []string{"knows", "empty"}, idx.Names())
	assert.Equal(t, int32(6), idx.TableSize("knows"))
	assert.Equal(t, int32(2), idx.DistinctSubjects("knows"))
	assert.Equal(t, 3.0, idx.Fanout("knows"))
	assert.Equal(t, -1.0, idx.Fanout("empty"))

	assert.Equal(t, int32(-1), idx.TableSize("missing"))
	assert.Equal(t, int32(-1), idx.DistinctSubjects("missing"))
	assert.Nil(t, idx.Table("missing"))
	assert.NotNil(t, idx.Table("knows"))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.stats")
	data, err := Marshal(&Graph{Tables: []Table{{Name: "knows", Size: Int32(2)}}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	idx, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int32(2), idx.TableSize("knows"))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
