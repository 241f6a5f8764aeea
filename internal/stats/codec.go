package stats

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers of the Table and Graph messages
const (
	tableName             protowire.Number = 1
	tableSize             protowire.Number = 2
	tableIsComplex        protowire.Number = 3
	tableDistinctSubjects protowire.Number = 4

	graphName             protowire.Number = 1
	graphSize             protowire.Number = 2
	graphDistinctSubjects protowire.Number = 3
	graphTables           protowire.Number = 4
)

// ErrMissingName is returned when a Table message lacks its required name.
var ErrMissingName = errors.New("stats: table without required name")

// Marshal encodes g in the protobuf wire format of the Graph message.
func Marshal(g *Graph) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	var b []byte

	if g.Name != nil {
		b = protowire.AppendTag(b, graphName, protowire.BytesType)
		b = protowire.AppendString(b, *g.Name)
	}
	if g.Size != nil {
		b = appendInt32(b, graphSize, *g.Size)
	}
	if g.DistinctSubjects != nil {
		b = appendInt32(b, graphDistinctSubjects, *g.DistinctSubjects)
	}

	for i := range g.Tables {
		b = protowire.AppendTag(b, graphTables, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalTable(&g.Tables[i]))
	}

	return b, nil
}

func marshalTable(t *Table) []byte {
	var b []byte

	b = protowire.AppendTag(b, tableName, protowire.BytesType)
	b = protowire.AppendString(b, t.Name)

	if t.Size != nil {
		b = appendInt32(b, tableSize, *t.Size)
	}
	if t.IsComplex != nil {
		b = protowire.AppendTag(b, tableIsComplex, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*t.IsComplex))
	}
	if t.DistinctSubjects != nil {
		b = appendInt32(b, tableDistinctSubjects, *t.DistinctSubjects)
	}

	return b
}

// int32 fields are sign extended to 64 bits, as protoc does.
func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

// Unmarshal decodes a Graph message. Unknown fields are skipped.
func Unmarshal(b []byte) (*Graph, error) {
	g := &Graph{}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("stats: graph tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == graphName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("stats: graph name: %w", protowire.ParseError(n))
			}
			g.Name = String(v)
			b = b[n:]

		case num == graphSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("stats: graph size: %w", protowire.ParseError(n))
			}
			g.Size = Int32(int32(v))
			b = b[n:]

		case num == graphDistinctSubjects && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("stats: graph distinct subjects: %w", protowire.ParseError(n))
			}
			g.DistinctSubjects = Int32(int32(v))
			b = b[n:]

		case num == graphTables && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("stats: graph table: %w", protowire.ParseError(n))
			}
			t, err := unmarshalTable(v)
			if err != nil {
				return nil, err
			}
			g.Tables = append(g.Tables, t)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("stats: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	return g, nil
}

func unmarshalTable(b []byte) (Table, error) {
	var t Table
	hasName := false

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Table{}, fmt.Errorf("stats: table tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == tableName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Table{}, fmt.Errorf("stats: table name: %w", protowire.ParseError(n))
			}
			t.Name = v
			hasName = true
			b = b[n:]

		case num == tableSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Table{}, fmt.Errorf("stats: table size: %w", protowire.ParseError(n))
			}
			t.Size = Int32(int32(v))
			b = b[n:]

		case num == tableIsComplex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Table{}, fmt.Errorf("stats: table is complex: %w", protowire.ParseError(n))
			}
			t.IsComplex = Bool(protowire.DecodeBool(v))
			b = b[n:]

		case num == tableDistinctSubjects && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Table{}, fmt.Errorf("stats: table distinct subjects: %w", protowire.ParseError(n))
			}
			t.DistinctSubjects = Int32(int32(v))
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Table{}, fmt.Errorf("stats: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !hasName {
		return Table{}, ErrMissingName
	}

	return t, nil
}
