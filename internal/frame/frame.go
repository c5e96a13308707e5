// Package frame provides the small in-memory table used across the toolkit:
// a row index with named levels and a set of ordered, named columns.
//
// Tables are values from the caller's point of view. Operations that derive
// a new table share column slices with their input and never write to them.
package frame

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Index is an ordered list of row keys with named levels.
type Index struct {
	names []string
	keys  [][]any
	pos   map[string]int
}

// NewIndex builds an index. Every key must have one value per level.
func NewIndex(names []string, keys [][]any) (*Index, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("frame: index needs at least one level")
	}
	for i, k := range keys {
		if len(k) != len(names) {
			return nil, fmt.Errorf("frame: key %d has %d values, index has %d levels", i, len(k), len(names))
		}
	}
	idx := &Index{
		names: slices.Clone(names),
		keys:  keys,
		pos:   make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		enc := encodeKey(k)
		if _, seen := idx.pos[enc]; !seen {
			idx.pos[enc] = i
		}
	}
	return idx, nil
}

// MustIndex is NewIndex for literals known to be well formed.
func MustIndex(names []string, keys ...[]any) *Index {
	idx, err := NewIndex(names, keys)
	if err != nil {
		panic(err)
	}
	return idx
}

// Names returns the level names.
func (x *Index) Names() []string { return slices.Clone(x.names) }

// Len returns the number of rows.
func (x *Index) Len() int { return len(x.keys) }

// Key returns the key of row i.
func (x *Index) Key(i int) []any { return x.keys[i] }

// Lookup returns the first row carrying key.
func (x *Index) Lookup(key []any) (int, bool) {
	i, ok := x.pos[encodeKey(key)]
	return i, ok
}

// SameLevels reports whether both indexes name the same levels in the same order.
func (x *Index) SameLevels(other *Index) bool {
	return slices.Equal(x.names, other.names)
}

// Equal reports whether both indexes have the same levels and keys in order.
func (x *Index) Equal(other *Index) bool {
	if x == other {
		return true
	}
	if !x.SameLevels(other) || x.Len() != other.Len() {
		return false
	}
	for i := range x.keys {
		if encodeKey(x.keys[i]) != encodeKey(other.keys[i]) {
			return false
		}
	}
	return true
}

// encodeKey renders a key with its dynamic types so 1 and "1" stay distinct.
// Integers of every width and signedness encode alike, so int(1) from a
// literal matches int64(1) read back from a file.
func encodeKey(k []any) string {
	var b strings.Builder
	for i, v := range k {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fmt.Fprintf(&b, "int:%d", rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			fmt.Fprintf(&b, "int:%d", rv.Uint())
		default:
			fmt.Fprintf(&b, "%T:%v", v, v)
		}
	}
	return b.String()
}

// Series is one named column aligned to an index. A nil value is missing.
type Series struct {
	Name   string
	Index  *Index
	Values []any
}

// Equal reports whether two series have the same name, index and values.
func (s *Series) Equal(other *Series) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Name == other.Name && s.Index.Equal(other.Index) && valuesEqual(s.Values, other.Values)
}

// AlignTo left-joins the series onto target: each target row takes the value
// of the first matching row here, or nil when there is none.
func (s *Series) AlignTo(target *Index) (*Series, error) {
	if !s.Index.SameLevels(target) {
		return nil, &LevelError{Want: target.Names(), Got: s.Index.Names()}
	}
	if s.Index.Equal(target) {
		return &Series{Name: s.Name, Index: target, Values: s.Values}, nil
	}
	out := make([]any, target.Len())
	for i := 0; i < target.Len(); i++ {
		if j, ok := s.Index.Lookup(target.Key(i)); ok {
			out[i] = s.Values[j]
		}
	}
	return &Series{Name: s.Name, Index: target, Values: out}, nil
}

// LevelError reports an index layout mismatch.
type LevelError struct {
	Want []string
	Got  []string
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("frame: index levels %v do not match %v", e.Got, e.Want)
}

// Table is an index plus ordered named columns.
type Table struct {
	index *Index
	order []string
	cols  map[string][]any
}

// Column is a name/values pair used to build tables.
type Column struct {
	Name   string
	Values []any
}

// New builds a table. Column lengths must match the index and names must be unique.
func New(index *Index, columns ...Column) (*Table, error) {
	if index == nil {
		return nil, fmt.Errorf("frame: nil index")
	}
	t := &Table{index: index, cols: make(map[string][]any, len(columns))}
	for _, c := range columns {
		if len(c.Values) != index.Len() {
			return nil, fmt.Errorf("frame: column %q has %d values, index has %d rows", c.Name, len(c.Values), index.Len())
		}
		if _, dup := t.cols[c.Name]; dup {
			return nil, fmt.Errorf("frame: duplicate column %q", c.Name)
		}
		t.order = append(t.order, c.Name)
		t.cols[c.Name] = c.Values
	}
	return t, nil
}

// MustNew is New for literals known to be well formed.
func MustNew(index *Index, columns ...Column) *Table {
	t, err := New(index, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Index returns the row index.
func (t *Table) Index() *Index { return t.index }

// Len returns the number of rows.
func (t *Table) Len() int { return t.index.Len() }

// Columns returns the column names in order.
func (t *Table) Columns() []string { return slices.Clone(t.order) }

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column returns the raw values of a column.
func (t *Table) Column(name string) ([]any, bool) {
	v, ok := t.cols[name]
	return v, ok
}

// Series returns a column as a series sharing the table's index.
func (t *Table) Series(name string) (*Series, bool) {
	v, ok := t.cols[name]
	if !ok {
		return nil, false
	}
	return &Series{Name: name, Index: t.index, Values: v}, true
}

// WithColumn returns a new table with the series added, or replaced in place
// when a column of that name exists. The series must share the table's index.
func (t *Table) WithColumn(s *Series) (*Table, error) {
	if !s.Index.Equal(t.index) {
		return nil, fmt.Errorf("frame: series %q is not aligned to the table index", s.Name)
	}
	out := &Table{index: t.index, order: slices.Clone(t.order), cols: make(map[string][]any, len(t.cols)+1)}
	for k, v := range t.cols {
		out.cols[k] = v
	}
	if _, ok := out.cols[s.Name]; !ok {
		out.order = append(out.order, s.Name)
	}
	out.cols[s.Name] = s.Values
	return out, nil
}

// Select returns a table restricted to the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		v, ok := t.cols[n]
		if !ok {
			return nil, fmt.Errorf("frame: no column %q", n)
		}
		cols = append(cols, Column{Name: n, Values: v})
	}
	return New(t.index, cols...)
}

// Filter returns the rows for which keep returns true. Row order is preserved.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	keys := make([][]any, len(rows))
	for j, i := range rows {
		keys[j] = t.index.keys[i]
	}
	idx, _ := NewIndex(t.index.names, keys)
	out := &Table{index: idx, order: slices.Clone(t.order), cols: make(map[string][]any, len(t.cols))}
	for name, vals := range t.cols {
		nv := make([]any, len(rows))
		for j, i := range rows {
			nv[j] = vals[i]
		}
		out.cols[name] = nv
	}
	return out
}

// Equal reports whether two tables have equal indexes and identical columns.
func (t *Table) Equal(other *Table) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if !t.index.Equal(other.index) || !slices.Equal(t.order, other.order) {
		return false
	}
	for _, n := range t.order {
		if !valuesEqual(t.cols[n], other.cols[n]) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
