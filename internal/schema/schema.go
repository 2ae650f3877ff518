// Package schema holds the shapes this adapter consumes from the
// logical layer above it: StorageDescription, HKey, RowData, and the
// Table/Group/Index descriptors. The SQL parser, planner and physical
// operator assembler that produce these shapes are out of scope for
// this module; schema only defines what they hand us.
package schema

import "github.com/flatkv/sqladapter/internal/tuple"

// StorageDescription binds a logical object (table, group, index,
// sequence) to a packed byte prefix obtained from the directory layer.
// It is immutable once resolved for a schema generation: every key this
// adapter writes for the object starts with Prefix.
type StorageDescription struct {
	Path   []string
	Prefix []byte
}

// RowData is an opaque, byte-encoded row payload. The adapter never
// interprets it except through a FieldDef when building index keys.
type RowData []byte

// FieldDef extracts one logical column's value from a row, for use when
// building an index key. ok is false when the field is SQL NULL.
type FieldDef interface {
	Extract(row RowData) (seg tuple.Segment, ok bool)
}

// HKey is a Key whose segments spell out the path from a group's root to
// a row: [RootOrdinal, rootPK..., ChildOrdinal, childPK...]. It is the
// row's primary physical identifier within its group and defines the
// group's scan order.
type HKey struct {
	Key tuple.Key
}

// NewHKey builds an HKey from already-ordered segments.
func NewHKey(segments ...tuple.Segment) HKey {
	return HKey{Key: tuple.New(segments...)}
}

// Group identifies the physical colocation space a set of tables share.
type Group struct {
	Desc StorageDescription
}

// Table is one table's storage location within its group.
type Table struct {
	Desc  StorageDescription
	Group Group
}

// JoinType selects which side of a group index anchors participating
// rows: a LEFT join anchors on the left table's presence, RIGHT on the
// right table's.
type JoinType int

const (
	JoinTypeNone JoinType = iota
	JoinTypeLeft
	JoinTypeRight
)

// IndexColumn is one key column of an index, in declared order.
type IndexColumn struct {
	Field FieldDef
}

// GroupIndexRowComposition projects index-row positions onto positions
// in the flattened group row a group index spans.
type GroupIndexRowComposition struct {
	// Positions[i] is the flattened-group-row position index i of the
	// index row corresponds to.
	Positions []int
}

// Index describes a table index or a group index.
type Index struct {
	Name string
	Desc StorageDescription

	Columns                  []IndexColumn
	Unique                   bool
	UniqueAndMayContainNulls bool

	IsGroupIndex bool
	JoinType     JoinType
	Composition  GroupIndexRowComposition

	// CountDesc and NullDesc are only populated for group indexes and
	// uniqueAndMayContainNulls indexes respectively.
	CountDesc StorageDescription
	NullDesc  StorageDescription
}

// KeyColumnCount is len(Columns), the logical depth a key should be
// truncated to before a uniqueness check (ignoring any trailing
// null-separator segment).
func (ix Index) KeyColumnCount() int { return len(ix.Columns) }

// Sequence is a logical counter with a cache batch width and a mapping
// from raw ticks to user-visible values.
type Sequence struct {
	Desc      StorageDescription
	CacheSize int64
	// RealValueForRawNumber maps a raw tick to the value callers see.
	// Defaults to identity when nil.
	RealValueForRawNumber func(raw int64) int64
}

func (s Sequence) RealValue(raw int64) int64 {
	if s.RealValueForRawNumber == nil {
		return raw
	}
	return s.RealValueForRawNumber(raw)
}

// UniqueKey identifies a sequence within the process-wide cache map.
func (s Sequence) UniqueKey() string {
	return string(s.Desc.Prefix)
}
