package strata

// TableID names a table and selects its physical backing store: root
// tables write through the caller's transaction handle, non-root tables
// through the session temp store.
type TableID struct {
	ID     uint32
	InRoot bool
}

// ColumnSpec describes one declared column. Type checking of declared
// schemas happens in the DDL layer; the execution core only needs names
// and order.
type ColumnSpec struct {
	Name string
}

// TableInfo is the schema description of a node or edge table.
type TableInfo interface {
	TableID() TableID
	TableName() string
	KeyColumns() []ColumnSpec
	ValColumns() []ColumnSpec
}

// NodeInfo describes a node table: ordered key columns and value columns.
type NodeInfo struct {
	TID  TableID
	Name string
	Keys []ColumnSpec
	Vals []ColumnSpec
}

func (n *NodeInfo) TableID() TableID         { return n.TID }
func (n *NodeInfo) TableName() string        { return n.Name }
func (n *NodeInfo) KeyColumns() []ColumnSpec { return n.Keys }
func (n *NodeInfo) ValColumns() []ColumnSpec { return n.Vals }

// EdgeInfo describes an edge table: its own key and value columns plus the
// source and destination node table ids. The dual forward/inverse key
// encoding lets both edge directions be answered by forward prefix scans.
type EdgeInfo struct {
	TID   TableID
	Name  string
	SrcID TableID
	DstID TableID
	Keys  []ColumnSpec
	Vals  []ColumnSpec
}

func (e *EdgeInfo) TableID() TableID         { return e.TID }
func (e *EdgeInfo) TableName() string        { return e.Name }
func (e *EdgeInfo) KeyColumns() []ColumnSpec { return e.Keys }
func (e *EdgeInfo) ValColumns() []ColumnSpec { return e.Vals }

// AssocInfo describes an association side table: it shares the primary
// table's key and holds extra value columns only.
type AssocInfo struct {
	TID  TableID
	Name string
	Vals []ColumnSpec
}
