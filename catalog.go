package strata

import (
	"fmt"
	"strings"
	"sync"
)

// Catalog is the in-memory schema registry the operators resolve table
// names against. DDL parsing and type checking live elsewhere; tests and
// embedders register schemas directly.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]TableInfo
	byID   map[uint32]TableInfo
	assocs map[uint32][]AssocInfo
	nextID uint32
}

// NewCatalog returns an empty catalog. Table ids start at 1; id 0 is
// reserved so a zeroed TableID is never a valid table.
func NewCatalog() *Catalog {
	return &Catalog{
		byName: make(map[string]TableInfo),
		byID:   make(map[uint32]TableInfo),
		assocs: make(map[uint32][]AssocInfo),
		nextID: 1,
	}
}

func (c *Catalog) allocID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

// AddNode registers a node table.
func (c *Catalog) AddNode(name string, inRoot bool, keys, vals []ColumnSpec) (*NodeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byName[name]; ok {
		return nil, fmt.Errorf("strata: table %q already exists", name)
	}
	info := &NodeInfo{
		TID:  TableID{ID: c.allocID(), InRoot: inRoot},
		Name: name,
		Keys: keys,
		Vals: vals,
	}
	c.byName[name] = info
	c.byID[info.TID.ID] = info
	return info, nil
}

// AddEdge registers an edge table between two previously registered node
// tables.
func (c *Catalog) AddEdge(name string, inRoot bool, src, dst string, keys, vals []ColumnSpec) (*EdgeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byName[name]; ok {
		return nil, fmt.Errorf("strata: table %q already exists", name)
	}
	srcInfo, ok := c.byName[src]
	if !ok {
		return nil, fmt.Errorf("%w: source node table %q", ErrTableNotFound, src)
	}
	if _, isNode := srcInfo.(*NodeInfo); !isNode {
		return nil, fmt.Errorf("strata: edge source %q is not a node table", src)
	}
	dstInfo, ok := c.byName[dst]
	if !ok {
		return nil, fmt.Errorf("%w: destination node table %q", ErrTableNotFound, dst)
	}
	if _, isNode := dstInfo.(*NodeInfo); !isNode {
		return nil, fmt.Errorf("strata: edge destination %q is not a node table", dst)
	}
	info := &EdgeInfo{
		TID:   TableID{ID: c.allocID(), InRoot: inRoot},
		Name:  name,
		SrcID: srcInfo.TableID(),
		DstID: dstInfo.TableID(),
		Keys:  keys,
		Vals:  vals,
	}
	c.byName[name] = info
	c.byID[info.TID.ID] = info
	return info, nil
}

// AddAssoc registers an association side table for an existing node or
// edge table. Association ids live in the same id space as tables so key
// prefix overwriting cannot collide.
func (c *Catalog) AddAssoc(name, table string, vals []ColumnSpec) (*AssocInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	primary, ok := c.byName[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	pid := primary.TableID()
	for _, a := range c.assocs[pid.ID] {
		if a.Name == name {
			return nil, fmt.Errorf("strata: association %q already exists on %q", name, table)
		}
	}
	info := AssocInfo{
		// Associations inherit the primary table's store placement.
		TID:  TableID{ID: c.allocID(), InRoot: pid.InRoot},
		Name: name,
		Vals: vals,
	}
	c.assocs[pid.ID] = append(c.assocs[pid.ID], info)
	return &info, nil
}

// Resolve looks a table up by name.
func (c *Catalog) Resolve(name string) (TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byName[name]
	return info, ok
}

// NodeByID returns the node table for a TableID. Referencing a non-node id
// (an edge's src/dst must be nodes) is an error.
func (c *Catalog) NodeByID(tid TableID) (*NodeInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byID[tid.ID]
	if !ok {
		return nil, fmt.Errorf("%w: table id %d", ErrTableNotFound, tid.ID)
	}
	node, ok := info.(*NodeInfo)
	if !ok {
		return nil, fmt.Errorf("strata: table id %d is not a node table", tid.ID)
	}
	return node, nil
}

// Assocs returns the associations declared on a table, in declaration
// order.
func (c *Catalog) Assocs(tid TableID) []AssocInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assocs[tid.ID]
}

// parseTableWithAssocs splits a "table:assoc1,assoc2" target spec as the
// grammar layer hands it over.
func parseTableWithAssocs(spec string) (table string, assocs []string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", nil, fmt.Errorf("%w: empty table spec", ErrParse)
	}
	table, rest, found := strings.Cut(spec, ":")
	table = strings.TrimSpace(table)
	if table == "" {
		return "", nil, fmt.Errorf("%w: empty table name in %q", ErrParse, spec)
	}
	if !found {
		return table, nil, nil
	}
	for _, a := range strings.Split(rest, ",") {
		a = strings.TrimSpace(a)
		if a == "" {
			return "", nil, fmt.Errorf("%w: empty association name in %q", ErrParse, spec)
		}
		assocs = append(assocs, a)
	}
	return table, assocs, nil
}
