package strata

import "log/slog"

// DBContext carries everything an operator needs at construction and
// evaluation time: the schema catalog, the root transaction handle, the
// session temp store, caller-supplied read/write options, structured
// logging and metrics. The enclosing evaluator owns the transaction scope;
// operators only write through it.
type DBContext struct {
	Catalog   *Catalog
	Txn       *Txn
	Temp      *TempStore
	ReadOpts  ReadOptions
	WriteOpts WriteOptions
	Log       *slog.Logger
	Metrics   *Metrics
}

// NewDBContext assembles a context with a default logger and fresh
// metrics when none are supplied.
func NewDBContext(catalog *Catalog, txn *Txn, temp *TempStore) *DBContext {
	return &DBContext{
		Catalog: catalog,
		Txn:     txn,
		Temp:    temp,
		Log:     slog.Default(),
		Metrics: &Metrics{},
	}
}

// storeFor selects the physical write target by the table's root flag.
func (c *DBContext) storeFor(tid TableID) kvHandle {
	if tid.InRoot {
		return c.Txn
	}
	return c.Temp
}
