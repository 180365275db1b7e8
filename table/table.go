package table

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bptable/pager"
)

// ErrDuplicateKey is returned by Insert when the key is already present.
// It and ErrTreeFull (no page left for a split) are the operation-level
// outcomes insert can return besides success; every other failure here is
// fatal and propagates up instead.
var ErrDuplicateKey = errors.New("table: duplicate key")

// Table is the facade the outer prompt talks to: open/close a single
// backing file and delegate find/insert/scan/delete to the tree and
// cursor beneath it.
type Table struct {
	pager *pager.Pager
	tree  *Tree
}

type tableOptions struct {
	logger           *zap.Logger
	internalMaxCells uint32
}

// TableOption configures a Table at Open time.
type TableOption func(*tableOptions)

// WithLogger attaches a structured logger, threaded down into both the
// pager and the tree.
func WithLogger(logger *zap.Logger) TableOption {
	return func(o *tableOptions) { o.logger = logger }
}

// WithInternalMaxCells overrides the internal node fan-out tunable.
func WithInternalMaxCells(n uint32) TableOption {
	return func(o *tableOptions) { o.internalMaxCells = n }
}

// Open opens path as a single-table store, creating it if absent.
func Open(path string, opts ...TableOption) (*Table, error) {
	o := tableOptions{
		logger:           zap.NewNop(),
		internalMaxCells: DefaultInternalMaxCells,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p, err := pager.Open(path, pager.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	tr, err := OpenTree(p, WithTreeInternalMaxCells(o.internalMaxCells), WithTreeLogger(o.logger))
	if err != nil {
		p.Close()
		return nil, err
	}
	return &Table{pager: p, tree: tr}, nil
}

// Close flushes every dirty page and releases the backing file.
func (tb *Table) Close() error {
	return tb.pager.Close()
}

// Find positions a cursor at key, or at the slot key would occupy if
// absent.
func (tb *Table) Find(key uint32) (*Cursor, error) {
	return tb.tree.Find(key)
}

// Insert adds (key, rec), rejecting an already-present key without
// mutating anything.
func (tb *Table) Insert(key uint32, rec Record) error {
	c, err := tb.tree.Find(key)
	if err != nil {
		return err
	}
	if c.Valid() {
		existing, err := c.Key()
		if err != nil {
			return err
		}
		if existing == key {
			return ErrDuplicateKey
		}
	}
	return tb.tree.LeafInsert(c, key, rec)
}

// Scan returns every record in ascending key order, walking the leaf
// sibling chain from the leftmost leaf.
func (tb *Table) Scan() ([]Record, error) {
	c, err := tb.tree.TableStart()
	if err != nil {
		return nil, err
	}
	var out []Record
	for c.Valid() {
		rec, err := c.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		if err := c.Advance(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes key's cell from its leaf, compacting the remaining cells
// left. It never merges or rebalances siblings or collapses an internal
// node — the tree may end up with an under-full leaf, which this design
// never requires to be corrected.
func (tb *Table) Delete(key uint32) (bool, error) {
	c, err := tb.tree.Find(key)
	if err != nil {
		return false, err
	}
	if !c.Valid() {
		return false, nil
	}
	existing, err := c.Key()
	if err != nil {
		return false, err
	}
	if existing != key {
		return false, nil
	}

	n, err := tb.tree.node(c.PageNum)
	if err != nil {
		return false, err
	}
	count := n.CellsCount()
	for i := c.CellNum; i+1 < count; i++ {
		n.copyLeafCell(i, i+1)
	}
	n.setCellsCount(count - 1)
	return true, nil
}
