// Package table implements a disk-backed B+tree keyed by u32, carrying
// fixed-width Records as leaf values, on top of the pager package.
package table

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bptable/pager"
)

// RootPage is always page 0: the invariant this whole tree leans on to
// avoid a separate metadata page.
const RootPage uint32 = 0

// DefaultInternalMaxCells is the full capacity of an internal node at the
// reference page size. Tests and small-scale exploration typically override
// this down to a handful of cells to exercise splits without large inserts.
const DefaultInternalMaxCells = (pager.PageSize - intHeaderSize) / intCellSize

// ErrTreeFull is surfaced when growing the tree would exceed the pager's
// page capacity.
var ErrTreeFull = errors.New("table: tree is full")

// ErrUnknownNodeType is fatal: a page byte 0 that is neither the leaf nor
// internal tag means the file is corrupt. A zero-filled page is not caught
// here, since its tag byte reads as NodeInternal.
var ErrUnknownNodeType = errors.New("table: unknown node type")

// Tree owns the root-anchored B+tree algorithms. It never touches the
// backing file directly — every page access is through pager.
type Tree struct {
	pager            *pager.Pager
	internalMaxCells uint32
	logger           *zap.Logger
}

// TreeOption configures a Tree at OpenTree time.
type TreeOption func(*Tree)

// WithTreeInternalMaxCells overrides the internal node fan-out. The
// reference exercises splits under test with a small value (3); production
// use leaves it at DefaultInternalMaxCells.
func WithTreeInternalMaxCells(n uint32) TreeOption {
	return func(t *Tree) { t.internalMaxCells = n }
}

// WithTreeLogger attaches a structured logger for split/root-replacement
// diagnostics. A nil logger (the default) disables logging.
func WithTreeLogger(logger *zap.Logger) TreeOption {
	return func(t *Tree) {
		if logger == nil {
			logger = zap.NewNop()
		}
		t.logger = logger
	}
}

// OpenTree binds a Tree to p, materializing page 0 as an empty leaf root if
// p has no pages yet.
func OpenTree(p *pager.Pager, opts ...TreeOption) (*Tree, error) {
	t := &Tree{
		pager:            p,
		internalMaxCells: DefaultInternalMaxCells,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	fresh := p.PagesCount() == 0
	rootPg, err := p.Get(RootPage)
	if err != nil {
		return nil, errors.Wrap(err, "table: open root page")
	}
	if fresh {
		root := InitializeLeaf(rootPg)
		root.SetIsRoot(true)
		t.logger.Debug("initialized empty root leaf")
	}
	return t, nil
}

func (t *Tree) node(pageNum uint32) (Node, error) {
	pg, err := t.pager.Get(pageNum)
	if err != nil {
		return Node{}, err
	}
	if tag := pg.Data[offNodeType]; tag != NodeLeaf && tag != NodeInternal {
		return Node{}, errors.Wrapf(ErrUnknownNodeType, "page %d tag %d", pageNum, tag)
	}
	return NewNode(pg), nil
}

// leafFindCell returns the smallest cell index with LeafKey(i) >= key.
func leafFindCell(n Node, key uint32) uint32 {
	count := int(n.CellsCount())
	idx := sort.Search(count, func(i int) bool { return n.LeafKey(uint32(i)) >= key })
	return uint32(idx)
}

// internalFindChildIndex returns the smallest cell index with
// InternalKey(i) >= key, or KeysCount() if every key is smaller.
func internalFindChildIndex(n Node, key uint32) uint32 {
	count := int(n.KeysCount())
	idx := sort.Search(count, func(i int) bool { return n.InternalKey(uint32(i)) >= key })
	return uint32(idx)
}

// Find descends from the root and positions a cursor at key, or at the
// slot where key would be inserted if absent.
func (t *Tree) Find(key uint32) (*Cursor, error) {
	pageNum := RootPage
	for {
		n, err := t.node(pageNum)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			cellNum := leafFindCell(n, key)
			return &Cursor{tree: t, PageNum: pageNum, CellNum: cellNum, EndOfTable: cellNum >= n.CellsCount()}, nil
		}
		idx := internalFindChildIndex(n, key)
		var child uint32
		if idx >= n.KeysCount() {
			child = n.RightChildPage()
		} else {
			child = n.InternalChildPage(idx)
		}
		if child == InvalidPage {
			return nil, errors.Errorf("table: descended into invalid child page at internal page %d", pageNum)
		}
		pageNum = child
	}
}

// TableStart positions a cursor at the first record in key order.
func (t *Tree) TableStart() (*Cursor, error) {
	return t.Find(0)
}

// LeafInsert writes (key, rec) at the cursor's leaf cell, shifting later
// cells right, splitting the leaf first if it is already full. The caller
// is responsible for the duplicate-key check before calling this.
func (t *Tree) LeafInsert(c *Cursor, key uint32, rec Record) error {
	n, err := t.node(c.PageNum)
	if err != nil {
		return err
	}
	if n.CellsCount() < LeafMaxCells() {
		var buf [RecordSize]byte
		if err := Serialize(rec, buf[:]); err != nil {
			return err
		}
		for i := n.CellsCount(); i > c.CellNum; i-- {
			n.copyLeafCell(i, i-1)
		}
		n.setLeafCell(c.CellNum, key, buf[:])
		n.setCellsCount(n.CellsCount() + 1)
		return nil
	}
	return t.leafSplitInsert(c, key, rec)
}

// leafSplitInsert implements the canonical B+tree leaf split: the
// leaf_max_cells+1 entries (existing plus the new one) are redistributed
// between the old (left) and a freshly allocated new (right) leaf by
// iterating destination indices from high to low, which guarantees every
// source cell is read before a later iteration could overwrite it.
func (t *Tree) leafSplitInsert(c *Cursor, key uint32, rec Record) error {
	old, err := t.node(c.PageNum)
	if err != nil {
		return err
	}

	max := LeafMaxCells()
	leftSplitCount := (max + 2) / 2 // ceil((max+1)/2)
	rightSplitCount := (max + 1) - leftSplitCount

	oldMaxBeforeSplit := old.LeafKey(max - 1)

	newPageNum, err := t.pager.Alloc()
	if err != nil {
		return errors.Wrap(ErrTreeFull, err.Error())
	}
	newPg, err := t.pager.Get(newPageNum)
	if err != nil {
		return err
	}
	newNode := InitializeLeaf(newPg)
	newNode.SetParentPage(old.ParentPage())
	newNode.SetNextLeafPage(old.NextLeafPage())
	old.SetNextLeafPage(newPageNum)

	var recBuf [RecordSize]byte
	if err := Serialize(rec, recBuf[:]); err != nil {
		return err
	}

	for i := int(max); i >= 0; i-- {
		ii := uint32(i)
		dest := old
		if ii >= leftSplitCount {
			dest = newNode
		}
		destIdx := ii % leftSplitCount

		switch {
		case ii == c.CellNum:
			dest.setLeafCell(destIdx, key, recBuf[:])
		case ii > c.CellNum:
			dest.setLeafCell(destIdx, old.LeafKey(ii-1), old.LeafValue(ii-1))
		default:
			dest.setLeafCell(destIdx, old.LeafKey(ii), old.LeafValue(ii))
		}
	}
	old.setCellsCount(leftSplitCount)
	newNode.setCellsCount(rightSplitCount)

	t.logger.Debug("leaf split", zap.Uint32("old_page", c.PageNum), zap.Uint32("new_page", newPageNum))

	if old.IsRoot() {
		return t.createNewRoot(newPageNum)
	}

	parentPage := old.ParentPage()
	newMaxOfOld := old.LeafKey(old.CellsCount() - 1)
	if err := t.updateInternalKey(parentPage, oldMaxBeforeSplit, newMaxOfOld); err != nil {
		return err
	}
	return t.internalInsert(parentPage, newPageNum)
}

// createNewRoot demotes the current root (page 0) into a freshly allocated
// left child, then re-initializes page 0 as an internal node with that
// left child and rightChildPage as its two children.
func (t *Tree) createNewRoot(rightChildPage uint32) error {
	leftChildPage, err := t.pager.Alloc()
	if err != nil {
		return errors.Wrap(ErrTreeFull, err.Error())
	}
	leftPg, err := t.pager.Get(leftChildPage)
	if err != nil {
		return err
	}
	rootPg, err := t.pager.Get(RootPage)
	if err != nil {
		return err
	}

	leftPg.Data = rootPg.Data
	leftPg.Dirty = true
	left := NewNode(leftPg)
	left.SetIsRoot(false)

	if !left.IsLeaf() {
		for i := uint32(0); i < left.KeysCount(); i++ {
			childPg, err := t.pager.Get(left.InternalChildPage(i))
			if err != nil {
				return err
			}
			NewNode(childPg).SetParentPage(leftChildPage)
		}
		if rc := left.RightChildPage(); rc != InvalidPage {
			childPg, err := t.pager.Get(rc)
			if err != nil {
				return err
			}
			NewNode(childPg).SetParentPage(leftChildPage)
		}
	}

	maxKeyLeft, err := t.maxKey(leftChildPage)
	if err != nil {
		return err
	}

	root := InitializeInternal(rootPg)
	root.SetIsRoot(true)
	root.SetKeysCount(1)
	root.SetInternalCell(0, leftChildPage, maxKeyLeft)
	root.SetRightChildPage(rightChildPage)

	left.SetParentPage(RootPage)
	rightPg, err := t.pager.Get(rightChildPage)
	if err != nil {
		return err
	}
	NewNode(rightPg).SetParentPage(RootPage)

	t.logger.Debug("root replaced", zap.Uint32("left_child", leftChildPage), zap.Uint32("right_child", rightChildPage))
	return nil
}

// maxKey returns the largest key reachable under pageNum: the last cell's
// key for a leaf, or a recursive descent through the right child for an
// internal node (its right child always holds keys larger than every cell
// key in the node).
func (t *Tree) maxKey(pageNum uint32) (uint32, error) {
	n, err := t.node(pageNum)
	if err != nil {
		return 0, err
	}
	if n.IsLeaf() {
		if n.CellsCount() == 0 {
			return 0, nil
		}
		return n.LeafKey(n.CellsCount() - 1), nil
	}
	return t.maxKey(n.RightChildPage())
}

// updateInternalKey replaces oldKey with newKey in parentPage's keyed
// cells. If oldKey belonged to the parent's right child instead of a keyed
// cell, there is nothing to update: the right child has no stored key, its
// bound is implicit.
func (t *Tree) updateInternalKey(parentPage, oldKey, newKey uint32) error {
	n, err := t.node(parentPage)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n.KeysCount(); i++ {
		if n.InternalKey(i) == oldKey {
			n.SetInternalKey(i, newKey)
			return nil
		}
	}
	return nil
}

// internalInsert adds childPage as a new child of parentPage, splitting
// parentPage first if it is already at capacity.
func (t *Tree) internalInsert(parentPage, childPage uint32) error {
	childMax, err := t.maxKey(childPage)
	if err != nil {
		return err
	}
	parent, err := t.node(parentPage)
	if err != nil {
		return err
	}

	if parent.KeysCount() >= t.internalMaxCells {
		return t.internalSplitInsert(parentPage, childPage)
	}

	if parent.RightChildPage() == InvalidPage {
		parent.SetRightChildPage(childPage)
		return nil
	}

	origKeysCount := parent.KeysCount()
	idx := internalFindChildIndex(parent, childMax)
	parent.SetKeysCount(origKeysCount + 1)

	curRightChild := parent.RightChildPage()
	rightMax, err := t.maxKey(curRightChild)
	if err != nil {
		return err
	}
	if childMax > rightMax {
		parent.SetInternalCell(origKeysCount, curRightChild, rightMax)
		parent.SetRightChildPage(childPage)
	} else {
		for i := origKeysCount; i > idx; i-- {
			parent.copyInternalCell(i, i-1)
		}
		parent.SetInternalCell(idx, childPage, childMax)
	}
	return nil
}

// internalSplitInsert splits a full internal node, moving its upper half
// (highest keys first) into a freshly allocated sibling and routing
// childPage into whichever of the two now fits it, then propagates the
// split one level up (recursively, via internalInsert on the grandparent).
func (t *Tree) internalSplitInsert(parentPage, childPage uint32) error {
	oldMax, err := t.maxKey(parentPage)
	if err != nil {
		return err
	}
	parent, err := t.node(parentPage)
	if err != nil {
		return err
	}
	splittingRoot := parent.IsRoot()

	var oldPageNum, newPage, grandparent uint32

	if splittingRoot {
		newPageNum, err := t.pager.Alloc()
		if err != nil {
			return errors.Wrap(ErrTreeFull, err.Error())
		}
		newPg, err := t.pager.Get(newPageNum)
		if err != nil {
			return err
		}
		InitializeInternal(newPg)
		if err := t.createNewRoot(newPageNum); err != nil {
			return err
		}
		root, err := t.node(RootPage)
		if err != nil {
			return err
		}
		oldPageNum = root.InternalChildPage(0)
		newPage = newPageNum
		grandparent = RootPage
	} else {
		newPageNum, err := t.pager.Alloc()
		if err != nil {
			return errors.Wrap(ErrTreeFull, err.Error())
		}
		newPg, err := t.pager.Get(newPageNum)
		if err != nil {
			return err
		}
		InitializeInternal(newPg)
		oldPageNum = parentPage
		newPage = newPageNum
		grandparent = parent.ParentPage()
	}

	old, err := t.node(oldPageNum)
	if err != nil {
		return err
	}
	newNode, err := t.node(newPage)
	if err != nil {
		return err
	}
	newNode.SetParentPage(grandparent)

	oldRightChild := old.RightChildPage()
	if err := t.internalInsert(newPage, oldRightChild); err != nil {
		return err
	}
	if pg, err := t.pager.Get(oldRightChild); err == nil {
		NewNode(pg).SetParentPage(newPage)
	} else {
		return err
	}
	old.SetRightChildPage(InvalidPage)

	half := t.internalMaxCells / 2
	for i := int(t.internalMaxCells) - 1; i > int(half); i-- {
		ii := uint32(i)
		childPg := old.InternalChildPage(ii)
		if err := t.internalInsert(newPage, childPg); err != nil {
			return err
		}
		if pg, err := t.pager.Get(childPg); err == nil {
			NewNode(pg).SetParentPage(newPage)
		} else {
			return err
		}
		old.SetKeysCount(old.KeysCount() - 1)
	}

	lastIdx := old.KeysCount() - 1
	promotedChild := old.InternalChildPage(lastIdx)
	old.SetRightChildPage(promotedChild)
	old.SetKeysCount(old.KeysCount() - 1)

	oldMaxAfterSplit, err := t.maxKey(oldPageNum)
	if err != nil {
		return err
	}
	childMax, err := t.maxKey(childPage)
	if err != nil {
		return err
	}
	dest := newPage
	if childMax < oldMaxAfterSplit {
		dest = oldPageNum
	}
	if err := t.internalInsert(dest, childPage); err != nil {
		return err
	}
	if pg, err := t.pager.Get(childPage); err == nil {
		NewNode(pg).SetParentPage(dest)
	} else {
		return err
	}

	if err := t.updateInternalKey(grandparent, oldMax, oldMaxAfterSplit); err != nil {
		return err
	}
	if !splittingRoot {
		if err := t.internalInsert(grandparent, newPage); err != nil {
			return err
		}
		if pg, err := t.pager.Get(newPage); err == nil {
			NewNode(pg).SetParentPage(grandparent)
		} else {
			return err
		}
	}

	t.logger.Debug("internal split", zap.Uint32("old_page", oldPageNum), zap.Uint32("new_page", newPage))
	return nil
}
