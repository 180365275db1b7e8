package table

import (
	"encoding/binary"

	"bptable/pager"
)

// Node type tags, stored at byte offset 0 of every page.
const (
	NodeLeaf     uint8 = 1
	NodeInternal uint8 = 0
)

// Sentinels from the on-disk wire format. Never conflate these with
// Option-style absence: older readers of the format only know u32.
const (
	InvalidPage uint32 = 1<<32 - 1
	NoNextLeaf  uint32 = 0
)

// Common header: type(1) + is_root(1) + parent_page(4) = 6 bytes.
const (
	offNodeType   = 0
	offIsRoot     = 1
	offParentPage = 2
	commonHdrSize = 6
)

// Leaf and internal headers share the same shape past the common header:
// a count field at offset 6 and a "next page" field at offset 10, 14 bytes
// total either way.
const (
	offCellsCount  = commonHdrSize     // leaf: cells_count
	offNextLeaf    = commonHdrSize + 4 // leaf: next_leaf_page
	offKeysCount   = commonHdrSize     // internal: keys_count
	offRightChild  = commonHdrSize + 4 // internal: right_child_page
	leafHeaderSize = commonHdrSize + 8
	intHeaderSize  = commonHdrSize + 8
)

const (
	leafCellKeySize = 4
	intCellSize     = 8 // child_page(4) + key(4)
)

// LeafCellSize is one leaf cell: key(4) + a record-sized value area.
func LeafCellSize() uint32 { return leafCellKeySize + RecordSize }

// LeafMaxCells is the largest number of cells a leaf page can hold.
func LeafMaxCells() uint32 {
	return (pager.PageSize - leafHeaderSize) / LeafCellSize()
}

// Node is a typed view over a page buffer. It never copies the buffer; all
// accessors read and write through to pg.Data directly so every mutation is
// immediately visible to the pager that owns pg.
type Node struct {
	pg *pager.Page
}

func NewNode(pg *pager.Page) Node { return Node{pg: pg} }

func (n Node) IsLeaf() bool { return n.pg.Data[offNodeType] == NodeLeaf }

func (n Node) IsRoot() bool { return n.pg.Data[offIsRoot] != 0 }

func (n Node) SetIsRoot(v bool) {
	if v {
		n.pg.Data[offIsRoot] = 1
	} else {
		n.pg.Data[offIsRoot] = 0
	}
	n.pg.Dirty = true
}

func (n Node) ParentPage() uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[offParentPage:])
}

func (n Node) SetParentPage(p uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[offParentPage:], p)
	n.pg.Dirty = true
}

// InitializeLeaf resets pg to an empty, non-root leaf.
func InitializeLeaf(pg *pager.Page) Node {
	n := Node{pg: pg}
	pg.Data[offNodeType] = NodeLeaf
	n.SetIsRoot(false)
	n.setCellsCount(0)
	n.setNextLeafPage(NoNextLeaf)
	pg.Dirty = true
	return n
}

// InitializeInternal resets pg to an empty, non-root internal node. The
// right child starts at the invalid sentinel: the root page number is 0,
// so skipping this would falsely make an uninitialized node claim the
// root as its right child.
func InitializeInternal(pg *pager.Page) Node {
	n := Node{pg: pg}
	pg.Data[offNodeType] = NodeInternal
	n.SetIsRoot(false)
	n.setKeysCount(0)
	n.SetRightChildPage(InvalidPage)
	pg.Dirty = true
	return n
}

// --- Leaf accessors ---

func (n Node) CellsCount() uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[offCellsCount:])
}

func (n Node) setCellsCount(c uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[offCellsCount:], c)
	n.pg.Dirty = true
}

func (n Node) NextLeafPage() uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[offNextLeaf:])
}

func (n Node) setNextLeafPage(p uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[offNextLeaf:], p)
	n.pg.Dirty = true
}

func (n Node) SetNextLeafPage(p uint32) { n.setNextLeafPage(p) }

func leafCellOffset(i uint32) uint32 { return leafHeaderSize + i*LeafCellSize() }

func (n Node) LeafKey(i uint32) uint32 {
	off := leafCellOffset(i)
	return binary.LittleEndian.Uint32(n.pg.Data[off:])
}

func (n Node) setLeafKey(i, key uint32) {
	off := leafCellOffset(i)
	binary.LittleEndian.PutUint32(n.pg.Data[off:], key)
	n.pg.Dirty = true
}

// LeafValue returns the record-sized value area for cell i.
func (n Node) LeafValue(i uint32) []byte {
	off := leafCellOffset(i) + leafCellKeySize
	return n.pg.Data[off : off+RecordSize]
}

func (n Node) setLeafCell(i, key uint32, rec []byte) {
	n.setLeafKey(i, key)
	copy(n.LeafValue(i), rec)
	n.pg.Dirty = true
}

// copyLeafCell copies the raw key+value bytes of cell src to cell dst
// within the same node.
func (n Node) copyLeafCell(dst, src uint32) {
	size := LeafCellSize()
	copy(n.pg.Data[leafCellOffset(dst):leafCellOffset(dst)+size], n.pg.Data[leafCellOffset(src):leafCellOffset(src)+size])
	n.pg.Dirty = true
}

// SetCellsCount is exported for callers (the tree) that manage leaf cell
// counts directly during split/insert.
func (n Node) SetCellsCount(c uint32) { n.setCellsCount(c) }

// --- Internal accessors ---

func (n Node) KeysCount() uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[offKeysCount:])
}

func (n Node) setKeysCount(c uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[offKeysCount:], c)
	n.pg.Dirty = true
}

func (n Node) SetKeysCount(c uint32) { n.setKeysCount(c) }

func (n Node) RightChildPage() uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[offRightChild:])
}

func (n Node) SetRightChildPage(p uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[offRightChild:], p)
	n.pg.Dirty = true
}

func intCellOffset(i uint32) uint32 { return intHeaderSize + i*intCellSize }

func (n Node) InternalChildPage(i uint32) uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[intCellOffset(i):])
}

func (n Node) SetInternalChildPage(i, p uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[intCellOffset(i):], p)
	n.pg.Dirty = true
}

func (n Node) InternalKey(i uint32) uint32 {
	return binary.LittleEndian.Uint32(n.pg.Data[intCellOffset(i)+4:])
}

func (n Node) SetInternalKey(i, key uint32) {
	binary.LittleEndian.PutUint32(n.pg.Data[intCellOffset(i)+4:], key)
	n.pg.Dirty = true
}

func (n Node) SetInternalCell(i, childPage, key uint32) {
	n.SetInternalChildPage(i, childPage)
	n.SetInternalKey(i, key)
}

// copyInternalCell copies cell src to cell dst within the same node.
func (n Node) copyInternalCell(dst, src uint32) {
	copy(n.pg.Data[intCellOffset(dst):intCellOffset(dst)+intCellSize], n.pg.Data[intCellOffset(src):intCellOffset(src)+intCellSize])
	n.pg.Dirty = true
}
