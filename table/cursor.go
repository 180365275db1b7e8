package table

// Cursor positions a (page, cell) slot inside the tree's leaf level. It is
// an ephemeral value: valid only until the next mutation of the tree it
// was obtained from.
type Cursor struct {
	tree *Tree

	PageNum    uint32
	CellNum    uint32
	EndOfTable bool
}

// Valid reports whether the cursor currently references an existing cell.
func (c *Cursor) Valid() bool { return !c.EndOfTable }

// Key returns the key at the cursor's current position.
func (c *Cursor) Key() (uint32, error) {
	n, err := c.tree.node(c.PageNum)
	if err != nil {
		return 0, err
	}
	return n.LeafKey(c.CellNum), nil
}

// Value returns the record at the cursor's current position.
func (c *Cursor) Value() (Record, error) {
	n, err := c.tree.node(c.PageNum)
	if err != nil {
		return Record{}, err
	}
	return Deserialize(n.LeafValue(c.CellNum))
}

// Advance moves the cursor to the next cell, following the leaf sibling
// chain when the current leaf is exhausted. EndOfTable becomes true once
// the chain's terminal 0 is reached.
func (c *Cursor) Advance() error {
	n, err := c.tree.node(c.PageNum)
	if err != nil {
		return err
	}
	c.CellNum++
	if c.CellNum >= n.CellsCount() {
		next := n.NextLeafPage()
		if next == NoNextLeaf {
			c.EndOfTable = true
			return nil
		}
		c.PageNum = next
		c.CellNum = 0
	}
	return nil
}
