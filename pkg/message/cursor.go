package message

// Cursor tracks a publisher's position within a branch. The packed
// sequence number keeps branch ordering stable when cursors from
// different branches are compared.
type Cursor struct {
	BranchNo uint32
	SeqNo    uint32
}

// SeqNum packs the branch and sequence counters into one ordered value.
func (c Cursor) SeqNum() uint64 {
	return uint64(c.BranchNo)<<32 | uint64(c.SeqNo)
}

// NextSeq returns the cursor advanced by one message in the same branch.
func (c Cursor) NextSeq() Cursor {
	return Cursor{BranchNo: c.BranchNo, SeqNo: c.SeqNo + 1}
}

// NextBranch returns a cursor at the start of the following branch.
func (c Cursor) NextBranch() Cursor {
	return Cursor{BranchNo: c.BranchNo + 1}
}
