package analysis

// BlockTracker carries order block state across scans of one run. Each scan
// re-detects blocks from scratch; the tracker folds in earlier mitigation and
// consumption so neither flag is ever cleared. It is not safe for concurrent use.
type BlockTracker struct {
	mitigated map[string]bool
	used      map[string]bool
}

// NewBlockTracker creates an empty tracker
func NewBlockTracker() *BlockTracker {
	return &BlockTracker{
		mitigated: make(map[string]bool),
		used:      make(map[string]bool),
	}
}

// Apply merges tracked state into a fresh scan and records new mitigations
func (bt *BlockTracker) Apply(blocks []OrderBlock) []OrderBlock {
	for i := range blocks {
		key := blocks[i].Key()
		if blocks[i].Mitigated {
			bt.mitigated[key] = true
		}
		blocks[i].Mitigated = bt.mitigated[key]
		blocks[i].Used = bt.used[key]
	}
	return blocks
}

// MarkUsed records that a signal was created from the block
func (bt *BlockTracker) MarkUsed(ob OrderBlock) {
	bt.used[ob.Key()] = true
}

// IsUsed reports whether the block already produced a signal
func (bt *BlockTracker) IsUsed(ob OrderBlock) bool {
	return bt.used[ob.Key()]
}

// IsMitigated reports whether the block was mitigated in any scan so far
func (bt *BlockTracker) IsMitigated(ob OrderBlock) bool {
	return bt.mitigated[ob.Key()]
}
