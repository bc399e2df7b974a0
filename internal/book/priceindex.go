package book

import "github.com/tidwall/btree"

// PriceIndex answers "what is the best price currently resting?" in
// amortized O(log n) per operation. It is a valid-set-over-ordered-tree
// design: pushed prices sit in an ordered tree; mark_empty only flips a
// validity bit, and best() lazily discards stale entries as it walks the
// tree, exactly as spec'd. A balanced tree (tidwall/btree; the price
// levels themselves live in plain maps on the book) stands in for the
// reference heap — the contract is the same either way.
type PriceIndex struct {
	tree  *btree.BTreeG[int64]
	valid map[int64]bool
}

// NewPriceIndex builds an index for one side of the book. bestIsMax is
// true for the bid side (best = highest price) and false for the ask
// side (best = lowest price).
func NewPriceIndex(bestIsMax bool) *PriceIndex {
	var less func(a, b int64) bool
	if bestIsMax {
		less = func(a, b int64) bool { return a > b }
	} else {
		less = func(a, b int64) bool { return a < b }
	}
	return &PriceIndex{
		tree:  btree.NewBTreeG(less),
		valid: make(map[int64]bool),
	}
}

// Push records that priceCents currently has resting liquidity. Idempotent.
func (idx *PriceIndex) Push(priceCents int64) {
	if idx.valid[priceCents] {
		return
	}
	idx.valid[priceCents] = true
	idx.tree.Set(priceCents)
}

// MarkEmpty lazily invalidates a price; it stays in the tree but will be
// skipped and evicted the next time Best() walks past it.
func (idx *PriceIndex) MarkEmpty(priceCents int64) {
	delete(idx.valid, priceCents)
}

// Best returns the best currently-valid price, discarding stale entries
// as it encounters them. Returns (0, false) if no valid price remains.
func (idx *PriceIndex) Best() (int64, bool) {
	for {
		price, ok := idx.tree.Min()
		if !ok {
			return 0, false
		}
		if idx.valid[price] {
			return price, true
		}
		// Stale: permanently evict so future walks don't re-pay for it.
		idx.tree.Delete(price)
	}
}
