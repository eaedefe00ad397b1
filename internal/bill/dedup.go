package bill

import (
	"math"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultFuzzyThreshold is the name similarity above which two items may
	// be the same entry.
	DefaultFuzzyThreshold = 0.85
	// DefaultAmountDiffRatio is the relative amount difference below which
	// two items may be the same entry.
	DefaultAmountDiffRatio = 0.05
)

// Deduplicator removes line items that repeat across pages, for example a
// summary page restating entries from the detail pages.
type Deduplicator struct {
	threshold   float64
	amountRatio float64
	params      *levenshtein.Params
}

// NewDeduplicator creates a Deduplicator. Non-positive arguments fall back
// to the defaults.
func NewDeduplicator(threshold, amountRatio float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	if amountRatio <= 0 {
		amountRatio = DefaultAmountDiffRatio
	}
	// Substitution costs a deletion plus an insertion, giving the indel
	// ratio 1 - d/(len(a)+len(b)).
	return &Deduplicator{
		threshold:   threshold,
		amountRatio: amountRatio,
		params:      levenshtein.NewParams().SubCost(2).BonusScale(0),
	}
}

// Deduplicate walks pages in order and keeps an item only if it is not a
// duplicate of any item kept before it. Pages are never removed, even when
// all their items are.
func (d *Deduplicator) Deduplicate(pages []PageLineItems) []PageLineItems {
	var kept []LineItem
	out := make([]PageLineItems, 0, len(pages))
	for _, page := range pages {
		items := make([]LineItem, 0, len(page.BillItems))
		for _, item := range page.BillItems {
			if d.seen(kept, item) {
				continue
			}
			items = append(items, item)
			kept = append(kept, item)
		}
		out = append(out, PageLineItems{
			PageNo:    page.PageNo,
			PageType:  page.PageType,
			BillItems: items,
		})
	}
	return out
}

func (d *Deduplicator) seen(kept []LineItem, item LineItem) bool {
	for _, k := range kept {
		if d.IsDuplicate(item, k) {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether a and b have similar names and close amounts.
func (d *Deduplicator) IsDuplicate(a, b LineItem) bool {
	return d.Similarity(a.Name, b.Name) > d.threshold && d.amountsClose(a.Amount, b.Amount)
}

// Similarity is the indel similarity of two case-folded names, from 0
// (unrelated) to 1 (equal).
func (d *Deduplicator) Similarity(a, b string) float64 {
	fold := cases.Fold()
	a = fold.String(norm.NFC.String(a))
	b = fold.String(norm.NFC.String(b))
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, d.params)
}

// amountsClose applies the relative difference rule. A zero amount only
// matches another zero.
func (d *Deduplicator) amountsClose(a, b float64) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	diff := math.Abs(a-b) / max(math.Abs(a), math.Abs(b))
	return diff < d.amountRatio
}
