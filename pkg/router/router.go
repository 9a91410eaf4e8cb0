// Package router assigns extracted memory items to a storage tier.
package router

import (
	"strings"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// Route returns the tier named by item. A missing or unknown tier routes to
// the project tier.
func Route(item memory.ExtractedItem) memory.Tier {
	tier, err := memory.ParseTier(item.Tier)
	if err != nil {
		return memory.TierProject
	}
	return tier
}

// Category returns the category named by item, falling back to learning.
func Category(item memory.ExtractedItem) memory.Category {
	c, err := memory.ParseCategory(item.Category)
	if err != nil {
		return memory.CategoryLearning
	}
	return c
}

// Routed is an extracted item after classification.
type Routed struct {
	Item     memory.ExtractedItem
	Tier     memory.Tier
	Category memory.Category

	// Demoted is set when the item asked for the global tier but the
	// per-session archival cap was already spent.
	Demoted bool
}

// Record builds the memory record for r. Surrounding whitespace is trimmed
// from the content.
func (r Routed) Record() (memory.Record, error) {
	return memory.NewRecord(strings.TrimSpace(r.Item.Content), r.Tier, r.Category, strings.TrimSpace(r.Item.Reason))
}

// Partition classifies items in order. Items with blank content are dropped.
// At most maxGlobal items keep the global tier; later global items are
// demoted to the project tier. A negative maxGlobal disables the cap.
func Partition(items []memory.ExtractedItem, maxGlobal int) []Routed {
	out := make([]Routed, 0, len(items))
	globals := 0
	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		r := Routed{Item: item, Tier: Route(item), Category: Category(item)}
		if r.Tier == memory.TierGlobal {
			if maxGlobal >= 0 && globals >= maxGlobal {
				r.Tier = memory.TierProject
				r.Demoted = true
			} else {
				globals++
			}
		}
		out = append(out, r)
	}
	return out
}
