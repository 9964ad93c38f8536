package pricing

import (
	"github.com/tbourn/go-giftshop-backend/internal/catalog"
)

// ApplyAll rewrites every item's price field with its resolved value and
// reports how many items changed. The caller persists the catalog afterwards;
// this function only mutates the in-memory slice.
func ApplyAll(items []catalog.Item, cfg *Config) int {
	changed := 0
	for i := range items {
		resolved := Resolve(&items[i], cfg)
		if items[i].Price != resolved {
			items[i].Price = resolved
			changed++
		}
	}
	return changed
}
