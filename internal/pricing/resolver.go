package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
)

// Resolve computes the RP charge for a catalog item under cfg.
//
// The base price is the first source in cfg.CategoryPriority (DefaultPriority
// when empty) that yields a defined, non-zero value; when every tiered source
// yields zero or nothing, the fallback price applies regardless of its
// position in the list. A tier entry of exactly 0 is therefore
// indistinguishable from "no entry" and always falls through — kept from the
// reference behavior, so zero-price items are not supported.
//
// After base selection, matching multipliers compose multiplicatively in a
// fixed sequence: each tag (case-insensitive), then rarity, then inventory
// type. The result is floored to an integer and clamped to >= 0.
func Resolve(item *catalog.Item, cfg *Config) int64 {
	if cfg == nil {
		return 0
	}
	if item == nil {
		return clampFloor(float64(cfg.FallbackPrice))
	}

	base := basePrice(item, cfg)

	price := float64(base)
	for _, tag := range item.Tags {
		if f, ok := multiplier(cfg, tag); ok {
			price *= f
		}
	}
	if f, ok := multiplier(cfg, item.Rarity); ok {
		price *= f
	}
	if f, ok := multiplier(cfg, item.InventoryType); ok {
		price *= f
	}

	return clampFloor(price)
}

// MoneyCents converts an RP total to a monetary amount in cents using the
// configured currency rate (cents per 1000 RP), rounded to the nearest cent.
func MoneyCents(totalRP int64, cfg *Config) int64 {
	if cfg == nil || cfg.Currency.PerThousandCents <= 0 || totalRP <= 0 {
		return 0
	}
	return (totalRP*cfg.Currency.PerThousandCents + 500) / 1000
}

func basePrice(item *catalog.Item, cfg *Config) int64 {
	priority := cfg.CategoryPriority
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	for _, src := range priority {
		var v int64
		switch src {
		case SourceItemOverride:
			v = cfg.ItemOverrides[strconv.FormatInt(item.ID, 10)]
		case SourceItemCategory:
			v = lookup(cfg.DefaultPrices.ItemCategories, item.ItemCategory)
		case SourceSubInventoryType:
			v = lookup(cfg.DefaultPrices.SubInventoryTypes, item.SubInventoryType)
		case SourceInventoryType:
			v = lookup(cfg.DefaultPrices.InventoryTypes, item.InventoryType)
		case SourceFallback:
			v = cfg.FallbackPrice
		}
		if v != 0 {
			return v
		}
	}
	return cfg.FallbackPrice
}

func lookup(tbl map[string]int64, key string) int64 {
	if key == "" {
		return 0
	}
	return tbl[key]
}

// multiplier finds a configured modifier matching name case-insensitively.
func multiplier(cfg *Config, name string) (float64, bool) {
	if name == "" {
		return 0, false
	}
	for k, f := range cfg.PriceMultipliers {
		if strings.EqualFold(k, name) {
			return f, true
		}
	}
	return 0, false
}

func clampFloor(v float64) int64 {
	f := math.Floor(v)
	if f < 0 {
		return 0
	}
	return int64(f)
}
