package pricing

import (
	"testing"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.FallbackPrice = 50
	return cfg
}

func TestResolve_OverrideWinsOverCategoryAndFallback(t *testing.T) {
	cfg := testConfig()
	cfg.ItemOverrides["42"] = 800
	cfg.DefaultPrices.ItemCategories["EPIC_SKIN"] = 1350

	item := &catalog.Item{ID: 42, ItemCategory: "EPIC_SKIN"}
	if got := Resolve(item, cfg); got != 800 {
		t.Fatalf("Resolve = %d, want override 800", got)
	}
}

func TestResolve_CategoryBeatsInventoryType(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultPrices.ItemCategories["EPIC_SKIN"] = 1350
	cfg.DefaultPrices.InventoryTypes["CHAMPION_SKIN"] = 975

	item := &catalog.Item{ID: 7, ItemCategory: "EPIC_SKIN", InventoryType: "CHAMPION_SKIN"}
	if got := Resolve(item, cfg); got != 1350 {
		t.Fatalf("Resolve = %d, want category 1350", got)
	}
}

func TestResolve_ZeroCategoryFallsThrough(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultPrices.ItemCategories["X"] = 0

	item := &catalog.Item{ID: 9, ItemCategory: "X"}
	if got := Resolve(item, cfg); got != 50 {
		t.Fatalf("Resolve = %d, want fallback 50 (zero entry must fall through)", got)
	}
}

func TestResolve_ZeroTierFallsToNextTier(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultPrices.ItemCategories["X"] = 0
	cfg.DefaultPrices.InventoryTypes["BUNDLE"] = 2500

	item := &catalog.Item{ID: 9, ItemCategory: "X", InventoryType: "BUNDLE"}
	if got := Resolve(item, cfg); got != 2500 {
		t.Fatalf("Resolve = %d, want next tier 2500", got)
	}
}

func TestResolve_ModifiersComposeMultiplicatively(t *testing.T) {
	cfg := testConfig()
	cfg.ItemOverrides["1"] = 1000
	cfg.PriceMultipliers["PRESTIGE"] = 1.5
	cfg.PriceMultipliers["MYTHIC"] = 2.0

	item := &catalog.Item{ID: 1, Tags: []string{"prestige"}, Rarity: "Mythic"}
	if got := Resolve(item, cfg); got != 3000 {
		t.Fatalf("Resolve = %d, want 1000*1.5*2.0 = 3000", got)
	}
}

func TestResolve_ModifierMatchIsCaseInsensitive(t *testing.T) {
	cfg := testConfig()
	cfg.ItemOverrides["1"] = 200
	cfg.PriceMultipliers["limited"] = 3.0

	item := &catalog.Item{ID: 1, Tags: []string{"LIMITED"}}
	if got := Resolve(item, cfg); got != 600 {
		t.Fatalf("Resolve = %d, want 600", got)
	}
}

func TestResolve_TypeModifierApplies(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultPrices.InventoryTypes["CHAMPION_SKIN"] = 975
	cfg.PriceMultipliers["CHAMPION_SKIN"] = 0.5

	item := &catalog.Item{ID: 2, InventoryType: "CHAMPION_SKIN"}
	// 975 is both the base (inventory-type tier) and a modifier match on type.
	if got := Resolve(item, cfg); got != 487 {
		t.Fatalf("Resolve = %d, want floor(975*0.5) = 487", got)
	}
}

func TestResolve_NilItemYieldsFallback(t *testing.T) {
	cfg := testConfig()
	if got := Resolve(nil, cfg); got != 50 {
		t.Fatalf("Resolve(nil) = %d, want fallback 50", got)
	}
}

func TestResolve_CustomPriorityOrder(t *testing.T) {
	cfg := testConfig()
	cfg.CategoryPriority = []string{SourceInventoryType, SourceItemOverride}
	cfg.ItemOverrides["5"] = 100
	cfg.DefaultPrices.InventoryTypes["BUNDLE"] = 300

	item := &catalog.Item{ID: 5, InventoryType: "BUNDLE"}
	if got := Resolve(item, cfg); got != 300 {
		t.Fatalf("Resolve = %d, want inventory tier 300 under custom priority", got)
	}
}

func TestResolve_ResultFlooredAndClamped(t *testing.T) {
	cfg := testConfig()
	cfg.ItemOverrides["3"] = 99
	cfg.PriceMultipliers["ODD"] = 0.333

	item := &catalog.Item{ID: 3, Tags: []string{"ODD"}}
	if got := Resolve(item, cfg); got != 32 {
		t.Fatalf("Resolve = %d, want floor(99*0.333) = 32", got)
	}

	cfg.PriceMultipliers["ODD"] = 0
	if got := Resolve(item, cfg); got != 0 {
		t.Fatalf("Resolve = %d, want 0 after zero multiplier", got)
	}
}

func TestMoneyCents(t *testing.T) {
	cfg := testConfig()
	cfg.Currency.PerThousandCents = 800 // $8.00 per 1000 RP

	if got := MoneyCents(1000, cfg); got != 800 {
		t.Fatalf("MoneyCents(1000) = %d, want 800", got)
	}
	if got := MoneyCents(1350, cfg); got != 1080 {
		t.Fatalf("MoneyCents(1350) = %d, want 1080", got)
	}
	if got := MoneyCents(0, cfg); got != 0 {
		t.Fatalf("MoneyCents(0) = %d, want 0", got)
	}
}
