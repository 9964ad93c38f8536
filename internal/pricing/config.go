// Package pricing implements the tiered price-resolution engine and the
// price-configuration document store. The configuration is an explicit value
// passed into every resolution call; persistence is owned by Store, which
// rewrites the JSON document wholesale on mutation and reloads immediately so
// subsequent reads see the update.
package pricing

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/viper"
)

// Price source names accepted in CategoryPriority.
const (
	SourceItemOverride     = "itemOverride"
	SourceItemCategory     = "itemCategory"
	SourceSubInventoryType = "subInventoryType"
	SourceInventoryType    = "inventoryType"
	SourceFallback         = "fallback"
)

// DefaultPriority is the resolution order used when CategoryPriority is empty.
var DefaultPriority = []string{
	SourceItemOverride,
	SourceItemCategory,
	SourceSubInventoryType,
	SourceInventoryType,
	SourceFallback,
}

// Currency describes how RP totals convert to money.
type Currency struct {
	Code             string `mapstructure:"code" json:"code"`
	PerThousandCents int64  `mapstructure:"perThousandCents" json:"perThousandCents"`
}

// DefaultPrices holds the tiered base-price tables.
type DefaultPrices struct {
	InventoryTypes    map[string]int64 `mapstructure:"inventoryTypes" json:"inventoryTypes"`
	ItemCategories    map[string]int64 `mapstructure:"itemCategories" json:"itemCategories"`
	SubInventoryTypes map[string]int64 `mapstructure:"subInventoryTypes" json:"subInventoryTypes"`
}

// Config is the full price-configuration document.
//
// ItemOverrides is keyed by the decimal catalog item id. PriceMultipliers is
// matched case-insensitively against item tags, rarity, and inventory type.
type Config struct {
	Currency         Currency           `mapstructure:"currency" json:"currency"`
	DefaultPrices    DefaultPrices      `mapstructure:"defaultPrices" json:"defaultPrices"`
	ItemOverrides    map[string]int64   `mapstructure:"itemOverrides" json:"itemOverrides"`
	FallbackPrice    int64              `mapstructure:"fallbackPrice" json:"fallbackPrice"`
	PriceMultipliers map[string]float64 `mapstructure:"priceMultipliers" json:"priceMultipliers"`
	CategoryPriority []string           `mapstructure:"categoryPriority" json:"categoryPriority"`
}

// DefaultConfig returns the configuration written when no document exists yet.
func DefaultConfig() *Config {
	return &Config{
		Currency: Currency{Code: "USD", PerThousandCents: 800},
		DefaultPrices: DefaultPrices{
			InventoryTypes:    map[string]int64{},
			ItemCategories:    map[string]int64{},
			SubInventoryTypes: map[string]int64{},
		},
		ItemOverrides:    map[string]int64{},
		FallbackPrice:    490,
		PriceMultipliers: map[string]float64{},
		CategoryPriority: append([]string(nil), DefaultPriority...),
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's in-memory document.
func (c *Config) Clone() *Config {
	out := &Config{
		Currency:         c.Currency,
		FallbackPrice:    c.FallbackPrice,
		ItemOverrides:    cloneInt64Map(c.ItemOverrides),
		PriceMultipliers: cloneFloatMap(c.PriceMultipliers),
		CategoryPriority: append([]string(nil), c.CategoryPriority...),
		DefaultPrices: DefaultPrices{
			InventoryTypes:    cloneInt64Map(c.DefaultPrices.InventoryTypes),
			ItemCategories:    cloneInt64Map(c.DefaultPrices.ItemCategories),
			SubInventoryTypes: cloneInt64Map(c.DefaultPrices.SubInventoryTypes),
		},
	}
	return out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate rejects negative prices and multiplier factors before any write.
func (c *Config) Validate() error {
	if c.FallbackPrice < 0 {
		return fmt.Errorf("%w: fallback price must be >= 0", ErrInvalidPrice)
	}
	for name, tbl := range map[string]map[string]int64{
		"inventoryTypes":    c.DefaultPrices.InventoryTypes,
		"itemCategories":    c.DefaultPrices.ItemCategories,
		"subInventoryTypes": c.DefaultPrices.SubInventoryTypes,
		"itemOverrides":     c.ItemOverrides,
	} {
		for k, v := range tbl {
			if v < 0 {
				return fmt.Errorf("%w: %s[%s] = %d", ErrInvalidPrice, name, k, v)
			}
		}
	}
	for k, v := range c.PriceMultipliers {
		if v < 0 {
			return fmt.Errorf("%w: priceMultipliers[%s] = %v", ErrInvalidMultiplier, k, v)
		}
	}
	for _, src := range c.CategoryPriority {
		switch src {
		case SourceItemOverride, SourceItemCategory, SourceSubInventoryType,
			SourceInventoryType, SourceFallback:
		default:
			return fmt.Errorf("%w: unknown price source %q", ErrInvalidPrice, src)
		}
	}
	return nil
}

// Validation errors, wrapped into the messages above.
var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidMultiplier = errors.New("invalid multiplier")
	ErrUnknownTable      = errors.New("unknown price table")
)

// Store owns the price-configuration document at a fixed path. All reads go
// through Config(); all writes go through Save(), which persists the whole
// document and replaces the in-memory copy. Two concurrent writers are not
// reconciled: last writer wins, as in the reference behavior.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewStore creates a Store for the document at path. Call Load before use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the document from disk. A missing file seeds the defaults and
// writes them so the document exists for subsequent mutations.
func (s *Store) Load() error {
	if _, err := os.Stat(s.path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return s.Save(DefaultConfig())
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Config returns a deep copy of the current document.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return DefaultConfig()
	}
	return s.cfg.Clone()
}

// Save validates cfg, rewrites the document wholesale, and installs the new
// copy in memory so subsequent resolutions see it immediately.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.Set("currency", map[string]any{
		"code":             cfg.Currency.Code,
		"perThousandCents": cfg.Currency.PerThousandCents,
	})
	v.Set("defaultPrices", map[string]any{
		"inventoryTypes":    cfg.DefaultPrices.InventoryTypes,
		"itemCategories":    cfg.DefaultPrices.ItemCategories,
		"subInventoryTypes": cfg.DefaultPrices.SubInventoryTypes,
	})
	v.Set("itemOverrides", cfg.ItemOverrides)
	v.Set("fallbackPrice", cfg.FallbackPrice)
	v.Set("priceMultipliers", cfg.PriceMultipliers)
	v.Set("categoryPriority", cfg.CategoryPriority)
	if err := v.WriteConfigAs(s.path); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg.Clone()
	s.mu.Unlock()
	return nil
}

// Reset restores the default document.
func (s *Store) Reset() error { return s.Save(DefaultConfig()) }

// SetItemOverride sets the per-item price override for itemID.
func (s *Store) SetItemOverride(itemID string, price int64) error {
	if price < 0 {
		return fmt.Errorf("%w: override must be >= 0", ErrInvalidPrice)
	}
	cfg := s.Config()
	cfg.ItemOverrides[itemID] = price
	return s.Save(cfg)
}

// ClearItemOverride removes the per-item override for itemID, if any.
func (s *Store) ClearItemOverride(itemID string) error {
	cfg := s.Config()
	delete(cfg.ItemOverrides, itemID)
	return s.Save(cfg)
}

// SetTierPrice sets key in one of the tiered tables: "inventoryTypes",
// "itemCategories", or "subInventoryTypes".
func (s *Store) SetTierPrice(table, key string, price int64) error {
	if price < 0 {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidPrice)
	}
	cfg := s.Config()
	switch table {
	case "inventoryTypes":
		cfg.DefaultPrices.InventoryTypes[key] = price
	case "itemCategories":
		cfg.DefaultPrices.ItemCategories[key] = price
	case "subInventoryTypes":
		cfg.DefaultPrices.SubInventoryTypes[key] = price
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return s.Save(cfg)
}

// ClearTierPrice deletes key from one of the tiered tables.
func (s *Store) ClearTierPrice(table, key string) error {
	cfg := s.Config()
	switch table {
	case "inventoryTypes":
		delete(cfg.DefaultPrices.InventoryTypes, key)
	case "itemCategories":
		delete(cfg.DefaultPrices.ItemCategories, key)
	case "subInventoryTypes":
		delete(cfg.DefaultPrices.SubInventoryTypes, key)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return s.Save(cfg)
}

// SetMultiplier sets a named multiplicative modifier.
func (s *Store) SetMultiplier(name string, factor float64) error {
	if factor < 0 {
		return fmt.Errorf("%w: factor must be >= 0", ErrInvalidMultiplier)
	}
	cfg := s.Config()
	cfg.PriceMultipliers[name] = factor
	return s.Save(cfg)
}

// ClearMultiplier removes a named modifier, if present.
func (s *Store) ClearMultiplier(name string) error {
	cfg := s.Config()
	delete(cfg.PriceMultipliers, name)
	return s.Save(cfg)
}

// SetFallbackPrice sets the last-resort price.
func (s *Store) SetFallbackPrice(price int64) error {
	if price < 0 {
		return fmt.Errorf("%w: fallback must be >= 0", ErrInvalidPrice)
	}
	cfg := s.Config()
	cfg.FallbackPrice = price
	return s.Save(cfg)
}
