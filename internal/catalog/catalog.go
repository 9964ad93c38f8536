// Package catalog loads the purchasable-item document and normalizes every
// entry into a single tagged record at ingestion time, so downstream code
// never probes alternative field names. The document is a JSON array and is
// read-mostly; the only write path is the bulk "apply resolved prices"
// operation, which rewrites each item's price field in place.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Item is the normalized catalog record. Optional fields are empty strings /
// nil slices, never absent-vs-null variants.
type Item struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Price            int64    `json:"price"`
	InventoryType    string   `json:"inventoryType"`
	SubInventoryType string   `json:"subInventoryType,omitempty"`
	ItemCategory     string   `json:"itemCategory,omitempty"`
	Champion         string   `json:"champion,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Rarity           string   `json:"rarity,omitempty"`
}

// rawItem tolerates the loose field naming of older documents
// ("category" vs "itemCategory"); normalization happens once, here.
type rawItem struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Price            int64    `json:"price"`
	InventoryType    string   `json:"inventoryType"`
	SubInventoryType string   `json:"subInventoryType"`
	ItemCategory     string   `json:"itemCategory"`
	Category         string   `json:"category"`
	Champion         string   `json:"champion"`
	Tags             []string `json:"tags"`
	Rarity           string   `json:"rarity"`
}

func (r rawItem) normalize() Item {
	cat := r.ItemCategory
	if cat == "" {
		cat = r.Category
	}
	return Item{
		ID:               r.ID,
		Name:             r.Name,
		Price:            r.Price,
		InventoryType:    r.InventoryType,
		SubInventoryType: r.SubInventoryType,
		ItemCategory:     cat,
		Champion:         r.Champion,
		Tags:             r.Tags,
		Rarity:           r.Rarity,
	}
}

// Store reads and writes the catalog document at a fixed path and keeps the
// last loaded copy in memory for lookups.
type Store struct {
	path string

	mu    sync.RWMutex
	items []Item
}

// NewStore creates a Store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and normalizes the whole catalog, installing it as the
// in-memory copy. A missing file yields an empty catalog rather than an
// error, so a fresh deployment starts clean.
func (s *Store) Load() ([]Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.install([]Item{})
			return []Item{}, nil
		}
		return nil, err
	}
	var raw []rawItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", s.path, err)
	}
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, r.normalize())
	}
	s.install(items)
	return items, nil
}

// Save rewrites the whole document and installs it as the in-memory copy.
func (s *Store) Save(items []Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return err
	}
	s.install(items)
	return nil
}

// Items returns a copy of the in-memory catalog.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// ByID returns the in-memory item with the given id.
func (s *Store) ByID(id int64) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (s *Store) install(items []Item) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}
