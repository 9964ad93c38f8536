package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftshop-backend/internal/catalog"
	"github.com/tbourn/go-giftshop-backend/internal/config"
	"github.com/tbourn/go-giftshop-backend/internal/notify"
	"github.com/tbourn/go-giftshop-backend/internal/pricing"
	"github.com/tbourn/go-giftshop-backend/internal/repo"
)

func testConfig(adminToken string) config.Config {
	return config.Config{
		Port:           "0",
		GinMode:        gin.TestMode,
		APIBasePath:    "/api/v1",
		AdminToken:     adminToken,
		MinFriendDays:  7,
		SweepInterval:  time.Hour,
		SweepBatch:     10,
		SweepNotifyRPS: 1,
		StaleOrderAge:  30 * 24 * time.Hour,
		RateRPS:        1000,
		RateBurst:      1000,
		OTEL:           config.OTELConfig{ServiceName: "giftshop-test"},
	}
}

// newTestServer spins up the full router over a throwaway SQLite database and
// a one-item catalog (item 42, pinned at 1350 RP).
func newTestServer(t *testing.T, adminToken string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := repo.OpenSQLite(filepath.Join(dir, fmt.Sprintf("api_test_%d.db", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cat := catalog.NewStore(filepath.Join(dir, "catalog.json"))
	if err := cat.Save([]catalog.Item{
		{ID: 42, Name: "Star Blade", InventoryType: "CHAMPION_SKIN", ItemCategory: "EPIC_SKIN"},
	}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	pr := pricing.NewStore(filepath.Join(dir, "prices.json"))
	if err := pr.Load(); err != nil {
		t.Fatalf("load pricing: %v", err)
	}
	if err := pr.SetItemOverride("42", 1350); err != nil {
		t.Fatalf("seed override: %v", err)
	}

	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:       db,
		Catalog:  cat,
		Pricing:  pr,
		Notifier: notify.NewLogNotifier(zerolog.Nop()),
		Log:      zerolog.Nop(),
	}, testConfig(adminToken))
	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestRouter_HealthAndFallbacks(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(t, r, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no-route status=%d", w.Code)
	}
	var er struct {
		Code string `json:"code"`
	}
	decode(t, w, &er)
	if er.Code != "not_found" {
		t.Fatalf("no-route code=%q", er.Code)
	}

	w = doJSON(t, r, http.MethodDelete, "/healthz", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("no-method status=%d", w.Code)
	}
}

func TestRouter_AdminGate(t *testing.T) {
	// Empty configured token disables the surface outright.
	r, _ := newTestServer(t, "")
	w := doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", nil,
		map[string]string{"X-Admin-Token": "anything"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("disabled admin status=%d", w.Code)
	}

	r, _ = newTestServer(t, "s3cret")

	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", nil,
		map[string]string{"X-Admin-Token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status=%d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", nil,
		map[string]string{"X-Admin-Token": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("valid token status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRouter_CartFlow(t *testing.T) {
	r, _ := newTestServer(t, "")
	user := map[string]string{"X-User-ID": "discord-9", "X-User-Name": "Buyer"}

	w := doJSON(t, r, http.MethodPost, "/api/v1/carts",
		gin.H{"channel_id": "chan-1", "region": "euw"}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("create cart status=%d body=%s", w.Code, w.Body.String())
	}
	var cart struct {
		ID     string `json:"id"`
		Region string `json:"region"`
		Status string `json:"status"`
	}
	decode(t, w, &cart)
	if cart.ID == "" || cart.Status != "active" || cart.Region != "EUW" {
		t.Fatalf("unexpected cart: %+v", cart)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/carts/"+cart.ID+"/items",
		gin.H{"catalog_item_id": 42}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("add item status=%d body=%s", w.Code, w.Body.String())
	}

	// Same catalog item twice is a conflict.
	w = doJSON(t, r, http.MethodPost, "/api/v1/carts/"+cart.ID+"/items",
		gin.H{"catalog_item_id": 42}, user)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate item status=%d", w.Code)
	}
	var er struct {
		Code string `json:"code"`
	}
	decode(t, w, &er)
	if er.Code != "duplicate_item" {
		t.Fatalf("duplicate item code=%q", er.Code)
	}

	// Unknown catalog id maps to 404.
	w = doJSON(t, r, http.MethodPost, "/api/v1/carts/"+cart.ID+"/items",
		gin.H{"catalog_item_id": 999}, user)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown item status=%d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/carts/"+cart.ID, nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("get cart status=%d", w.Code)
	}
	var resp struct {
		Cart struct {
			TotalRP    int64 `json:"total_rp"`
			TotalCents int64 `json:"total_cents"`
		} `json:"cart"`
		Items []struct {
			CatalogItemID int64 `json:"catalog_item_id"`
		} `json:"items"`
	}
	decode(t, w, &resp)
	if resp.Cart.TotalRP != 1350 || len(resp.Items) != 1 || resp.Items[0].CatalogItemID != 42 {
		t.Fatalf("unexpected cart body: %s", w.Body.String())
	}
	// 1350 RP at 800 cents per thousand, rounded.
	if resp.Cart.TotalCents != 1080 {
		t.Fatalf("total_cents=%d", resp.Cart.TotalCents)
	}

	// Malformed and missing ids.
	if w = doJSON(t, r, http.MethodGet, "/api/v1/carts/not-a-uuid", nil, user); w.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid status=%d", w.Code)
	}
	if w = doJSON(t, r, http.MethodGet, "/api/v1/carts/123e4567-e89b-12d3-a456-426614174000", nil, user); w.Code != http.StatusNotFound {
		t.Fatalf("missing cart status=%d", w.Code)
	}
}

func TestRouter_PricingAdmin(t *testing.T) {
	r, _ := newTestServer(t, "s3cret")
	admin := map[string]string{"X-Admin-Token": "s3cret", "X-Admin-ID": "ops-1"}

	w := doJSON(t, r, http.MethodPut, "/api/v1/admin/pricing/fallback",
		gin.H{"price": 500}, admin)
	if w.Code != http.StatusNoContent {
		t.Fatalf("set fallback status=%d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/pricing", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("export status=%d", w.Code)
	}
	var cfg struct {
		FallbackPrice int64 `json:"fallbackPrice"`
	}
	decode(t, w, &cfg)
	if cfg.FallbackPrice != 500 {
		t.Fatalf("fallbackPrice=%d body=%s", cfg.FallbackPrice, w.Body.String())
	}

	// Negative prices are rejected by the store.
	w = doJSON(t, r, http.MethodPut, "/api/v1/admin/pricing/fallback",
		gin.H{"price": -1}, admin)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid fallback status=%d", w.Code)
	}
}
