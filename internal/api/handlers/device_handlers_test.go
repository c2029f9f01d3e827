package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/fulfillment-engine/internal/application"
	"github.com/wms-platform/fulfillment-engine/internal/che"
	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/infrastructure/memory"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
)

type testEnv struct {
	store       *memory.Store
	fulfillment *application.FulfillmentService
	registry    *che.Registry
	router      *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := memory.NewStore()
	facility := &domain.Facility{
		FacilityID: "DC1",
		Paths: []domain.Path{
			{PathID: "PATH-1", Segments: []domain.PathSegment{{SegmentOrder: 0, StartCm: 0, EndCm: 1000}}},
		},
		Locations: []domain.Location{
			{LocationID: "L1", Alias: "A-01-01", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 100, TapeID: 11},
			{LocationID: "L2", Alias: "A-01-02", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 300, TapeID: 12},
		},
	}
	if err := store.SaveFacility(ctx, facility); err != nil {
		t.Fatalf("save facility: %v", err)
	}
	if err := store.SaveInventoryItem(ctx, domain.Item{SKU: "SKU-001", GTIN: "00000000000017", DefaultUOM: "each"}); err != nil {
		t.Fatalf("save item: %v", err)
	}
	if err := store.ReplaceStockFor(ctx, "SKU-001", []domain.StockLocation{{SKU: "SKU-001", LocationAlias: "A-01-01", Qty: 100}}); err != nil {
		t.Fatalf("save stock: %v", err)
	}

	logger := logging.New(logging.DefaultConfig("test"))
	fulfillment := application.NewFulfillmentService(
		store.Orders(), store.Instructions(), store.Facilities(),
		store.Workers(), store.Inventory(), store, nil, logger, nil,
	)
	imports := application.NewImportService(
		store.Orders(), store.Facilities(), store.Inventory(),
		store, nil, logger, nil, "DC1",
	)
	purge := application.NewPurgeService(
		store.Orders(), store.Instructions(), store, nil, logger, nil, 24*time.Hour,
	)
	registry := che.NewRegistry(fulfillment, che.NopDispatcher{}, logger, nil)
	t.Cleanup(registry.CloseAll)

	router := gin.New()
	group := router.Group("/api/v1")
	NewDeviceHandlers(registry, logger, nil).RegisterRoutes(group)
	NewImportHandlers(imports, logger).RegisterRoutes(group)
	NewAdminHandlers(fulfillment, purge, logger).RegisterRoutes(group)

	return &testEnv{store: store, fulfillment: fulfillment, registry: registry, router: router}
}

func seedTestOrder(t *testing.T, store *memory.Store, orderID, sku string, qty int) {
	t.Helper()
	order := domain.NewOrderHeader(orderID, "DC1", domain.OrderTypeOutbound, time.Now())
	if _, err := order.AddDetail(sku, "each", "", qty, ""); err != nil {
		t.Fatalf("add detail: %v", err)
	}
	if err := store.SaveOrder(context.Background(), order); err != nil {
		t.Fatalf("save order: %v", err)
	}
	order.ClearDomainEvents()
}

func performRequest(router *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDeviceHandlers_Scan(t *testing.T) {
	t.Run("badge login", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":"U%100"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "SCAN CONTAINER") {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
		if env.registry.Count() != 1 {
			t.Fatalf("sessions = %d", env.registry.Count())
		}
	})

	t.Run("bad json", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("grammar error", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":"X%BOGUS"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "INVALID_SCAN_GRAMMAR") {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":"U%100","mode":"vacuum"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestDeviceHandlers_Button(t *testing.T) {
	t.Run("press while idle re-renders prompt", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/button", `{"position":1,"quantity":2}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "SCAN BADGE") {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("missing position", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/button", `{"quantity":2}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestDeviceHandlers_Display(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodGet, "/api/v1/devices/CHE-9/display", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("renders current prompt", func(t *testing.T) {
		env := newTestEnv(t)
		performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":"U%100"}`)

		rec := performRequest(env.router, http.MethodGet, "/api/v1/devices/CHE-1/display", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "SCAN CONTAINER") {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestDeviceHandlers_Summary(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := performRequest(env.router, http.MethodGet, "/api/v1/devices/CHE-9/summary", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("reports state and counts", func(t *testing.T) {
		env := newTestEnv(t)
		performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":"U%100"}`)

		rec := performRequest(env.router, http.MethodGet, "/api/v1/devices/CHE-1/summary", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"state":"CONTAINER_SELECT"`) {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestDeviceHandlers_CloseSession(t *testing.T) {
	env := newTestEnv(t)
	performRequest(env.router, http.MethodPost, "/api/v1/devices/CHE-1/scan", `{"token":"U%100"}`)

	rec := performRequest(env.router, http.MethodDelete, "/api/v1/devices/CHE-1/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"closed":true`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if env.registry.Count() != 0 {
		t.Fatalf("sessions = %d", env.registry.Count())
	}

	rec = performRequest(env.router, http.MethodGet, "/api/v1/devices/CHE-1/display", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after close = %d", rec.Code)
	}
}
