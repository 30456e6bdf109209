package readapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/auth"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type fakeReader struct {
	vehicles []catalog.Vehicle
	images   map[string][]catalog.VehicleImage
	runs     []catalog.SyncRun

	lastFilter catalog.PublishedFilter
}

func (f *fakeReader) ListPublished(ctx context.Context, filter catalog.PublishedFilter) ([]catalog.Vehicle, int64, error) {
	f.lastFilter = filter
	return f.vehicles, int64(len(f.vehicles)), nil
}

func (f *fakeReader) FindByID(ctx context.Context, id string) (*catalog.Vehicle, error) {
	for i := range f.vehicles {
		if f.vehicles[i].ID == id {
			return &f.vehicles[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReader) ListImages(ctx context.Context, vehicleID string) ([]catalog.VehicleImage, error) {
	return f.images[vehicleID], nil
}

func (f *fakeReader) ListSyncRuns(ctx context.Context, limit int) ([]catalog.SyncRun, error) {
	return f.runs, nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "drivestocksync",
		Audience:  "catalog-api",
	}
}

func newTestApp(t *testing.T, reader *fakeReader) *fiber.App {
	t.Helper()
	syncCfg := config.SyncConfig{BlockedLocations: []string{"taller"}}
	return NewServer(reader, testAuthConfig(), syncCfg, nil).App()
}

func publishedVehicle(id, plate string) catalog.Vehicle {
	price := 5000.0
	return catalog.Vehicle{
		ID:     id,
		Plate:  plate,
		Title:  "Toyota Corolla",
		Status: catalog.StatusPublished,
		Price:  &price,
	}
}

func TestListVehicles(t *testing.T) {
	reader := &fakeReader{vehicles: []catalog.Vehicle{publishedVehicle("v1", "ABC123")}}
	app := newTestApp(t, reader)

	req := httptest.NewRequest("GET", "/api/vehicles?brand=Toyota&page=2&page_size=10", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			ID    string `json:"id"`
			Plate string `json:"plate"`
		} `json:"data"`
		Meta struct {
			CurrentPage int   `json:"current_page"`
			Total       int64 `json:"total"`
		} `json:"meta"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Plate != "ABC123" {
		t.Fatalf("unexpected payload: %s", raw)
	}
	if body.Meta.CurrentPage != 2 || body.Meta.Total != 1 {
		t.Fatalf("unexpected meta: %+v", body.Meta)
	}

	// 查询条件透传 + 读层兜底的地点排除
	if reader.lastFilter.Brand != "Toyota" || reader.lastFilter.Offset != 10 || reader.lastFilter.Limit != 10 {
		t.Fatalf("unexpected filter: %+v", reader.lastFilter)
	}
	if len(reader.lastFilter.LegacyBlockedLocations) != 1 || reader.lastFilter.LegacyBlockedLocations[0] != "taller" {
		t.Fatalf("legacy blocked locations not applied: %+v", reader.lastFilter.LegacyBlockedLocations)
	}
}

func TestGetVehicle(t *testing.T) {
	v := publishedVehicle("v1", "ABC123")
	reader := &fakeReader{
		vehicles: []catalog.Vehicle{v},
		images: map[string][]catalog.VehicleImage{
			"v1": {{ID: "img1", VehicleID: "v1", SourceURL: "http://img/1.jpg", IsFeatured: true}},
		},
	}
	app := newTestApp(t, reader)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/vehicles/v1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			ID     string `json:"id"`
			Images []struct {
				URL        string `json:"url"`
				IsFeatured bool   `json:"is_featured"`
			} `json:"images"`
		} `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(body.Data.Images) != 1 || !body.Data.Images[0].IsFeatured {
		t.Fatalf("unexpected payload: %s", raw)
	}
}

func TestGetVehicleHidesUnpublished(t *testing.T) {
	archived := publishedVehicle("v2", "XYZ999")
	archived.Status = catalog.StatusArchived
	reader := &fakeReader{vehicles: []catalog.Vehicle{archived}}
	app := newTestApp(t, reader)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/vehicles/v2", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("archived vehicle must 404, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/vehicles/missing", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("missing vehicle must 404, got %d", resp.StatusCode)
	}
}

func TestSyncRunsRequiresAdmin(t *testing.T) {
	reader := &fakeReader{runs: []catalog.SyncRun{{ID: "run1", Type: "full", Status: "completed", StartedAt: time.Now()}}}
	app := newTestApp(t, reader)

	// 无 token
	resp, err := app.Test(httptest.NewRequest("GET", "/admin/sync-runs", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// 非 admin 角色
	token, _, err := auth.GenerateAccessToken(testAuthConfig(), "user1", []string{"viewer"}, time.Hour)
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	req := httptest.NewRequest("GET", "/admin/sync-runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	// admin 角色
	token, _, err = auth.GenerateAccessToken(testAuthConfig(), "ops1", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	req = httptest.NewRequest("GET", "/admin/sync-runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].ID != "run1" {
		t.Fatalf("unexpected payload: %s", raw)
	}
}
