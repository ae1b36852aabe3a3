package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	listsvc "house-marketplace/internal/application/listings"
	"house-marketplace/internal/application/uploads"
	"house-marketplace/internal/domain"
	"house-marketplace/internal/infrastructure/database"
	"house-marketplace/internal/middleware"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testUserHeader = "X-Test-User"

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (b *fakeBlobs) Put(ctx context.Context, key, contentType string, body io.Reader, size int64, progress uploads.ProgressFunc) (string, error) {
	_, _ = io.Copy(io.Discard, body)
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()
	return "https://cdn.example.com/" + key, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error { return nil }

type fixture struct {
	app   *fiber.App
	store *database.ListingStore
	blobs *fakeBlobs
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	store := &database.ListingStore{DB: db}
	blobs := &fakeBlobs{}
	h := &Handlers{Service: &listsvc.Service{
		Store: store,
		Blobs: blobs,
		Now:   func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) },
	}}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get(testUserHeader); id != "" {
			c.Locals("user", map[string]interface{}{"user_id": id})
		}
		return c.Next()
	})
	g := app.Group("/api/v1/listings")
	g.Get("/category/:type", h.Category)
	g.Get("/offers", h.Offers)
	g.Get("/mine", middleware.RequireAuth(), h.Mine)
	g.Get("/nearby", h.Nearby)
	g.Post("/", middleware.RequireAuth(), h.Create)
	g.Get("/:id", h.Get)
	g.Get("/:id/edit", middleware.RequireAuth(), h.EditForm)
	g.Get("/:id/events", middleware.RequireAuth(), h.Events)
	g.Put("/:id", middleware.RequireAuth(), h.Update)
	g.Delete("/:id", middleware.RequireAuth(), h.Delete)

	return &fixture{app: app, store: store, blobs: blobs}
}

type envelope struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		Redirect string `json:"redirect"`
		Toasts   []struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		} `json:"toasts"`
	} `json:"metadata"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var env envelope
	b, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(b, &env)
	return resp.StatusCode, env
}

func listingForm(t *testing.T, method, target string, fields map[string]string, files ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i, name := range files {
		field := "images"
		if i == 0 {
			field = "coverImage"
		}
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte("jpeg-bytes"))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"type":         "rent",
		"name":         "Bright loft near the park",
		"bedrooms":     "2",
		"bathrooms":    "1",
		"parking":      "true",
		"furnished":    "false",
		"address":      "12 Park Lane, London",
		"offer":        "false",
		"regularPrice": "1800",
		"latitude":     "51.5074",
		"longitude":    "-0.1278",
	}
}

func seed(t *testing.T, f *fixture, owner uuid.UUID) *domain.Listing {
	t.Helper()
	l := &domain.Listing{
		Type:         domain.ListingTypeSale,
		Name:         "Stone cottage by the sea",
		Bedrooms:     3,
		Bathrooms:    2,
		RegularPrice: 320000,
		Location:     "1 Harbour Rd",
		Geolocation:  domain.Geolocation{Lat: 50.1, Lng: -5.5},
		Geohash:      "gbuj4b7j8",
		ImageURLs:    domain.ImageURLs{"https://cdn.example.com/a.jpg"},
		UserRef:      owner,
		Timestamp:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.store.Create(context.Background(), l, owner))
	return l
}

func TestCreate_Success(t *testing.T) {
	f := setup(t)
	owner := uuid.New()
	req := listingForm(t, "POST", "/api/v1/listings/", validFields(), "cover.jpg", "kitchen.jpg")
	req.Header.Set(testUserHeader, owner.String())

	status, env := do(t, f.app, req)
	require.Equal(t, fiber.StatusCreated, status, env.Error.Message)

	var l domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.Equal(t, owner, l.UserRef)
	require.Len(t, l.ImageURLs, 2)
	assert.Contains(t, l.ImageURLs[0], "cover.jpg")
	assert.Equal(t, "/category/rent/"+l.ListingID.String(), env.Metadata.Redirect)
	require.Len(t, env.Metadata.Toasts, 1)
	assert.Equal(t, listsvc.MsgCreated, env.Metadata.Toasts[0].Message)

	stored, err := f.store.Get(context.Background(), l.ListingID)
	require.NoError(t, err)
	assert.Equal(t, "12 Park Lane, London", stored.Location)
}

func TestCreate_RequiresAuth(t *testing.T) {
	f := setup(t)
	status, _ := do(t, f.app, listingForm(t, "POST", "/api/v1/listings/", validFields(), "cover.jpg"))
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestCreate_PriceOrderRejected(t *testing.T) {
	f := setup(t)
	fields := validFields()
	fields["offer"] = "true"
	fields["discountedPrice"] = "1800"
	req := listingForm(t, "POST", "/api/v1/listings/", fields, "cover.jpg")
	req.Header.Set(testUserHeader, uuid.New().String())

	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, listsvc.MsgPriceOrder, env.Error.Message)
	require.NotEmpty(t, env.Metadata.Toasts)
	assert.Equal(t, "error", env.Metadata.Toasts[0].Level)
	assert.Empty(t, f.blobs.keys)
}

func TestCreate_BadFieldValue(t *testing.T) {
	f := setup(t)
	fields := validFields()
	fields["bedrooms"] = "two"
	req := listingForm(t, "POST", "/api/v1/listings/", fields, "cover.jpg")
	req.Header.Set(testUserHeader, uuid.New().String())

	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "bedrooms must be a whole number", env.Error.Message)
}

func TestCreate_TooManyImages(t *testing.T) {
	f := setup(t)
	req := listingForm(t, "POST", "/api/v1/listings/", validFields(), "1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "6.jpg", "7.jpg")
	req.Header.Set(testUserHeader, uuid.New().String())

	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, listsvc.MsgTooManyImages, env.Error.Message)
	assert.Empty(t, f.blobs.keys)
}

func TestGet(t *testing.T) {
	f := setup(t)
	l := seed(t, f, uuid.New())

	status, env := do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/"+l.ListingID.String(), nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(env.Data), "Stone cottage by the sea")

	status, _ = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/"+uuid.New().String(), nil))
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/not-an-id", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCategoryAndOffers(t *testing.T) {
	f := setup(t)
	seed(t, f, uuid.New())

	status, env := do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/category/sale?limit=5", nil))
	assert.Equal(t, fiber.StatusOK, status)
	var page listsvc.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Listings, 1)
	assert.Nil(t, page.NextCursor)

	status, _ = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/category/castle", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/category/sale?before=yesterday", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/offers", nil))
	assert.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Empty(t, page.Listings)
}

func TestMineAndNearby(t *testing.T) {
	f := setup(t)
	owner := uuid.New()
	seed(t, f, owner)

	req := httptest.NewRequest("GET", "/api/v1/listings/mine", nil)
	req.Header.Set(testUserHeader, owner.String())
	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusOK, status)
	var mine []domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	status, env = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/nearby?lat=50.1&lng=-5.5", nil))
	assert.Equal(t, fiber.StatusOK, status)
	var near []domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &near))
	assert.Len(t, near, 1)

	status, _ = do(t, f.app, httptest.NewRequest("GET", "/api/v1/listings/nearby?lat=abc&lng=1", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestEditForm_ForeignListingRedirects(t *testing.T) {
	f := setup(t)
	l := seed(t, f, uuid.New())

	req := httptest.NewRequest("GET", "/api/v1/listings/"+l.ListingID.String()+"/edit", nil)
	req.Header.Set(testUserHeader, uuid.New().String())
	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "/", env.Metadata.Redirect)
	require.Len(t, env.Metadata.Toasts, 1)
	assert.Equal(t, domain.ErrNotOwner.Error(), env.Metadata.Toasts[0].Message)
	assert.Empty(t, env.Data)
}

func TestEditForm_Owner(t *testing.T) {
	f := setup(t)
	owner := uuid.New()
	l := seed(t, f, owner)

	req := httptest.NewRequest("GET", "/api/v1/listings/"+l.ListingID.String()+"/edit", nil)
	req.Header.Set(testUserHeader, owner.String())
	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusOK, status)
	var out struct {
		Form      map[string]interface{} `json:"form"`
		ImageURLs []string               `json:"imageUrls"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "1 Harbour Rd", out.Form["address"])
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, out.ImageURLs)
}

func TestUpdate_KeepsUnsentFieldsAndImages(t *testing.T) {
	f := setup(t)
	owner := uuid.New()
	l := seed(t, f, owner)

	req := listingForm(t, "PUT", "/api/v1/listings/"+l.ListingID.String(), map[string]string{"regularPrice": "299000"})
	req.Header.Set(testUserHeader, owner.String())
	status, env := do(t, f.app, req)
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)
	assert.Equal(t, listsvc.MsgUpdated, env.Metadata.Toasts[0].Message)

	stored, err := f.store.Get(context.Background(), l.ListingID)
	require.NoError(t, err)
	assert.Equal(t, int64(299000), stored.RegularPrice)
	assert.Equal(t, "Stone cottage by the sea", stored.Name)
	assert.Equal(t, domain.ImageURLs{"https://cdn.example.com/a.jpg"}, stored.ImageURLs)
	assert.Empty(t, f.blobs.keys)
}

func TestUpdate_URLEncoded(t *testing.T) {
	f := setup(t)
	owner := uuid.New()
	l := seed(t, f, owner)

	req := httptest.NewRequest("PUT", "/api/v1/listings/"+l.ListingID.String(), strings.NewReader("furnished=true"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(testUserHeader, owner.String())
	status, env := do(t, f.app, req)
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)

	stored, err := f.store.Get(context.Background(), l.ListingID)
	require.NoError(t, err)
	assert.True(t, stored.Furnished)
}

func TestDeleteAndEvents(t *testing.T) {
	f := setup(t)
	owner := uuid.New()
	l := seed(t, f, owner)
	path := "/api/v1/listings/" + l.ListingID.String()

	req := httptest.NewRequest("DELETE", path, nil)
	req.Header.Set(testUserHeader, uuid.New().String())
	status, _ := do(t, f.app, req)
	assert.Equal(t, fiber.StatusForbidden, status)

	req = httptest.NewRequest("GET", path+"/events", nil)
	req.Header.Set(testUserHeader, owner.String())
	status, env := do(t, f.app, req)
	assert.Equal(t, fiber.StatusOK, status)
	var events []domain.ListingEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, domain.ListingEventCreated, events[0].EventType)

	req = httptest.NewRequest("DELETE", path, nil)
	req.Header.Set(testUserHeader, owner.String())
	status, env = do(t, f.app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Successfully deleted listing", env.Metadata.Toasts[0].Message)

	_, err := f.store.Get(context.Background(), l.ListingID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}
