package listings

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"house-marketplace/internal/application/form"
	"house-marketplace/internal/application/geocoding"
	"house-marketplace/internal/application/uploads"
	"house-marketplace/internal/domain"

	"github.com/google/uuid"
)

type memStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]domain.Listing
	events   []domain.ListingEvent
	creates  int
	replaces int
	failWith error
	// eventErr is returned after a write has been committed, as a store that lost the event would.
	eventErr error
}

func (m *memStore) committed(id uuid.UUID, eventType string) error {
	if m.eventErr != nil {
		return &domain.EventError{ListingID: id.String(), EventType: eventType, Err: m.eventErr}
	}
	return nil
}

func newMemStore() *memStore {
	return &memStore{listings: map[uuid.UUID]domain.Listing{}}
}

func (m *memStore) put(l domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ListingID] = l
}

func (m *memStore) Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return &l, nil
}

func (m *memStore) Create(ctx context.Context, l *domain.Listing, actor uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.failWith != nil {
		return m.failWith
	}
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	m.listings[l.ListingID] = *l
	if err := m.committed(l.ListingID, domain.ListingEventCreated); err != nil {
		return err
	}
	m.events = append(m.events, domain.ListingEvent{ListingID: l.ListingID, EventType: domain.ListingEventCreated, ActorUserID: actor})
	return nil
}

func (m *memStore) Replace(ctx context.Context, l *domain.Listing, actor uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	if m.failWith != nil {
		return m.failWith
	}
	m.listings[l.ListingID] = *l
	if err := m.committed(l.ListingID, domain.ListingEventUpdated); err != nil {
		return err
	}
	m.events = append(m.events, domain.ListingEvent{ListingID: l.ListingID, EventType: domain.ListingEventUpdated, ActorUserID: actor})
	return nil
}

func (m *memStore) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, id)
	if err := m.committed(id, domain.ListingEventDeleted); err != nil {
		return err
	}
	m.events = append(m.events, domain.ListingEvent{ListingID: id, EventType: domain.ListingEventDeleted, ActorUserID: actor})
	return nil
}

func (m *memStore) Find(ctx context.Context, q Query) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Listing
	for _, l := range m.listings {
		if q.Type != "" && l.Type != q.Type {
			continue
		}
		if q.OfferOnly && !l.Offer {
			continue
		}
		if q.UserRef != uuid.Nil && l.UserRef != q.UserRef {
			continue
		}
		if q.After != nil && !q.After.Admits(l) {
			continue
		}
		if len(q.GeohashPrefixes) > 0 {
			match := false
			for _, p := range q.GeohashPrefixes {
				if strings.HasPrefix(l.Geohash, p) {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ListingID.String() > out[j].ListingID.String()
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) Events(ctx context.Context, id uuid.UUID) ([]domain.ListingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ListingEvent
	for _, e := range m.events {
		if e.ListingID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type memBlobs struct {
	mu      sync.Mutex
	puts    []string
	deleted []string
	failOn  string
	started chan string
	gate    chan struct{}
}

func (b *memBlobs) Put(ctx context.Context, key, contentType string, body io.Reader, size int64, progress uploads.ProgressFunc) (string, error) {
	if b.started != nil {
		b.started <- key
	}
	if b.gate != nil {
		<-b.gate
	}
	_, _ = io.ReadAll(body)
	b.mu.Lock()
	b.puts = append(b.puts, key)
	b.mu.Unlock()
	if b.failOn != "" && strings.Contains(key, b.failOn) {
		return "", errors.New("storage unavailable")
	}
	return "https://cdn.example.com/" + key, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBlobs) putCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.puts)
}

type stubGeocoder struct {
	calls int
	resp  *geocoding.Response
	err   error
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (*geocoding.Response, error) {
	g.calls++
	return g.resp, g.err
}

func okGeocode(address string, lat, lng float64) *geocoding.Response {
	r := geocoding.Result{FormattedAddress: address}
	r.Geometry.Location = geocoding.LatLng{Lat: lat, Lng: lng}
	return &geocoding.Response{Status: geocoding.StatusOK, Results: []geocoding.Result{r}}
}

type toast struct {
	Level   string
	Message string
}

type recorder struct {
	redirects []string
	toasts    []toast
}

func (r *recorder) Navigate(path string)   { r.redirects = append(r.redirects, path) }
func (r *recorder) Success(message string) { r.toasts = append(r.toasts, toast{"success", message}) }
func (r *recorder) Info(message string)    { r.toasts = append(r.toasts, toast{"info", message}) }
func (r *recorder) Error(message string)   { r.toasts = append(r.toasts, toast{"error", message}) }

func sessionFor(userID uuid.UUID) (Session, *recorder) {
	rec := &recorder{}
	return Session{Identity: StaticIdentity(userID), Nav: rec, Notify: rec}, rec
}

func image(name string) form.Image {
	return form.Image{
		Name:        name,
		ContentType: "image/jpeg",
		Size:        4,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("jpeg")), nil
		},
	}
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
