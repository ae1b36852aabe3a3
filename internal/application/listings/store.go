package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"house-marketplace/internal/domain"

	"github.com/google/uuid"
)

// DefaultPageSize is the category/offers page size ("load more" fetches the next page).
const DefaultPageSize = 10

// Query filters Store.Find. Zero fields do not filter. Results are newest first.
type Query struct {
	Type      string
	OfferOnly bool
	UserRef   uuid.UUID
	// GeohashPrefixes matches listings whose geohash starts with any of the prefixes.
	GeohashPrefixes []string
	// After is the pagination cursor: only listings ordered after it are returned.
	After *Cursor
	Limit int
}

// Cursor is the position of the last listing of a page in (timestamp DESC, id DESC) order.
// Listings sharing a timestamp are told apart by id so "load more" never skips them.
type Cursor struct {
	Timestamp time.Time
	ID        uuid.UUID
}

// CursorFor returns the cursor positioned at l.
func CursorFor(l domain.Listing) *Cursor {
	return &Cursor{Timestamp: l.Timestamp, ID: l.ListingID}
}

// Admits reports whether l comes after the cursor in newest-first order.
func (c Cursor) Admits(l domain.Listing) bool {
	if l.Timestamp.Equal(c.Timestamp) {
		return l.ListingID.String() < c.ID.String()
	}
	return l.Timestamp.Before(c.Timestamp)
}

// MarshalText encodes the cursor as "<RFC 3339 timestamp>_<id>".
func (c Cursor) MarshalText() ([]byte, error) {
	return []byte(c.Timestamp.UTC().Format(time.RFC3339Nano) + "_" + c.ID.String()), nil
}

func (c *Cursor) UnmarshalText(b []byte) error {
	parsed, err := ParseCursor(string(b))
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// ParseCursor reads a cursor written by MarshalText. A bare timestamp is accepted and
// returns every listing stamped strictly earlier.
func ParseCursor(raw string) (*Cursor, error) {
	ts, id, found := strings.Cut(raw, "_")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("cursor %q: %w", raw, err)
	}
	c := &Cursor{Timestamp: t.UTC()}
	if found {
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("cursor %q: %w", raw, err)
		}
	}
	return c, nil
}

// Store is the listing document store. Writes record a ListingEvent for actor.
type Store interface {
	// Get returns domain.ErrListingNotFound when id does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error)
	Create(ctx context.Context, l *domain.Listing, actor uuid.UUID) error
	// Replace overwrites the whole document stored at l.ListingID.
	Replace(ctx context.Context, l *domain.Listing, actor uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error
	Find(ctx context.Context, q Query) ([]domain.Listing, error)
	Events(ctx context.Context, id uuid.UUID) ([]domain.ListingEvent, error)
}

// EventData is the payload recorded with a listing event.
func EventData(l *domain.Listing) map[string]interface{} {
	data := map[string]interface{}{
		"type":          l.Type,
		"name":          l.Name,
		"regular_price": l.RegularPrice,
		"offer":         l.Offer,
		"image_count":   len(l.ImageURLs),
	}
	if l.DiscountedPrice != nil {
		data["discounted_price"] = *l.DiscountedPrice
	}
	return data
}
