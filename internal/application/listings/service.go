package listings

import (
	"context"
	"errors"
	"time"

	"house-marketplace/internal/application/form"
	"house-marketplace/internal/application/geocoding"
	"house-marketplace/internal/application/uploads"
	"house-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog/log"
)

const (
	// GeohashPrecision is stored on every listing (~5m cells).
	GeohashPrecision = 9
	// DefaultNearbyPrecision is the search cell size for Nearby (~5km cells).
	DefaultNearbyPrecision = 5
)

type Service struct {
	Store    Store
	Blobs    uploads.BlobStore
	Geocoder geocoding.Geocoder
	// GeocodingEnabled selects geocoder lookup; when false the form's latitude/longitude are used.
	GeocodingEnabled bool
	Guard            Guard
	Now              func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Page is one page of a category or offers listing.
type Page struct {
	Listings   []domain.Listing `json:"listings"`
	NextCursor *Cursor          `json:"nextCursor,omitempty"`
}

func newPage(ls []domain.Listing, limit int) *Page {
	p := &Page{Listings: ls}
	if p.Listings == nil {
		p.Listings = []domain.Listing{}
	}
	if len(ls) == limit && limit > 0 {
		p.NextCursor = CursorFor(ls[len(ls)-1])
	}
	return p
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 50 {
		return DefaultPageSize
	}
	return limit
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	if id == uuid.Nil {
		return nil, domain.ErrListingNotFound
	}
	return s.Store.Get(ctx, id)
}

// ListByType is the category page: listings of one type, newest first.
func (s *Service) ListByType(ctx context.Context, listingType string, after *Cursor, limit int) (*Page, error) {
	if listingType != domain.ListingTypeSale && listingType != domain.ListingTypeRent {
		return nil, domain.NewValidationError("type", "type must be one of %s, %s", domain.ListingTypeSale, domain.ListingTypeRent)
	}
	limit = pageLimit(limit)
	ls, err := s.Store.Find(ctx, Query{Type: listingType, After: after, Limit: limit})
	if err != nil {
		return nil, err
	}
	return newPage(ls, limit), nil
}

// ListOffers is the offers page: listings with a discounted price, newest first.
func (s *Service) ListOffers(ctx context.Context, after *Cursor, limit int) (*Page, error) {
	limit = pageLimit(limit)
	ls, err := s.Store.Find(ctx, Query{OfferOnly: true, After: after, Limit: limit})
	if err != nil {
		return nil, err
	}
	return newPage(ls, limit), nil
}

// ListByUser returns every listing owned by userID.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Listing, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrNotAuthenticated
	}
	ls, err := s.Store.Find(ctx, Query{UserRef: userID})
	if err != nil {
		return nil, err
	}
	if ls == nil {
		ls = []domain.Listing{}
	}
	return ls, nil
}

// Nearby returns listings inside the geohash cell containing the point or one of its eight neighbours.
func (s *Service) Nearby(ctx context.Context, lat, lng float64, precision uint) ([]domain.Listing, error) {
	if lat < -90 || lat > 90 {
		return nil, domain.NewValidationError("lat", "lat must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return nil, domain.NewValidationError("lng", "lng must be between -180 and 180")
	}
	if precision == 0 || precision > GeohashPrecision {
		precision = DefaultNearbyPrecision
	}
	center := geohash.EncodeWithPrecision(lat, lng, precision)
	cells := append([]string{center}, geohash.Neighbors(center)...)
	ls, err := s.Store.Find(ctx, Query{GeohashPrefixes: cells})
	if err != nil {
		return nil, err
	}
	if ls == nil {
		ls = []domain.Listing{}
	}
	return ls, nil
}

// LoadForEdit fetches a listing and seeds an edit form from it. Only the owner gets a form;
// anyone else is sent home with an error toast.
func (s *Service) LoadForEdit(ctx context.Context, id uuid.UUID, sess Session) (*form.State, *domain.Listing, error) {
	userID, ok := sess.userID()
	if !ok {
		return nil, nil, domain.ErrNotAuthenticated
	}
	l, err := s.ownedListing(ctx, id, userID, sess)
	if err != nil {
		return nil, nil, err
	}
	return form.FromListing(l), l, nil
}

// ownedListing reads id and checks it belongs to userID, redirecting home with a toast otherwise.
func (s *Service) ownedListing(ctx context.Context, id, userID uuid.UUID, sess Session) (*domain.Listing, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			sess.navigate("/")
			sess.error(domain.ErrListingNotFound.Error())
		}
		return nil, err
	}
	if !l.OwnedBy(userID) {
		log.Warn().Str("listing_id", id.String()).Str("user_id", userID.String()).Msg("listings: rejected access by non-owner")
		sess.navigate("/")
		sess.error(domain.ErrNotOwner.Error())
		return nil, domain.ErrNotOwner
	}
	return l, nil
}

// Delete removes an owned listing.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, sess Session) error {
	userID, ok := sess.userID()
	if !ok {
		return domain.ErrNotAuthenticated
	}
	if _, err := s.ownedListing(ctx, id, userID, sess); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, id, userID); err != nil && !eventLost(err, id) {
		return &domain.PersistenceError{Op: "delete", Err: err}
	}
	log.Info().Str("listing_id", id.String()).Str("user_id", userID.String()).Msg("listings: deleted")
	sess.success("Successfully deleted listing")
	return nil
}

// Events returns the audit history of an owned listing, oldest first.
func (s *Service) Events(ctx context.Context, id uuid.UUID, userID uuid.UUID) ([]domain.ListingEvent, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrNotAuthenticated
	}
	if _, err := s.ownedListing(ctx, id, userID, Session{}); err != nil {
		return nil, err
	}
	events, err := s.Store.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.ListingEvent{}
	}
	return events, nil
}
