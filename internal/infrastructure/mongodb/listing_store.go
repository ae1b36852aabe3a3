package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"house-marketplace/internal/application/listings"
	"house-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/datatypes"
)

const (
	listingsCollection = "listings"
	eventsCollection   = "listing_events"
)

type geolocationDocument struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

type listingDocument struct {
	ID              string              `bson:"_id"`
	Type            string              `bson:"type"`
	Name            string              `bson:"name"`
	Bedrooms        int                 `bson:"bedrooms"`
	Bathrooms       int                 `bson:"bathrooms"`
	Parking         bool                `bson:"parking"`
	Furnished       bool                `bson:"furnished"`
	Offer           bool                `bson:"offer"`
	RegularPrice    int64               `bson:"regularPrice"`
	DiscountedPrice *int64              `bson:"discountedPrice,omitempty"`
	Location        string              `bson:"location"`
	Geolocation     geolocationDocument `bson:"geolocation"`
	Geohash         string              `bson:"geohash"`
	ImageURLs       []string            `bson:"imageUrls"`
	UserRef         string              `bson:"userRef"`
	Timestamp       time.Time           `bson:"timestamp"`
	CreatedAt       time.Time           `bson:"createdAt"`
}

type eventDocument struct {
	ID          string                 `bson:"_id"`
	ListingID   string                 `bson:"listingId"`
	EventType   string                 `bson:"eventType"`
	EventData   map[string]interface{} `bson:"eventData"`
	ActorUserID string                 `bson:"actorUserId"`
	CreatedAt   time.Time              `bson:"createdAt"`
}

func toDocument(l *domain.Listing) listingDocument {
	return listingDocument{
		ID:              l.ListingID.String(),
		Type:            l.Type,
		Name:            l.Name,
		Bedrooms:        l.Bedrooms,
		Bathrooms:       l.Bathrooms,
		Parking:         l.Parking,
		Furnished:       l.Furnished,
		Offer:           l.Offer,
		RegularPrice:    l.RegularPrice,
		DiscountedPrice: l.DiscountedPrice,
		Location:        l.Location,
		Geolocation:     geolocationDocument{Lat: l.Geolocation.Lat, Lng: l.Geolocation.Lng},
		Geohash:         l.Geohash,
		ImageURLs:       append([]string{}, l.ImageURLs...),
		UserRef:         l.UserRef.String(),
		Timestamp:       l.Timestamp,
		CreatedAt:       l.CreatedAt,
	}
}

func (d listingDocument) toDomain() (domain.Listing, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing %q: bad id: %w", d.ID, err)
	}
	userRef, err := uuid.Parse(d.UserRef)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing %q: bad userRef: %w", d.ID, err)
	}
	return domain.Listing{
		ListingID:       id,
		Type:            d.Type,
		Name:            d.Name,
		Bedrooms:        d.Bedrooms,
		Bathrooms:       d.Bathrooms,
		Parking:         d.Parking,
		Furnished:       d.Furnished,
		Offer:           d.Offer,
		RegularPrice:    d.RegularPrice,
		DiscountedPrice: d.DiscountedPrice,
		Location:        d.Location,
		Geolocation:     domain.Geolocation{Lat: d.Geolocation.Lat, Lng: d.Geolocation.Lng},
		Geohash:         d.Geohash,
		ImageURLs:       domain.ImageURLs(d.ImageURLs),
		UserRef:         userRef,
		Timestamp:       d.Timestamp.UTC(),
		CreatedAt:       d.CreatedAt.UTC(),
	}, nil
}

// ListingStore is the MongoDB listings.Store. Events are written right after the listing write.
type ListingStore struct {
	DB  *mongo.Database
	Now func() time.Time
}

var _ listings.Store = (*ListingStore)(nil)

func NewListingStore(client *mongo.Client, dbName string) *ListingStore {
	return &ListingStore{DB: client.Database(dbName)}
}

func (s *ListingStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *ListingStore) listings() *mongo.Collection {
	return s.DB.Collection(listingsCollection)
}

func (s *ListingStore) events() *mongo.Collection {
	return s.DB.Collection(eventsCollection)
}

// EnsureIndexes creates the indexes backing category pages, profile pages, nearby search and event history.
func (s *ListingStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.listings().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "offer", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "userRef", Value: 1}}},
		{Keys: bson.D{{Key: "geohash", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create listing indexes: %w", err)
	}
	_, err = s.events().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "listingId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

func (s *ListingStore) Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var doc listingDocument
	if err := s.listings().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	l, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *ListingStore) Create(ctx context.Context, l *domain.Listing, actor uuid.UUID) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if _, err := s.listings().InsertOne(ctx, toDocument(l)); err != nil {
		return fmt.Errorf("Failed to create listing: %w", err)
	}
	return s.recordEvent(ctx, domain.ListingEventCreated, actor, l)
}

func (s *ListingStore) Replace(ctx context.Context, l *domain.Listing, actor uuid.UUID) error {
	res, err := s.listings().ReplaceOne(ctx, bson.M{"_id": l.ListingID.String()}, toDocument(l))
	if err != nil {
		return fmt.Errorf("Failed to update listing: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrListingNotFound
	}
	return s.recordEvent(ctx, domain.ListingEventUpdated, actor, l)
}

func (s *ListingStore) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	var doc listingDocument
	if err := s.listings().FindOneAndDelete(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrListingNotFound
		}
		return fmt.Errorf("Failed to delete listing: %w", err)
	}
	l, err := doc.toDomain()
	if err != nil {
		return err
	}
	return s.recordEvent(ctx, domain.ListingEventDeleted, actor, &l)
}

// recordEvent runs after the listing write has committed. A failed insert is logged and
// returned as *domain.EventError so callers know the listing itself is stored.
func (s *ListingStore) recordEvent(ctx context.Context, eventType string, actor uuid.UUID, l *domain.Listing) error {
	_, err := s.events().InsertOne(ctx, eventDocument{
		ID:          uuid.NewString(),
		ListingID:   l.ListingID.String(),
		EventType:   eventType,
		EventData:   listings.EventData(l),
		ActorUserID: actor.String(),
		CreatedAt:   s.now(),
	})
	if err != nil {
		log.Error().Err(err).Str("listing_id", l.ListingID.String()).Str("event_type", eventType).Msg("mongo: failed to record listing event")
		return &domain.EventError{ListingID: l.ListingID.String(), EventType: eventType, Err: err}
	}
	return nil
}

// buildFilter translates a listings.Query into a Mongo filter.
func buildFilter(q listings.Query) bson.M {
	filter := bson.M{}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	if q.OfferOnly {
		filter["offer"] = true
	}
	if q.UserRef != uuid.Nil {
		filter["userRef"] = q.UserRef.String()
	}
	if q.After != nil {
		filter["$and"] = bson.A{bson.M{"$or": bson.A{
			bson.M{"timestamp": bson.M{"$lt": q.After.Timestamp}},
			bson.M{"timestamp": q.After.Timestamp, "_id": bson.M{"$lt": q.After.ID.String()}},
		}}}
	}
	if len(q.GeohashPrefixes) > 0 {
		cells := make(bson.A, 0, len(q.GeohashPrefixes))
		for _, p := range q.GeohashPrefixes {
			cells = append(cells, bson.M{"geohash": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(p)}})
		}
		filter["$or"] = cells
	}
	return filter
}

func (s *ListingStore) Find(ctx context.Context, q listings.Query) ([]domain.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.listings().Find(ctx, buildFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []listingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Listing, 0, len(docs))
	for _, d := range docs {
		l, err := d.toDomain()
		if err != nil {
			log.Warn().Err(err).Msg("mongo: skipping malformed listing")
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *ListingStore) Events(ctx context.Context, id uuid.UUID) ([]domain.ListingEvent, error) {
	cur, err := s.events().Find(ctx, bson.M{"listingId": id.String()}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []eventDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.ListingEvent, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			log.Warn().Err(err).Msg("mongo: skipping malformed listing event")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (d eventDocument) toDomain() (domain.ListingEvent, error) {
	eventID, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.ListingEvent{}, err
	}
	listingID, err := uuid.Parse(d.ListingID)
	if err != nil {
		return domain.ListingEvent{}, err
	}
	actor, err := uuid.Parse(d.ActorUserID)
	if err != nil {
		return domain.ListingEvent{}, err
	}
	data, err := json.Marshal(d.EventData)
	if err != nil {
		return domain.ListingEvent{}, err
	}
	return domain.ListingEvent{
		EventID:     eventID,
		ListingID:   listingID,
		EventType:   d.EventType,
		EventData:   datatypes.JSON(data),
		ActorUserID: actor,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}
