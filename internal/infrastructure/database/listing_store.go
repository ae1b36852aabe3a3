package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"house-marketplace/internal/application/listings"
	"house-marketplace/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ListingStore is the Postgres listings.Store. Every write records its ListingEvent in the same transaction.
type ListingStore struct {
	DB *gorm.DB
}

var _ listings.Store = (*ListingStore)(nil)

func (s *ListingStore) Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var l domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", id).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *ListingStore) Create(ctx context.Context, l *domain.Listing, actor uuid.UUID) error {
	return s.withEvent(ctx, domain.ListingEventCreated, actor, l, func(tx *gorm.DB) error {
		if err := tx.Create(l).Error; err != nil {
			return fmt.Errorf("Failed to create listing: %w", err)
		}
		return nil
	})
}

func (s *ListingStore) Replace(ctx context.Context, l *domain.Listing, actor uuid.UUID) error {
	return s.withEvent(ctx, domain.ListingEventUpdated, actor, l, func(tx *gorm.DB) error {
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ?", l.ListingID).
			Select("*").Omit("listing_id", "createdAt").
			Updates(l)
		if res.Error != nil {
			return fmt.Errorf("Failed to update listing: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrListingNotFound
		}
		return nil
	})
}

func (s *ListingStore) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	l := &domain.Listing{ListingID: id}
	return s.withEvent(ctx, domain.ListingEventDeleted, actor, l, func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", id).First(l).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrListingNotFound
			}
			return err
		}
		if err := tx.Where("listing_id = ?", id).Delete(&domain.Listing{}).Error; err != nil {
			return fmt.Errorf("Failed to delete listing: %w", err)
		}
		return nil
	})
}

// withEvent runs write and the event insert in one transaction.
func (s *ListingStore) withEvent(ctx context.Context, eventType string, actor uuid.UUID, l *domain.Listing, write func(tx *gorm.DB) error) error {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err := write(tx); err != nil {
		tx.Rollback()
		return err
	}
	eventData, _ := json.Marshal(listings.EventData(l))
	if err := tx.Create(&domain.ListingEvent{
		ListingID:   l.ListingID,
		EventType:   eventType,
		EventData:   datatypes.JSON(eventData),
		ActorUserID: actor,
	}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("Failed to create listing event: %w", err)
	}
	return tx.Commit().Error
}

func (s *ListingStore) Find(ctx context.Context, q listings.Query) ([]domain.Listing, error) {
	db := s.DB.WithContext(ctx).Model(&domain.Listing{})
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	if q.OfferOnly {
		db = db.Where("offer = ?", true)
	}
	if q.UserRef != uuid.Nil {
		db = db.Where("user_ref = ?", q.UserRef)
	}
	if q.After != nil {
		db = db.Where(`("timestamp" < ? OR ("timestamp" = ? AND listing_id < ?))`, q.After.Timestamp, q.After.Timestamp, q.After.ID)
	}
	if len(q.GeohashPrefixes) > 0 {
		cells := s.DB.Where("geohash LIKE ?", q.GeohashPrefixes[0]+"%")
		for _, p := range q.GeohashPrefixes[1:] {
			cells = cells.Or("geohash LIKE ?", p+"%")
		}
		db = db.Where(cells)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var out []domain.Listing
	if err := db.Order(`"timestamp" DESC, listing_id DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ListingStore) Events(ctx context.Context, id uuid.UUID) ([]domain.ListingEvent, error) {
	var events []domain.ListingEvent
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", id).Order(`"createdAt" ASC`).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
