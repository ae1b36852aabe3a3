package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing types (category pages are keyed by these).
const (
	ListingTypeSale = "sale"
	ListingTypeRent = "rent"
)

// MaxListingImages caps imageUrls; the first entry is the cover image.
const MaxListingImages = 6

// ImageURLs stores the ordered image list in a json column and marshals as a plain array.
type ImageURLs []string

// Scan implements sql.Scanner for reading from DB (json column).
func (u *ImageURLs) Scan(value interface{}) error {
	if value == nil {
		*u = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported type for ImageURLs")
	}
	if len(raw) == 0 {
		*u = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(u))
}

// Value implements driver.Valuer for writing to DB.
func (u ImageURLs) Value() (driver.Value, error) {
	if u == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(u))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Cover returns the designated cover image URL, or "" when there are no images.
func (u ImageURLs) Cover() string {
	if len(u) == 0 {
		return ""
	}
	return u[0]
}

// Geolocation is the resolved point of a listing address.
type Geolocation struct {
	Lat float64 `gorm:"column:lat" json:"lat"`
	Lng float64 `gorm:"column:lng" json:"lng"`
}

// Listing is the persisted real-estate record. JSON field names are the document field names.
type Listing struct {
	ListingID       uuid.UUID   `gorm:"column:listing_id;type:uuid;primaryKey" json:"id"`
	Type            string      `gorm:"column:type;type:varchar(10);not null;index" json:"type"`
	Name            string      `gorm:"column:name;type:varchar(32);not null" json:"name"`
	Bedrooms        int         `gorm:"column:bedrooms;not null" json:"bedrooms"`
	Bathrooms       int         `gorm:"column:bathrooms;not null" json:"bathrooms"`
	Parking         bool        `gorm:"column:parking;not null" json:"parking"`
	Furnished       bool        `gorm:"column:furnished;not null" json:"furnished"`
	Offer           bool        `gorm:"column:offer;not null;index" json:"offer"`
	RegularPrice    int64       `gorm:"column:regular_price;not null" json:"regularPrice"`
	DiscountedPrice *int64      `gorm:"column:discounted_price" json:"discountedPrice,omitempty"`
	Location        string      `gorm:"column:location;not null" json:"location"`
	Geolocation     Geolocation `gorm:"embedded;embeddedPrefix:geo_" json:"geolocation"`
	Geohash         string      `gorm:"column:geohash;type:varchar(12);index" json:"geohash"`
	ImageURLs       ImageURLs   `gorm:"column:image_urls;type:json" json:"imageUrls"`
	UserRef         uuid.UUID   `gorm:"column:user_ref;type:uuid;not null;index" json:"userRef"`
	Timestamp       time.Time   `gorm:"column:timestamp;not null;index" json:"timestamp"`
	CreatedAt       time.Time   `gorm:"column:createdAt" json:"createdAt"`
}

func (Listing) TableName() string {
	return "Listings"
}

// BeforeCreate sets listing_id if not already set (DBs without default uuid).
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	return nil
}

// OwnedBy reports whether userID is the listing's owner.
func (l *Listing) OwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && l.UserRef == userID
}

// CategoryPath is where the client lands after a successful create or edit.
func (l *Listing) CategoryPath() string {
	return "/category/" + l.Type + "/" + l.ListingID.String()
}
