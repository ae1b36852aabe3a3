package form

import (
	"io"

	"house-marketplace/internal/domain"
)

// Values is the field-name → typed-value mapping held by a form.
type Values map[string]interface{}

func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v Values) Int(name string) int64 {
	n, _ := v[name].(int64)
	return n
}

func (v Values) Float(name string) float64 {
	f, _ := v[name].(float64)
	return f
}

func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Image is one selected file. Open is called once per upload attempt.
type Image struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// State is the in-progress listing form: typed field values plus cover and gallery selections.
// It is owned by a single request and is not safe for concurrent use.
type State struct {
	registry *Registry
	values   Values
	cover    *Image
	gallery  []Image
	existing []string
}

// NewState returns a form seeded with the create-flow defaults.
func NewState() *State {
	return &State{
		registry: ListingFields,
		values: Values{
			FieldType:            domain.ListingTypeRent,
			FieldName:            "",
			FieldBedrooms:        int64(1),
			FieldBathrooms:       int64(1),
			FieldParking:         false,
			FieldFurnished:       false,
			FieldAddress:         "",
			FieldOffer:           false,
			FieldRegularPrice:    int64(0),
			FieldDiscountedPrice: int64(0),
			FieldLatitude:        0.0,
			FieldLongitude:       0.0,
		},
	}
}

// FromListing seeds a form from a stored listing (edit flow). The address field starts as the stored location.
func FromListing(l *domain.Listing) *State {
	s := NewState()
	s.values[FieldType] = l.Type
	s.values[FieldName] = l.Name
	s.values[FieldBedrooms] = int64(l.Bedrooms)
	s.values[FieldBathrooms] = int64(l.Bathrooms)
	s.values[FieldParking] = l.Parking
	s.values[FieldFurnished] = l.Furnished
	s.values[FieldAddress] = l.Location
	s.values[FieldOffer] = l.Offer
	s.values[FieldRegularPrice] = l.RegularPrice
	if l.DiscountedPrice != nil {
		s.values[FieldDiscountedPrice] = *l.DiscountedPrice
	}
	s.values[FieldLatitude] = l.Geolocation.Lat
	s.values[FieldLongitude] = l.Geolocation.Lng
	s.existing = append([]string(nil), l.ImageURLs...)
	return s
}

// Apply merges exactly one field's raw input value, coerced to the field's registered type.
func (s *State) Apply(field, raw string) error {
	f, ok := s.registry.Lookup(field)
	if !ok {
		return domain.NewValidationError(field, "unknown field %q", field)
	}
	v, err := f.Parse(raw)
	if err != nil {
		return err
	}
	s.values[field] = v
	return nil
}

// SelectCover records the cover image. It always becomes the first image.
func (s *State) SelectCover(img Image) {
	s.cover = &img
}

// SelectGallery replaces the gallery selection. The gallery input is only enabled once a cover is chosen.
func (s *State) SelectGallery(imgs ...Image) error {
	if s.cover == nil {
		return domain.NewValidationError("images", "Choose a cover image first")
	}
	s.gallery = append([]Image(nil), imgs...)
	return nil
}

// HasCover reports whether a cover image has been selected.
func (s *State) HasCover() bool {
	return s.cover != nil
}

// Images returns the selected images in persisted order: cover first, then gallery.
func (s *State) Images() []Image {
	if s.cover == nil {
		return nil
	}
	out := make([]Image, 0, 1+len(s.gallery))
	out = append(out, *s.cover)
	return append(out, s.gallery...)
}

// ExistingImageURLs returns the stored image URLs the form was seeded with (edit flow).
func (s *State) ExistingImageURLs() []string {
	return append([]string(nil), s.existing...)
}

// Values returns a copy of the current field values.
func (s *State) Values() Values {
	out := make(Values, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Validate runs every registered field's validator against the current values.
func (s *State) Validate() error {
	for _, name := range s.registry.Names() {
		f, _ := s.registry.Lookup(name)
		if f.When != nil && !f.When(s.values) {
			continue
		}
		if err := f.Validate(s.values[name]); err != nil {
			return err
		}
	}
	return nil
}
