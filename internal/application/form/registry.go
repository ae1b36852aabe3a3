package form

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"house-marketplace/internal/domain"
)

// Kind is the expected type of a registered field.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	}
	return "unknown"
}

// Field describes one form input: how to parse its raw string value and how to validate the typed value.
type Field struct {
	Name     string
	Kind     Kind
	Parse    func(raw string) (interface{}, error)
	Validate func(v interface{}) error
	// When limits validation to states where it returns true (nil means always).
	When func(v Values) bool
}

// Registry maps field names to their typed definitions.
type Registry struct {
	fields map[string]Field
	order  []string
}

// NewRegistry builds a registry; later fields with the same name replace earlier ones.
func NewRegistry(fields ...Field) *Registry {
	r := &Registry{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if _, ok := r.fields[f.Name]; !ok {
			r.order = append(r.order, f.Name)
		}
		r.fields[f.Name] = f
	}
	return r
}

// Lookup returns the field registered under name.
func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Names returns field names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Field names of the listing form.
const (
	FieldType            = "type"
	FieldName            = "name"
	FieldBedrooms        = "bedrooms"
	FieldBathrooms       = "bathrooms"
	FieldParking         = "parking"
	FieldFurnished       = "furnished"
	FieldAddress         = "address"
	FieldOffer           = "offer"
	FieldRegularPrice    = "regularPrice"
	FieldDiscountedPrice = "discountedPrice"
	FieldLatitude        = "latitude"
	FieldLongitude       = "longitude"
)

const (
	minPrice = 50
	maxPrice = 750000000
)

// ListingFields is the registry backing the create and edit listing forms.
var ListingFields = NewRegistry(
	EnumField(FieldType, domain.ListingTypeSale, domain.ListingTypeRent),
	TextField(FieldName, 10, 32),
	IntField(FieldBedrooms, 1, 50),
	IntField(FieldBathrooms, 1, 50),
	BoolField(FieldParking),
	BoolField(FieldFurnished),
	TextField(FieldAddress, 1, 500),
	BoolField(FieldOffer),
	IntField(FieldRegularPrice, minPrice, maxPrice),
	withWhen(IntField(FieldDiscountedPrice, minPrice, maxPrice), func(v Values) bool { return v.Bool(FieldOffer) }),
	FloatField(FieldLatitude, -90, 90),
	FloatField(FieldLongitude, -180, 180),
)

func withWhen(f Field, when func(Values) bool) Field {
	f.When = when
	return f
}

// TextField accepts any string whose rune length is within [min, max].
func TextField(name string, min, max int) Field {
	return Field{
		Name: name,
		Kind: KindText,
		Parse: func(raw string) (interface{}, error) {
			return raw, nil
		},
		Validate: func(v interface{}) error {
			s, _ := v.(string)
			n := utf8.RuneCountInString(strings.TrimSpace(s))
			if n < min || n > max {
				return domain.NewValidationError(name, "%s must be between %d and %d characters", name, min, max)
			}
			return nil
		},
	}
}

// IntField accepts base-10 integers within [min, max].
func IntField(name string, min, max int64) Field {
	return Field{
		Name: name,
		Kind: KindInt,
		Parse: func(raw string) (interface{}, error) {
			n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return nil, domain.NewValidationError(name, "%s must be a whole number", name)
			}
			return n, nil
		},
		Validate: func(v interface{}) error {
			n, _ := v.(int64)
			if n < min || n > max {
				return domain.NewValidationError(name, "%s must be between %d and %d", name, min, max)
			}
			return nil
		},
	}
}

// FloatField accepts decimal numbers within [min, max].
func FloatField(name string, min, max float64) Field {
	return Field{
		Name: name,
		Kind: KindFloat,
		Parse: func(raw string) (interface{}, error) {
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, domain.NewValidationError(name, "%s must be a number", name)
			}
			return f, nil
		},
		Validate: func(v interface{}) error {
			f, _ := v.(float64)
			if f < min || f > max {
				return domain.NewValidationError(name, "%s must be between %g and %g", name, min, max)
			}
			return nil
		},
	}
}

// BoolField accepts only the literals "true" and "false".
func BoolField(name string) Field {
	return Field{
		Name: name,
		Kind: KindBool,
		Parse: func(raw string) (interface{}, error) {
			switch raw {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, domain.NewValidationError(name, "%s must be true or false", name)
		},
		Validate: func(v interface{}) error {
			if _, ok := v.(bool); !ok {
				return domain.NewValidationError(name, "%s must be true or false", name)
			}
			return nil
		},
	}
}

// EnumField accepts one of the given values.
func EnumField(name string, values ...string) Field {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	check := func(s string) error {
		if !allowed[s] {
			return domain.NewValidationError(name, "%s must be one of %s", name, strings.Join(values, ", "))
		}
		return nil
	}
	return Field{
		Name: name,
		Kind: KindEnum,
		Parse: func(raw string) (interface{}, error) {
			if err := check(raw); err != nil {
				return nil, err
			}
			return raw, nil
		},
		Validate: func(v interface{}) error {
			s, _ := v.(string)
			return check(s)
		},
	}
}
