package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"house-marketplace/internal/application/form"
	"house-marketplace/internal/application/geocoding"
	"house-marketplace/internal/application/uploads"
	"house-marketplace/internal/contracts"
	"house-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// User-facing messages of the submission flow.
const (
	MsgPriceOrder     = "Discounted price must be less than regular price"
	MsgTooManyImages  = "Unable to upload more than 6 images"
	MsgCoverRequired  = "Please select a cover image"
	MsgInvalidAddress = "Please enter a valid address"
	MsgUploadFailed   = "Unable to upload images"
	MsgInProgress     = "A submission is already in progress"
	MsgGeocoderDown   = "Unable to look up that address right now"
	MsgCreated        = "Listing saved"
	MsgUpdated        = "Listing successfully updated!"
)

// Submission is one create (ListingID zero) or edit of a listing form.
type Submission struct {
	ListingID uuid.UUID
	Form      *form.State
}

func (sub Submission) isEdit() bool {
	return sub.ListingID != uuid.Nil
}

// Submit runs the create/edit pipeline: validate, resolve the address, upload images,
// assemble the document and persist it. Every step is an early exit; on success the
// session is toasted and navigated to the listing's category page.
func (s *Service) Submit(ctx context.Context, sub Submission, sess Session) (*domain.Listing, error) {
	userID, ok := sess.userID()
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}
	if sub.Form == nil {
		return nil, domain.NewValidationError("", "form is required")
	}
	logger := log.With().Str("user_id", userID.String()).Bool("edit", sub.isEdit()).Logger()
	if sub.isEdit() {
		logger = logger.With().Str("listing_id", sub.ListingID.String()).Logger()
	}

	l, err := s.submit(ctx, sub, userID, sess)
	if err != nil {
		s.reportFailure(err, sess)
		logger.Warn().Err(err).Msg("listings: submission failed")
		return nil, err
	}

	if sub.isEdit() {
		sess.success(MsgUpdated)
	} else {
		sess.success(MsgCreated)
	}
	sess.navigate(l.CategoryPath())
	logger.Info().Str("listing_id", l.ListingID.String()).Int("images", len(l.ImageURLs)).Msg("listings: submission saved")
	return l, nil
}

// reportFailure toasts every failure the user can act on. Persistence errors are left to the HTTP error handler.
func (s *Service) reportFailure(err error, sess Session) {
	var ve *domain.ValidationError
	var ue *domain.UploadError
	switch {
	case errors.As(err, &ve):
		sess.error(ve.Message)
	case errors.As(err, &ue):
		sess.error(MsgUploadFailed)
	case errors.Is(err, domain.ErrSubmissionInProgress):
		sess.info(MsgInProgress)
	case errors.Is(err, domain.ErrGeocoderUnavailable):
		sess.error(MsgGeocoderDown)
	}
}

func (s *Service) submit(ctx context.Context, sub Submission, userID uuid.UUID, sess Session) (*domain.Listing, error) {
	values := sub.Form.Values()

	// 0. field rules
	if err := sub.Form.Validate(); err != nil {
		return nil, err
	}

	// 1. price ordering
	if values.Bool(form.FieldOffer) && values.Int(form.FieldDiscountedPrice) >= values.Int(form.FieldRegularPrice) {
		return nil, domain.NewValidationError(form.FieldDiscountedPrice, MsgPriceOrder)
	}

	// 2. image count
	images := sub.Form.Images()
	if len(images) > domain.MaxListingImages {
		return nil, domain.NewValidationError("images", MsgTooManyImages)
	}
	if !sub.isEdit() && len(images) == 0 {
		return nil, domain.NewValidationError("images", MsgCoverRequired)
	}

	// 2a. ownership (edit); the stored document supplies userRef and the kept images
	var existing *domain.Listing
	if sub.isEdit() {
		l, err := s.ownedListing(ctx, sub.ListingID, userID, sess)
		if err != nil {
			return nil, err
		}
		existing = l
	}

	// 2b. one submission at a time per listing / per user create
	if s.Guard != nil {
		key := createGuardKey(userID)
		if sub.isEdit() {
			key = editGuardKey(sub.ListingID)
		}
		release, err := s.Guard.Acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	// 3. geolocation
	geo, location, err := s.resolveLocation(ctx, values)
	if err != nil {
		return nil, err
	}

	// 4. images
	var imageURLs []string
	var uploadedKeys []string
	if len(images) > 0 {
		imageURLs, uploadedKeys, err = s.uploadImages(ctx, userID, images)
		if err != nil {
			return nil, err
		}
	} else {
		imageURLs = existing.ImageURLs
	}

	// 5. document
	userRef := userID
	if existing != nil {
		userRef = existing.UserRef
	}
	doc := assembleDocument(values, imageURLs, geo, location, s.now(), userRef)
	if err := contracts.ValidateListingDocument(doc); err != nil {
		s.discardBlobs(ctx, uploadedKeys)
		return nil, domain.NewValidationError("", "Listing is invalid: %v", err)
	}
	l, err := listingFromDocument(doc)
	if err != nil {
		s.discardBlobs(ctx, uploadedKeys)
		return nil, &domain.PersistenceError{Op: "assemble", Err: err}
	}

	// 6. persistence
	if existing != nil {
		l.ListingID = existing.ListingID
		l.CreatedAt = existing.CreatedAt
		err = s.Store.Replace(ctx, l, userID)
	} else {
		err = s.Store.Create(ctx, l, userID)
	}
	if eventLost(err, l.ListingID) {
		err = nil
	}
	if err != nil {
		s.discardBlobs(ctx, uploadedKeys)
		op := "create"
		if existing != nil {
			op = "replace"
		}
		return nil, &domain.PersistenceError{Op: op, Err: err}
	}
	return l, nil
}

// eventLost reports whether err only says the audit event of a committed write was lost.
// The listing is stored then, so its uploaded images must stay.
func eventLost(err error, id uuid.UUID) bool {
	var ee *domain.EventError
	if !errors.As(err, &ee) {
		return false
	}
	log.Error().Err(ee.Err).Str("listing_id", id.String()).Str("event_type", ee.EventType).Msg("listings: write committed without its event")
	return true
}

// resolveLocation returns the listing point and its location text. With geocoding enabled the
// free-text address is looked up once; otherwise the form's coordinates and raw address are used.
func (s *Service) resolveLocation(ctx context.Context, values form.Values) (domain.Geolocation, string, error) {
	address := values.String(form.FieldAddress)
	if !s.GeocodingEnabled || s.Geocoder == nil {
		return domain.Geolocation{
			Lat: values.Float(form.FieldLatitude),
			Lng: values.Float(form.FieldLongitude),
		}, address, nil
	}

	resp, err := s.Geocoder.Geocode(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrGeocoderUnavailable) {
			return domain.Geolocation{}, "", err
		}
		return domain.Geolocation{}, "", fmt.Errorf("%w: %v", domain.ErrGeocoderUnavailable, err)
	}
	first := resp.First()
	if resp.Status != geocoding.StatusOK || first == nil || strings.Contains(first.FormattedAddress, "undefined") {
		return domain.Geolocation{}, "", domain.NewValidationError(form.FieldAddress, MsgInvalidAddress)
	}
	return domain.Geolocation{
		Lat: first.Geometry.Location.Lat,
		Lng: first.Geometry.Location.Lng,
	}, first.FormattedAddress, nil
}

// uploadImages puts every image concurrently and waits for all of them. URLs come back in
// selection order. If any upload fails the ones that succeeded are deleted.
func (s *Service) uploadImages(ctx context.Context, userID uuid.UUID, images []form.Image) ([]string, []string, error) {
	keys := make([]string, len(images))
	urls := make([]string, len(images))
	done := make([]bool, len(images))

	var g errgroup.Group
	for i, img := range images {
		i, img := i, img
		keys[i] = uploads.ImageKey(userID, img.Name)
		g.Go(func() error {
			url, err := s.putImage(ctx, keys[i], img)
			if err != nil {
				return &domain.UploadError{Key: keys[i], Err: err}
			}
			urls[i] = url
			done[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var uploaded []string
		for i, ok := range done {
			if ok {
				uploaded = append(uploaded, keys[i])
			}
		}
		s.discardBlobs(ctx, uploaded)
		return nil, nil, err
	}
	return urls, keys, nil
}

func (s *Service) putImage(ctx context.Context, key string, img form.Image) (string, error) {
	if img.Open == nil {
		return "", fmt.Errorf("image %q has no content", img.Name)
	}
	rc, err := img.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return s.Blobs.Put(ctx, key, img.ContentType, rc, img.Size, logProgress)
}

func logProgress(p uploads.Progress) {
	log.Debug().Str("key", p.Key).Str("state", p.State).Float64("percent", p.Percent()).Msg("upload progress")
}

// discardBlobs deletes uploaded objects after a failed submission. Failures are only logged.
func (s *Service) discardBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.Blobs.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("listings: failed to delete orphaned image")
		}
	}
}

// assembleDocument turns form values into the persisted document shape: resolved fields are
// added, form-only fields are dropped, and discountedPrice survives only with an offer.
func assembleDocument(values form.Values, imageURLs []string, geo domain.Geolocation, location string, now time.Time, userRef uuid.UUID) map[string]interface{} {
	doc := make(map[string]interface{}, len(values)+6)
	for k, v := range values {
		doc[k] = v
	}
	doc["imageUrls"] = imageURLs
	doc["geolocation"] = geo
	doc["location"] = location
	doc["geohash"] = geohash.EncodeWithPrecision(geo.Lat, geo.Lng, GeohashPrecision)
	doc["timestamp"] = now
	doc["userRef"] = userRef

	delete(doc, "images")
	delete(doc, form.FieldAddress)
	delete(doc, form.FieldLatitude)
	delete(doc, form.FieldLongitude)
	if !values.Bool(form.FieldOffer) {
		delete(doc, form.FieldDiscountedPrice)
	}
	return doc
}

func listingFromDocument(doc map[string]interface{}) (*domain.Listing, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var l domain.Listing
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
