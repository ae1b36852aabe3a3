package listings

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"house-marketplace/internal/application/form"
	listsvc "house-marketplace/internal/application/listings"
	"house-marketplace/internal/domain"
	"house-marketplace/internal/middleware"
	"house-marketplace/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Multipart file inputs of the listing form.
const (
	fileCover  = "coverImage"
	fileImages = "images"
)

type Handlers struct {
	Service *listsvc.Service
}

// feedback collects the navigator and notifier calls of one request into response metadata.
type feedback struct {
	meta response.Meta
}

func (f *feedback) Navigate(path string) { f.meta.Redirect = path }
func (f *feedback) Success(msg string)   { f.toast("success", msg) }
func (f *feedback) Info(msg string)      { f.toast("info", msg) }
func (f *feedback) Error(msg string)     { f.toast("error", msg) }

func (f *feedback) toast(level, msg string) {
	f.meta.Toasts = append(f.meta.Toasts, response.Toast{Level: level, Message: msg})
}

func session(c *fiber.Ctx) (listsvc.Session, *feedback) {
	fb := &feedback{}
	sess := listsvc.Session{Nav: fb, Notify: fb}
	if id, ok := middleware.CurrentUserID(c); ok {
		sess.Identity = listsvc.StaticIdentity(id)
	}
	return sess, fb
}

// fail maps a listing error to its status. Unknown and persistence errors go to the global error handler.
func fail(c *fiber.Ctx, err error, fb *feedback) error {
	var meta interface{}
	if fb != nil && (fb.meta.Redirect != "" || len(fb.meta.Toasts) > 0) {
		meta = fb.meta
	}
	var ve *domain.ValidationError
	var ue *domain.UploadError
	switch {
	case errors.As(err, &ve):
		return response.ErrorWithMeta(c, ve.Message, fiber.StatusBadRequest, meta)
	case errors.As(err, &ue):
		return response.ErrorWithMeta(c, listsvc.MsgUploadFailed, fiber.StatusBadGateway, meta)
	case errors.Is(err, domain.ErrNotAuthenticated):
		return response.ErrorWithMeta(c, "Unauthorized", fiber.StatusUnauthorized, meta)
	case errors.Is(err, domain.ErrNotOwner):
		return response.ErrorWithMeta(c, err.Error(), fiber.StatusForbidden, meta)
	case errors.Is(err, domain.ErrListingNotFound):
		return response.ErrorWithMeta(c, err.Error(), fiber.StatusNotFound, meta)
	case errors.Is(err, domain.ErrSubmissionInProgress):
		return response.ErrorWithMeta(c, listsvc.MsgInProgress, fiber.StatusConflict, meta)
	case errors.Is(err, domain.ErrGeocoderUnavailable):
		return response.ErrorWithMeta(c, listsvc.MsgGeocoderDown, fiber.StatusBadGateway, meta)
	}
	return err
}

func listingID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.NewValidationError("id", "Invalid listing id")
	}
	return id, nil
}

// Get GET /api/v1/listings/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := listingID(c)
	if err != nil {
		return fail(c, err, nil)
	}
	l, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Listing fetched", l, nil)
}

func pageParams(c *fiber.Ctx) (*listsvc.Cursor, int, error) {
	var after *listsvc.Cursor
	if raw := c.Query("before"); raw != "" {
		cur, err := listsvc.ParseCursor(raw)
		if err != nil {
			return nil, 0, domain.NewValidationError("before", "before must be a nextCursor value")
		}
		after = cur
	}
	return after, c.QueryInt("limit", listsvc.DefaultPageSize), nil
}

// Category GET /api/v1/listings/category/:type?before=&limit=
func (h *Handlers) Category(c *fiber.Ctx) error {
	before, limit, err := pageParams(c)
	if err != nil {
		return fail(c, err, nil)
	}
	page, err := h.Service.ListByType(c.UserContext(), c.Params("type"), before, limit)
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Listings fetched", page, nil)
}

// Offers GET /api/v1/listings/offers?before=&limit=
func (h *Handlers) Offers(c *fiber.Ctx) error {
	before, limit, err := pageParams(c)
	if err != nil {
		return fail(c, err, nil)
	}
	page, err := h.Service.ListOffers(c.UserContext(), before, limit)
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Offers fetched", page, nil)
}

// Mine GET /api/v1/listings/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	ls, err := h.Service.ListByUser(c.UserContext(), userID)
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Listings fetched", ls, nil)
}

// Nearby GET /api/v1/listings/nearby?lat=&lng=&precision=
func (h *Handlers) Nearby(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return response.Error(c, "lat and lng are required coordinates", fiber.StatusBadRequest, nil)
	}
	precision := c.QueryInt("precision", listsvc.DefaultNearbyPrecision)
	if precision < 1 || precision > listsvc.GeohashPrecision {
		return response.Error(c, "precision must be between 1 and 9", fiber.StatusBadRequest, nil)
	}
	ls, err := h.Service.Nearby(c.UserContext(), lat, lng, uint(precision))
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Listings fetched", ls, nil)
}

// EditForm GET /api/v1/listings/:id/edit returns the seeded form for the owner.
func (h *Handlers) EditForm(c *fiber.Ctx) error {
	id, err := listingID(c)
	if err != nil {
		return fail(c, err, nil)
	}
	sess, fb := session(c)
	state, l, err := h.Service.LoadForEdit(c.UserContext(), id, sess)
	if err != nil {
		return fail(c, err, fb)
	}
	return response.Success(c, "Listing form loaded", fiber.Map{
		"listing":   l,
		"form":      state.Values(),
		"imageUrls": state.ExistingImageURLs(),
	}, nil)
}

// Create POST /api/v1/listings (multipart form)
func (h *Handlers) Create(c *fiber.Ctx) error {
	sess, fb := session(c)
	state := form.NewState()
	if err := bindForm(c, state); err != nil {
		fb.Error(validationMessage(err))
		return fail(c, err, fb)
	}
	l, err := h.Service.Submit(c.UserContext(), listsvc.Submission{Form: state}, sess)
	if err != nil {
		return fail(c, err, fb)
	}
	return response.SuccessCreated(c, listsvc.MsgCreated, l, fb.meta)
}

// Update PUT /api/v1/listings/:id (multipart form). Fields left out keep their stored values.
func (h *Handlers) Update(c *fiber.Ctx) error {
	id, err := listingID(c)
	if err != nil {
		return fail(c, err, nil)
	}
	sess, fb := session(c)
	state, _, err := h.Service.LoadForEdit(c.UserContext(), id, sess)
	if err != nil {
		return fail(c, err, fb)
	}
	if err := bindForm(c, state); err != nil {
		fb.Error(validationMessage(err))
		return fail(c, err, fb)
	}
	l, err := h.Service.Submit(c.UserContext(), listsvc.Submission{ListingID: id, Form: state}, sess)
	if err != nil {
		return fail(c, err, fb)
	}
	return response.Success(c, listsvc.MsgUpdated, l, fb.meta)
}

// Delete DELETE /api/v1/listings/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := listingID(c)
	if err != nil {
		return fail(c, err, nil)
	}
	sess, fb := session(c)
	if err := h.Service.Delete(c.UserContext(), id, sess); err != nil {
		return fail(c, err, fb)
	}
	return response.Success(c, "Listing deleted", fiber.Map{"id": id}, fb.meta)
}

// Events GET /api/v1/listings/:id/events
func (h *Handlers) Events(c *fiber.Ctx) error {
	id, err := listingID(c)
	if err != nil {
		return fail(c, err, nil)
	}
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	events, err := h.Service.Events(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Listing events fetched", events, nil)
}

func validationMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

// bindForm applies every submitted listing field and image selection to state, one field at a time.
func bindForm(c *fiber.Ctx, state *form.State) error {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		args := c.Request().PostArgs()
		for _, name := range form.ListingFields.Names() {
			if args.Has(name) {
				if err := state.Apply(name, string(args.Peek(name))); err != nil {
					return err
				}
			}
		}
		return nil
	}

	mf, err := c.MultipartForm()
	if err != nil {
		return domain.NewValidationError("", "Invalid form data")
	}
	for _, name := range form.ListingFields.Names() {
		if vs := mf.Value[name]; len(vs) > 0 {
			if err := state.Apply(name, vs[0]); err != nil {
				return err
			}
		}
	}
	if covers := mf.File[fileCover]; len(covers) > 0 {
		state.SelectCover(fileImage(covers[0]))
	}
	if files := mf.File[fileImages]; len(files) > 0 {
		imgs := make([]form.Image, 0, len(files))
		for _, fh := range files {
			imgs = append(imgs, fileImage(fh))
		}
		if err := state.SelectGallery(imgs...); err != nil {
			return err
		}
	}
	return nil
}

func fileImage(fh *multipart.FileHeader) form.Image {
	return form.Image{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}
