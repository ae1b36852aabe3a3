package uploads

import (
	uploadsvc "house-marketplace/internal/application/uploads"
	"house-marketplace/internal/middleware"
	"house-marketplace/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers bundles upload handlers with the service.
// Service is nil when the blob store cannot hand out signed URLs.
type Handlers struct {
	Service *uploadsvc.Service
}

type uploadRequest struct {
	FileName string `json:"file_name"`
}

// ListingImage POST /api/v1/uploads/listing-image
func (h *Handlers) ListingImage(c *fiber.Ctx) error {
	if h.Service == nil {
		return response.Error(c, "Direct uploads are not supported by this storage backend", fiber.StatusNotImplemented, nil)
	}
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req uploadRequest
	if err := c.BodyParser(&req); err != nil || req.FileName == "" {
		return response.Error(c, "file_name is required", fiber.StatusBadRequest, nil)
	}

	res, err := h.Service.GetSignedUploadURL(c.UserContext(), userID, req.FileName)
	if err != nil {
		log.Error().Err(err).Str("bucket", h.Service.Bucket).Str("user_id", userID.String()).Msg("upload: failed to generate signed URL")
		return response.Error(c, "Failed to generate upload URL", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Upload URL generated", res, nil)
}
