package images

import (
	"context"
	"errors"
	"io"

	"house-marketplace/internal/infrastructure/mongodb"
	"house-marketplace/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Source opens a stored image by key.
type Source interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

type Handlers struct {
	Source Source
}

// Get GET /api/v1/images/* streams an image out of the blob store.
func (h *Handlers) Get(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return response.Error(c, "image key is required", fiber.StatusBadRequest, nil)
	}
	rc, contentType, err := h.Source.Open(c.UserContext(), key)
	if err != nil {
		if errors.Is(err, mongodb.ErrBlobNotFound) {
			return response.Error(c, "Image not found", fiber.StatusNotFound, nil)
		}
		log.Error().Err(err).Str("key", key).Msg("images: open failed")
		return err
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	// fasthttp closes rc once the body is written
	return c.SendStream(rc)
}
