package handlers

import (
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/identity"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ImageHandler struct {
	imageService *services.ImageService
}

func NewImageHandler(imageService *services.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

// Upload stores a standalone image under the shared upload policy.
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	callerID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}

	file, err := uploadedFile(c, "image")
	if err != nil {
		return writeError(c, err)
	}
	if file == nil {
		return writeError(c, services.FieldError("image", "image upload failed: the image field is required"))
	}

	image, err := h.imageService.Save(c.UserContext(), callerID, file)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.DataResponse{
		Message: "Image uploaded successfully",
		Data:    image,
	})
}

// Delete removes an image the caller uploaded.
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	callerID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return writeError(c, services.ErrImageNotFound)
	}

	if err := h.imageService.Delete(c.UserContext(), callerID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Image deleted successfully"})
}
