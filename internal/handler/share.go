package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/pkg/response"
)

type ShareHandler struct {
	service *service.JobService
}

func NewShareHandler(svc *service.JobService) *ShareHandler {
	return &ShareHandler{service: svc}
}

// View handles GET /share/:shareId
// @Summary      Shared video
// @Description  Public data behind a share link. Views are counted once the video is complete.
// @Tags         Share
// @Produce      json
// @Param        shareId path string true "Share ID"
// @Success      200 {object} model.ShareView
// @Failure      404 {object} response.ErrorResponse
// @Router       /share/{shareId} [get]
func (h *ShareHandler) View(c *fiber.Ctx) error {
	view, err := h.service.ViewShare(c.UserContext(), c.Params("shareId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, view)
}
