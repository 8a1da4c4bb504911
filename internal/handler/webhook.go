package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/pkg/response"
)

type WebhookHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewWebhookHandler(svc *service.JobService, v *validator.Validate) *WebhookHandler {
	return &WebhookHandler{
		service:   svc,
		validator: v,
	}
}

// Render handles POST /webhooks/render, called by the render service
// @Summary      Render completion callback
// @Description  Marks a rendering job complete, or failed when error is set
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        request body model.RenderWebhookPayload true "Render result"
// @Success      200 {object} map[string]string
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /webhooks/render [post]
func (h *WebhookHandler) Render(c *fiber.Ctx) error {
	var req model.RenderWebhookPayload
	if ok, err := parseAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.CompleteRender(c.UserContext(), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, fiber.Map{
		"jobId":  job.ID,
		"status": job.Status,
	})
}
