package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/middleware"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/pkg/response"
)

// PublicHandler serves the API-key gated /v1 ingestion API
type PublicHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewPublicHandler(svc *service.JobService, v *validator.Validate) *PublicHandler {
	return &PublicHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /v1/videos
// @Summary      Create video (API key)
// @Description  Queue a narrated video for 1-10 pull requests. The optional webhook receives the result.
// @Tags         Public API
// @Accept       json
// @Produce      json
// @Param        request body model.PublicCreateVideoRequest true "Pull request URLs"
// @Success      202 {object} model.PublicCreateVideoResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/videos [post]
func (h *PublicHandler) Create(c *fiber.Ctx) error {
	var req model.PublicCreateVideoRequest
	if ok, err := parseAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.Create(c.UserContext(), service.CreateParams{
		OwnerID:    middleware.GetUserID(c),
		Origin:     model.JobOriginAPI,
		APIKeyID:   middleware.GetAPIKeyID(c),
		URLs:       req.PRURLs,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, model.PublicCreateVideoResponse{
		JobID:     job.ID,
		Status:    job.Status,
		ShareURL:  h.service.ShareURL(job),
		StatusURL: h.service.StatusURL(job),
	})
}

// Status handles GET /v1/videos/:id
// @Summary      Get video status (API key)
// @Tags         Public API
// @Produce      json
// @Param        id path string true "Job ID"
// @Success      200 {object} model.PublicStatusResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/videos/{id} [get]
func (h *PublicHandler) Status(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, model.PublicStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Title:        job.Title,
		Summary:      job.Summary,
		ChangeType:   job.ChangeType,
		ShareURL:     h.service.ShareURL(job),
		VideoURL:     job.VideoURL,
		ThumbnailURL: job.ThumbnailURL,
		Error:        job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	})
}
