package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/middleware"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/pkg/response"
)

type VideoHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.JobService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/videos
// @Summary      Create video
// @Description  Start generating a narrated video for 1-10 pull requests of one repository
// @Tags         Videos
// @Accept       json
// @Produce      json
// @Param        request body model.CreateVideoRequest true "Pull request URLs"
// @Success      202 {object} model.CreateVideoResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/videos [post]
func (h *VideoHandler) Create(c *fiber.Ctx) error {
	var req model.CreateVideoRequest
	if ok, err := parseAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.Create(c.UserContext(), service.CreateParams{
		OwnerID:    middleware.GetUserID(c),
		Origin:     model.JobOriginApp,
		URLs:       req.PRURLs,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, model.CreateVideoResponse{
		JobID:    job.ID,
		Status:   job.Status,
		ShareID:  job.ShareID,
		ShareURL: h.service.ShareURL(job),
	})
}

// Get handles GET /api/videos/:id
// @Summary      Get video
// @Description  Full job view including pipeline progress and generated assets
// @Tags         Videos
// @Produce      json
// @Param        id path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/videos/{id} [get]
func (h *VideoHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, job)
}

// Retry handles POST /api/videos/:id/retry
// @Summary      Retry video
// @Description  Restart a failed job, or one stuck in rendering, from the first stage
// @Tags         Videos
// @Produce      json
// @Param        id path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/videos/{id}/retry [post]
func (h *VideoHandler) Retry(c *fiber.Ctx) error {
	job, err := h.service.Retry(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, job)
}

// UploadRecording handles POST /api/videos/:id/recording
// @Summary      Upload screen recording
// @Description  Attach a screen recording to the video, replacing any previous one
// @Tags         Videos
// @Accept       multipart/form-data
// @Produce      json
// @Param        id         path     string true  "Job ID"
// @Param        file       formData file   true  "Recording (mp4, webm, mov)"
// @Param        durationMs formData int    false "Recording duration in milliseconds"
// @Success      201 {object} model.ScreenRecording
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/videos/{id}/recording [post]
func (h *VideoHandler) UploadRecording(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	contentType := file.Header.Get("Content-Type")
	if !validRecordingTypes[contentType] {
		return response.ValidationError(c, "Invalid file type", map[string]interface{}{
			"contentType":  contentType,
			"allowedTypes": []string{"video/mp4", "video/webm", "video/quicktime"},
		})
	}

	var durationMs int64
	if raw := c.FormValue("durationMs"); raw != "" {
		durationMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return response.ValidationError(c, "durationMs must be an integer", nil)
		}
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer f.Close()

	rec, err := h.service.UploadRecording(c.UserContext(), middleware.GetUserID(c), c.Params("id"), service.RecordingUpload{
		Body:        f,
		Filename:    file.Filename,
		ContentType: contentType,
		SizeBytes:   file.Size,
		DurationMs:  durationMs,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, rec)
}

// DeleteRecording handles DELETE /api/videos/:id/recording
// @Summary      Delete screen recording
// @Tags         Videos
// @Param        id path string true "Job ID"
// @Success      204
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/videos/{id}/recording [delete]
func (h *VideoHandler) DeleteRecording(c *fiber.Ctx) error {
	if err := h.service.DeleteRecording(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return response.FromError(c, err)
	}
	return response.NoContent(c)
}

var validRecordingTypes = map[string]bool{
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,
}
