package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/middleware"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/pkg/response"
)

type APIKeyHandler struct {
	service   *service.APIKeyService
	validator *validator.Validate
}

func NewAPIKeyHandler(svc *service.APIKeyService, v *validator.Validate) *APIKeyHandler {
	return &APIKeyHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /api/keys
// @Summary      List API keys
// @Tags         API Keys
// @Produce      json
// @Success      200 {array} model.APIKeyView
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/keys [get]
func (h *APIKeyHandler) List(c *fiber.Ctx) error {
	keys, err := h.service.List(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	if keys == nil {
		keys = []model.APIKeyView{}
	}
	return response.OK(c, keys)
}

// Create handles POST /api/keys
// @Summary      Create API key
// @Description  The plaintext key is only returned in this response
// @Tags         API Keys
// @Accept       json
// @Produce      json
// @Param        request body model.CreateAPIKeyRequest false "Key name"
// @Success      201 {object} model.CreateAPIKeyResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/keys [post]
func (h *APIKeyHandler) Create(c *fiber.Ctx) error {
	var req model.CreateAPIKeyRequest
	if len(c.Body()) > 0 {
		if ok, err := parseAndValidate(c, h.validator, &req); !ok {
			return err
		}
	}

	key, err := h.service.Create(c.UserContext(), middleware.GetUserID(c), req.Name)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, key)
}

// Revoke handles DELETE /api/keys/:id
// @Summary      Revoke API key
// @Tags         API Keys
// @Produce      json
// @Param        id path string true "Key ID"
// @Success      200 {object} model.APIKeyView
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/keys/{id} [delete]
func (h *APIKeyHandler) Revoke(c *fiber.Ctx) error {
	view, err := h.service.Revoke(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, view)
}
