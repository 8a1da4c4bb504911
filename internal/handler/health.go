package handler

import (
	"github.com/gofiber/fiber/v2"
)

// Collaborators reports which optional integrations are configured
type Collaborators struct {
	GitHub  bool   `json:"github"`
	LLM     bool   `json:"llm"`
	Speech  bool   `json:"speech"`
	Capture bool   `json:"capture"`
	Render  bool   `json:"render"`
	Storage string `json:"storage"`
	Auth    bool   `json:"auth"`
}

// Health handles GET /health
// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /health [get]
func Health(services Collaborators) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	}
}
