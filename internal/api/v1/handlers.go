package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/MemberFox/app/controllers"
)

// Pong is the response payload of the ping endpoint.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the v1 operations.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetMemberStatus(c *fiber.Ctx) error
	PutProviderAccount(c *fiber.Ctx) error
	PostReconcile(c *fiber.Ctx) error
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetMemberStatus answers whether a user currently has an active membership.
// Security is enforced via the internal API key middleware attached in the router.
func (s *APIServer) GetMemberStatus(c *fiber.Ctx) error {
	return controllers.HandleMemberStatus(c)
}

// PutProviderAccount links a provider customer reference to a local user.
func (s *APIServer) PutProviderAccount(c *fiber.Ctx) error {
	return controllers.HandleLinkProviderAccount(c)
}

// PostReconcile triggers a reconciliation sweep outside the regular schedule.
func (s *APIServer) PostReconcile(c *fiber.Ctx) error {
	return controllers.HandleReconcileNow(c)
}

// RegisterHandlers attaches the v1 routes to the given router group.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	router.Get("/ping", si.GetPing)
	router.Get("/members/:id/status", si.GetMemberStatus)
	router.Put("/accounts", si.PutProviderAccount)
	router.Post("/reconcile", si.PostReconcile)
}
