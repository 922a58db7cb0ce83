package router

import (
	"github.com/ManuelReschke/MemberFox/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Provider webhooks are public endpoints. Stripe authenticates via the
	// signature header, Pretix via a shared token in the query string, both
	// checked inside the handlers so invalid deliveries are still recorded.
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
	app.Post("/webhooks/pretix", controllers.HandlePretixWebhook)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
