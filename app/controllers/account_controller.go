package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/ManuelReschke/MemberFox/internal/pkg/membership"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleLinkProviderAccount registers or updates the mapping from a provider
// customer reference to a local user. Called by the main application when a
// checkout starts; webhook events for a customer are unresolvable until the
// link exists.
func HandleLinkProviderAccount(c *fiber.Ctx) error {
	var in membership.ProviderAccountInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := membership.NewService(repository.GetGlobalRepositories())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	account, err := svc.LinkProviderAccount(ctx, in)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
		}
		log.Errorf("[Accounts] linking user %d to %s/%s failed: %v", in.UserID, in.Provider, in.ProviderAccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "link_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":      true,
		"account": account,
	})
}
