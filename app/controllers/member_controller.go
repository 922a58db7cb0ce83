package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/ManuelReschke/MemberFox/internal/pkg/cache"
	"github.com/ManuelReschke/MemberFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MemberFox/internal/pkg/membership"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const memberStatusCacheTTL = 60 * time.Second

// HandleMemberStatus answers the membership question for a single user.
// The answer is cached briefly in Redis; webhook processing invalidates the
// key on state transitions so the cache only ever lags by the TTL.
func HandleMemberStatus(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	key := memberCacheKey(uint(userID))
	if cached, err := cache.Get(key); err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"user_id":   userID,
			"is_member": cached == "1",
			"cached":    true,
		})
	}

	svc := membership.NewService(repository.GetGlobalRepositories())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	isMember, err := svc.IsMember(ctx, uint(userID))
	if err != nil {
		log.Errorf("[MemberStatus] lookup for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}

	val := "0"
	if isMember {
		val = "1"
	}
	if err := cache.Set(key, val, memberStatusCacheTTL); err != nil {
		log.Warnf("[MemberStatus] cache write for user %d failed: %v", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":   userID,
		"is_member": isMember,
	})
}

// HandleReconcileNow triggers a reconciliation sweep outside the regular
// schedule. The sweep itself holds the cross-process lock, so concurrent
// triggers collapse into one run.
func HandleReconcileNow(c *fiber.Ctx) error {
	result, err := jobqueue.GetManager().RunReconcileSweepOnce()
	if err != nil {
		if errors.Is(err, membership.ErrSweepAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sweep_already_running"})
		}
		log.Errorf("[Reconcile] manual sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed"})
	}
	if result == nil {
		// Another process holds the sweep lock.
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true, "skipped": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":       true,
		"run_id":   result.RunID,
		"examined": result.Examined,
		"demoted":  result.Demoted,
	})
}
