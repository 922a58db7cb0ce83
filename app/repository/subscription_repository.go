package repository

import (
	"errors"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByUserID retrieves the subscription owned by the given user
func (r *subscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetOrCreateByUserID returns the user's subscription, creating it in pending
// state on first contact. Concurrent creations for the same user are resolved
// by the unique index on user_id.
func (r *subscriptionRepository) GetOrCreateByUserID(userID uint) (*models.Subscription, error) {
	sub, err := r.GetByUserID(userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Subscription{
		UserID: userID,
		Status: models.SubscriptionStatusPending,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(created).Error; err != nil {
		return nil, err
	}

	// Re-read so a racing creator's row is returned with its real ID.
	return r.GetByUserID(userID)
}

// UpdateStatus persists a status transition and refreshes the modified timestamp
func (r *subscriptionRepository) UpdateStatus(sub *models.Subscription, status string) error {
	now := time.Now()
	if err := r.db.Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"status":      status,
			"modified_at": now,
		}).Error; err != nil {
		return err
	}
	sub.Status = status
	sub.ModifiedAt = now
	return nil
}

// ListByStatus returns all subscriptions currently in the given status
func (r *subscriptionRepository) ListByStatus(status string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ?", status).Order("id ASC").Find(&subs).Error
	return subs, err
}
