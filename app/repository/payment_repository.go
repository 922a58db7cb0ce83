package repository

import (
	"fmt"

	"github.com/ManuelReschke/MemberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// CreateIfNotExists inserts the payment row guarded by the unique index on
// idempotency_key. When two deliveries race, exactly one insert wins; the
// loser observes RowsAffected == 0 and gets the stored row back. The source
// extension row is written in the same transaction, only for the winner.
func (r *paymentRepository) CreateIfNotExists(payment *models.Payment, extension any) (bool, *models.Payment, error) {
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(payment)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if !created || extension == nil {
			return nil
		}

		switch ext := extension.(type) {
		case *models.StripePayment:
			ext.PaymentID = payment.ID
			return tx.Create(ext).Error
		case *models.PretixPayment:
			ext.PaymentID = payment.ID
			return tx.Create(ext).Error
		default:
			return fmt.Errorf("unsupported payment extension type %T", extension)
		}
	})
	if err != nil {
		return false, nil, err
	}

	stored, err := r.GetByIdempotencyKey(payment.IdempotencyKey)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

// GetByIdempotencyKey retrieves a payment by its idempotency key
func (r *paymentRepository) GetByIdempotencyKey(key string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("idempotency_key = ?", key).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListBySubscriptionID returns all ledger rows owned by a subscription
func (r *paymentRepository) ListBySubscriptionID(subscriptionID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("period_end ASC").Find(&payments).Error
	return payments, err
}

// LatestPaidBySubscriptionID returns the paid payment with the greatest
// period_end for a subscription, or gorm.ErrRecordNotFound when none exists.
func (r *paymentRepository) LatestPaidBySubscriptionID(subscriptionID uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("subscription_id = ? AND status = ?", subscriptionID, models.PaymentStatusPaid).
		Order("period_end DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CountPaidBySubscriptionID counts the paid ledger rows for a subscription
func (r *paymentRepository) CountPaidBySubscriptionID(subscriptionID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.PaymentStatusPaid).
		Count(&count).Error
	return count, err
}

// UpdateStatus flips the only mutable column of a ledger row
func (r *paymentRepository) UpdateStatus(payment *models.Payment, status string) error {
	if err := r.db.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Update("status", status).Error; err != nil {
		return err
	}
	payment.Status = status
	return nil
}
