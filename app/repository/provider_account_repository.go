package repository

import (
	"github.com/ManuelReschke/MemberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// providerAccountRepository implements the ProviderAccountRepository interface
type providerAccountRepository struct {
	db *gorm.DB
}

// NewProviderAccountRepository creates a new provider account repository instance
func NewProviderAccountRepository(db *gorm.DB) ProviderAccountRepository {
	return &providerAccountRepository{db: db}
}

// Upsert creates or updates the link between a provider reference and a user
func (r *providerAccountRepository) Upsert(account *models.ProviderAccount) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_account_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"email",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	return r.db.Where("provider = ? AND provider_account_id = ?", account.Provider, account.ProviderAccountID).
		First(account).Error
}

// GetByProviderAccountID resolves a provider reference to its local account link
func (r *providerAccountRepository) GetByProviderAccountID(provider, providerAccountID string) (*models.ProviderAccount, error) {
	var account models.ProviderAccount
	err := r.db.Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListByUserID returns all provider links for a user
func (r *providerAccountRepository) ListByUserID(userID uint) ([]models.ProviderAccount, error) {
	var accounts []models.ProviderAccount
	err := r.db.Where("user_id = ?", userID).Find(&accounts).Error
	return accounts, err
}
