package cart

import (
	"context"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartItemRepository manages persistent cart items. Fulfillment only ever
// clears a customer's cart once their order is placed.
type CartItemRepository struct {
	db *gorm.DB
}

// NewCartItemRepository binds the repository to the provided DB handle.
func NewCartItemRepository(db *gorm.DB) *CartItemRepository {
	return &CartItemRepository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *CartItemRepository) WithTx(tx *gorm.DB) *CartItemRepository {
	if tx == nil {
		return r
	}
	return &CartItemRepository{db: tx}
}

// ClearForUser deletes every cart line owned by userID and returns how many were removed.
func (r *CartItemRepository) ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountForUser returns the number of cart lines for userID.
func (r *CartItemRepository) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CartItem{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
