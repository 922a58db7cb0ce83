package membership

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// IsMember reports whether the user currently holds a valid membership: a
// subscription exists and is active. A user without any subscription is not a
// member; that is a false, not an error.
func (s *Service) IsMember(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.IsActive(), nil
}
