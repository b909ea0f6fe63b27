package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/therapybridge/therapybridge/internal/models"
	"gorm.io/gorm"
)

// ErrRefreshInvalid is returned when a refresh token is unknown, revoked,
// or expired.
var ErrRefreshInvalid = fmt.Errorf("auth: refresh token invalid")

// RefreshStore manages refresh-token rows (auth sessions).
type RefreshStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewRefreshStore builds a RefreshStore with the given token lifetime.
func NewRefreshStore(db *gorm.DB, ttl time.Duration) *RefreshStore {
	return &RefreshStore{db: db, ttl: ttl}
}

// newToken returns a fresh opaque token and its storage hash.
func newToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generate refresh token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a refresh-token row for the user and returns the raw token.
func (s *RefreshStore) Issue(userID, userAgent, ip string) (string, error) {
	token, hash, err := newToken()
	if err != nil {
		return "", err
	}
	row := models.AuthSession{
		UserID:    userID,
		TokenHash: hash,
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("auth: store refresh token: %w", err)
	}
	return token, nil
}

// Rotate exchanges a valid refresh token for a new one, revoking the old
// row. The new row records its parent for audit.
func (s *RefreshStore) Rotate(token, userAgent, ip string) (fresh string, userID string, err error) {
	var row models.AuthSession
	if err := s.db.Where("token_hash = ?", hashToken(token)).First(&row).Error; err != nil {
		return "", "", ErrRefreshInvalid
	}
	if !row.Usable(time.Now()) {
		return "", "", ErrRefreshInvalid
	}

	fresh, hash, err := newToken()
	if err != nil {
		return "", "", err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AuthSession{}).Where("id = ?", row.ID).Update("revoked", true).Error; err != nil {
			return err
		}
		next := models.AuthSession{
			UserID:    row.UserID,
			TokenHash: hash,
			ParentID:  &row.ID,
			UserAgent: userAgent,
			IP:        ip,
			ExpiresAt: time.Now().Add(s.ttl),
		}
		return tx.Create(&next).Error
	})
	if err != nil {
		return "", "", fmt.Errorf("auth: rotate refresh token: %w", err)
	}
	return fresh, row.UserID, nil
}

// Revoke marks the refresh token's row revoked. Unknown tokens are a no-op
// so logout never fails.
func (s *RefreshStore) Revoke(token string) error {
	err := s.db.Model(&models.AuthSession{}).
		Where("token_hash = ?", hashToken(token)).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live refresh token the user holds.
func (s *RefreshStore) RevokeAllForUser(userID string) error {
	err := s.db.Model(&models.AuthSession{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("auth: revoke user tokens: %w", err)
	}
	return nil
}
