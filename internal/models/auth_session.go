package models

import "time"

// AuthSession is one refresh-token grant. The raw token is never stored,
// only its SHA-256 hash. Rotation creates a new row pointing at the old one
// via ParentID and revokes the old row; rows are otherwise immutable.
type AuthSession struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	UserID    string  `gorm:"size:36;not null;index"`
	TokenHash string  `gorm:"size:64;uniqueIndex;not null"`
	ParentID  *uint   `gorm:"index"`
	UserAgent string  `gorm:"size:512"`
	IP        string  `gorm:"size:64"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Revoked   bool      `gorm:"default:false;index"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}

// Usable reports whether the refresh token may still be exchanged.
func (a *AuthSession) Usable(now time.Time) bool {
	return !a.Revoked && now.Before(a.ExpiresAt)
}
