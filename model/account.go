package model

import "time"

// Account roles. A game master runs the table; players own one character.
const (
	RolePlayer = "player"
	RoleGM     = "gm"
)

// Account represents a registered user of the companion app.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Role         string     `gorm:"size:16;not null;default:player" json:"role"` // player | gm
	Status       int        `gorm:"default:1" json:"status"`                     // 0=banned 1=normal
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
