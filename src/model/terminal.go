package model

import "time"

// Terminal describes one external trading server that the poller
// authenticates against. Credentials are stored encrypted and are only
// decrypted in memory when a poll session is opened.
type Terminal struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:60;uniqueIndex;not null" json:"name"`
	Endpoint     string    `gorm:"size:255;not null" json:"endpoint"`
	GroupKey     string    `gorm:"size:60;not null;index" json:"group_key"`
	APIKeyEnc    string    `gorm:"size:255" json:"-"`
	APISecretEnc string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName controls the exact table name for terminals.
func (Terminal) TableName() string {
	return "terminals"
}
