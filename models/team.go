package models

import "time"

// SlackTeam は OAuth インストール時に保存されるワークスペースの認証情報
type SlackTeam struct {
	TeamID      string `gorm:"primaryKey"`
	TeamName    string
	AccessToken string `gorm:"not null"`
	BotUserID   string `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
