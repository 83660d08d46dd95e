package models

import "time"

// 接続タイプ。行が存在しないチャンネルは single として扱う。
const (
	ConnectionSingle   = "single"
	ConnectionMultiple = "multiple"
)

// ChannelSetting はチャンネルごとの接続タイプ設定
type ChannelSetting struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	SlackChannelID   string `gorm:"index:idx_channel_workspace,unique;not null"`
	SlackWorkspaceID string `gorm:"index:idx_channel_workspace,unique;not null"`
	ConnectionType   string `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
