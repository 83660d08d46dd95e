package models

import "time"

// PendingMapping はペアリングコード発行から確認までの一時的な行。
// 照合成功時に削除され、1時間経過したものは定期掃除で削除される。
type PendingMapping struct {
	Code             string `gorm:"primaryKey"`
	SlackChannelID   string
	SlackUserID      string
	SlackWorkspaceID string
	TelegramBotID    string
	CreatedAt        time.Time
}
