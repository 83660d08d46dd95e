package models

import "time"

// SlackThread は multiple モードで Telegram チャットごとのスレッドを
// まとめるアンカーメッセージ。(channel, chat) ペアにつき1行、更新されない。
type SlackThread struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	SlackChannelID string `gorm:"index:idx_channel_chat,unique;not null"`
	TelegramChatID string `gorm:"index:idx_channel_chat,unique;not null"`
	ThreadTS       string `gorm:"not null"`
	CreatedAt      time.Time
}
