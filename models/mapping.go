package models

import "time"

// Mapping は Slack チャンネルと Telegram チャットの永続的なリンク。
// ユニーク制約は (telegram_chat_id, slack_workspace_id, telegram_bot_id)。
// single モードのチャンネル排他性は制約ではなく PairingService の
// delete-then-insert で保証する。
type Mapping struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	TelegramChatID   string `gorm:"index:idx_chat_workspace_bot,unique;not null"`
	SlackChannelID   string `gorm:"not null"`
	SlackWorkspaceID string `gorm:"index:idx_chat_workspace_bot,unique;not null"`
	TelegramBotID    string `gorm:"index:idx_chat_workspace_bot,unique;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
