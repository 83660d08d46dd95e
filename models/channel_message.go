package models

import "time"

// ChannelMessage は接続設定の選択肢を出したメッセージの ts を覚えておく行。
// セットアップ完了時にそのメッセージを削除するために使う。
type ChannelMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChannelID string `gorm:"uniqueIndex;not null"`
	MessageTS string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
