package models

import "time"

// TeamBot はチームごとに登録されたカスタム Telegram ボット。
// 同じチームが複数のボットを登録でき、ID が最大の行が「現在のカスタムボット」になる。
type TeamBot struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	TeamID              string `gorm:"index:idx_team_bot,unique;not null"`
	TelegramBotToken    string `gorm:"not null"`
	TelegramBotUsername string
	TelegramBotID       string `gorm:"index:idx_team_bot,unique;not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
