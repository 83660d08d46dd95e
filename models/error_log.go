package models

import "time"

// ErrorLog は運用エラーの永続ログ
type ErrorLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp    time.Time `gorm:"not null"`
	ErrorMessage string    `gorm:"not null"`
	StackTrace   string
}
