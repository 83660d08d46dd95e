package services

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"teleconnect/models"
)

var (
	// ErrInvalidToken は Telegram に拒否されたボットトークン
	ErrInvalidToken = errors.New("invalid telegram bot token")
	// ErrCodeNotFound は (code, bot) で照合できなかったペアリングコード
	ErrCodeNotFound = errors.New("pairing code not found")
	// ErrTeamNotFound は slack_teams に行がないワークスペース
	ErrTeamNotFound = errors.New("slack team not found")
)

// ReportError はエラーをログと error_logs の両方に記録する。
// 記録自体の失敗はログに残すだけで呼び出し側には返さない。
func ReportError(db *gorm.DB, err error) {
	if err == nil {
		return
	}

	log.Printf("error: %v", err)

	entry := models.ErrorLog{
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
	}
	if dbErr := db.Create(&entry).Error; dbErr != nil {
		log.Printf("failed to persist error log: %v", dbErr)
	}
}
