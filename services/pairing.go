package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teleconnect/models"
)

// 未使用コードの寿命。これより古い行は定期掃除で消える。
const pendingCodeMaxAge = time.Hour

// PairingService はペアリングコードの発行・照合とマッピングの作成を担当する
type PairingService struct {
	DB       *gorm.DB
	Bots     *BotRegistry
	SlackFor SlackClientFunc
}

// RedemptionResult は照合に成功したペアリングの内容
type RedemptionResult struct {
	SlackChannelID   string
	SlackWorkspaceID string
	TelegramChatID   string
	TelegramBotID    string
}

func NewPairingService(db *gorm.DB, bots *BotRegistry, slackFor SlackClientFunc) *PairingService {
	return &PairingService{DB: db, Bots: bots, SlackFor: slackFor}
}

// GenerateAndSendCode は一意のコードを発行して pending_mappings に保存し、
// 依頼元の Slack チャンネルに手順とコードを投稿する。
func (s *PairingService) GenerateAndSendCode(channelID, userID, teamID, botUsername, botID string) (string, error) {
	client, err := s.SlackFor(teamID)
	if err != nil {
		return "", err
	}

	code := uuid.NewString()
	pending := models.PendingMapping{
		Code:             code,
		SlackChannelID:   channelID,
		SlackUserID:      userID,
		SlackWorkspaceID: teamID,
		TelegramBotID:    botID,
		CreatedAt:        time.Now(),
	}

	if err := s.DB.Create(&pending).Error; err != nil {
		ReportError(s.DB, err)
		client.PostMessage(channelID, slack.MsgOptionText(
			"An error occurred while generating the code. Please try again.", false))
		return "", err
	}

	instructions := fmt.Sprintf("To connect this Slack channel with a Telegram group, please:\n\n"+
		"1. Add @%s to your Telegram group.\n"+
		"2. Send the following code to the Telegram group:\n\n`%s`", botUsername, code)
	if _, _, err := client.PostMessage(channelID, slack.MsgOptionText(instructions, false)); err != nil {
		ReportError(s.DB, err)
	}

	log.Printf("generated code %s for team %s, channel %s", code, teamID, channelID)
	return code, nil
}

// RedeemCode はコードを (code, bot) で照合してマッピングを作る。
// 見つからなければ ErrCodeNotFound で、呼び出し側は通常メッセージとして扱う。
//
// single モード: そのチャンネルの既存マッピングを全て消してから挿入する。
// multiple モード: (chat, workspace, bot) キーで upsert する。
//
// コードの削除は検索直後に行い、消せた側だけがマッピングを作る。
// 同じコードを複数のチャットが同時に照合しても勝者は 1 つで、
// 負けた側は ErrCodeNotFound になる。マッピング作成の成否に関わらず
// コードは戻らない（使い切り）。
func (s *PairingService) RedeemCode(code, botID, telegramChatID string) (*RedemptionResult, error) {
	var pending models.PendingMapping
	err := s.DB.Where("code = ? AND telegram_bot_id = ?", code, botID).First(&pending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		ReportError(s.DB, err)
		return nil, err
	}

	claim := s.DB.Where("code = ? AND telegram_bot_id = ?", code, botID).Delete(&models.PendingMapping{})
	if claim.Error != nil {
		ReportError(s.DB, claim.Error)
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		// 別の照合が先にコードを消している
		return nil, ErrCodeNotFound
	}

	connectionType := ConnectionTypeFor(s.DB, pending.SlackChannelID, pending.SlackWorkspaceID)

	mapping := models.Mapping{
		TelegramChatID:   telegramChatID,
		SlackChannelID:   pending.SlackChannelID,
		SlackWorkspaceID: pending.SlackWorkspaceID,
		TelegramBotID:    botID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_chat_id"}, {Name: "slack_workspace_id"}, {Name: "telegram_bot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"slack_channel_id", "updated_at"}),
	}

	var insertErr error
	if connectionType == models.ConnectionSingle {
		// チャンネルは同時に 1 つの Telegram チャットとしか繋がらない
		insertErr = s.DB.Transaction(func(tx *gorm.DB) error {
			err := tx.Where("slack_channel_id = ? AND slack_workspace_id = ?",
				pending.SlackChannelID, pending.SlackWorkspaceID).
				Delete(&models.Mapping{}).Error
			if err != nil {
				return err
			}
			return tx.Clauses(conflict).Create(&mapping).Error
		})
	} else {
		insertErr = s.DB.Clauses(conflict).Create(&mapping).Error
	}

	if insertErr != nil {
		ReportError(s.DB, insertErr)
		return nil, insertErr
	}

	log.Printf("paired telegram chat %s with slack channel %s (%s mode)",
		telegramChatID, pending.SlackChannelID, connectionType)

	return &RedemptionResult{
		SlackChannelID:   pending.SlackChannelID,
		SlackWorkspaceID: pending.SlackWorkspaceID,
		TelegramChatID:   telegramChatID,
		TelegramBotID:    botID,
	}, nil
}

// CleanupOldCodes は 1 時間より古い未使用コードを削除する。毎時実行される。
func (s *PairingService) CleanupOldCodes() {
	cutoff := time.Now().Add(-pendingCodeMaxAge)
	result := s.DB.Where("created_at < ?", cutoff).Delete(&models.PendingMapping{})
	if result.Error != nil {
		ReportError(s.DB, result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("cleaned up %d stale pairing codes", result.RowsAffected)
	}
}
