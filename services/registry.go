package services

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teleconnect/models"
)

// BotRegistry は telegram_bot_id から稼働中のクライアントを引く唯一の場所。
// Router も PairingService も独自のクライアントキャッシュを持たない。
type BotRegistry struct {
	mu   sync.RWMutex
	bots map[string]*TelegramClient
}

func NewBotRegistry() *BotRegistry {
	return &BotRegistry{bots: make(map[string]*TelegramClient)}
}

func (r *BotRegistry) Put(client *TelegramClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[client.BotID] = client
}

func (r *BotRegistry) Get(botID string) (*TelegramClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.bots[botID]
	return client, ok
}

func (r *BotRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// RegisterBot はトークンを getMe で検証し、team_bots に upsert して
// クライアントをレジストリに登録する。再提出は保存済みトークンを更新する。
func RegisterBot(db *gorm.DB, registry *BotRegistry, token, teamID string) (*TelegramClient, error) {
	client, err := NewTelegramClient(token)
	if err != nil {
		return nil, err
	}

	bot := models.TeamBot{
		TeamID:              teamID,
		TelegramBotToken:    token,
		TelegramBotUsername: client.Username,
		TelegramBotID:       client.BotID,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "telegram_bot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"telegram_bot_token", "telegram_bot_username", "updated_at"}),
	}).Create(&bot).Error
	if err != nil {
		ReportError(db, err)
		return nil, err
	}

	// webhook はベストエフォート。失敗しても登録自体は生かす
	if publicURL := os.Getenv("PUBLIC_URL"); publicURL != "" {
		if err := client.SetWebhook(publicURL + "/bot/" + client.BotID); err != nil {
			ReportError(db, err)
		}
	}

	registry.Put(client)
	log.Printf("telegram bot @%s registered for team %s", client.Username, teamID)
	return client, nil
}

// LoadRegisteredBots は起動時に team_bots の全行からレジストリを再構築する。
// 個々のボットの失敗は記録して続行する。
func LoadRegisteredBots(db *gorm.DB, registry *BotRegistry) {
	var bots []models.TeamBot
	if err := db.Find(&bots).Error; err != nil {
		ReportError(db, err)
		return
	}

	for _, bot := range bots {
		if _, err := RegisterBot(db, registry, bot.TelegramBotToken, bot.TeamID); err != nil {
			log.Printf("bot setup failed (team: %s, bot: %s): %v", bot.TeamID, bot.TelegramBotID, err)
		}
	}
}

// GetCustomBotForTeam はチームの現在のカスタムボット（最後に登録された行）を返す
func GetCustomBotForTeam(db *gorm.DB, teamID string) (*models.TeamBot, error) {
	var bot models.TeamBot
	err := db.Where("team_id = ?", teamID).Order("id DESC").First(&bot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bot, nil
}
