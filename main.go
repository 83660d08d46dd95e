package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"teleconnect/handlers"
	"teleconnect/models"
	"teleconnect/services"
)

func main() {
	godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "channel_mappings.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	err = db.AutoMigrate(
		&models.SlackTeam{},
		&models.TeamBot{},
		&models.Mapping{},
		&models.PendingMapping{},
		&models.ChannelSetting{},
		&models.SlackThread{},
		&models.ChannelMessage{},
		&models.ErrorLog{},
	)
	if err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	registry := services.NewBotRegistry()
	slackFor := services.SlackClientProvider(db)
	pairing := services.NewPairingService(db, registry, slackFor)
	router := services.NewRouter(db, registry, slackFor, pairing)

	// デフォルトボット (TeleConnectBot)。チームに紐づかないのでレジストリに直接入れる
	var defaultBot *services.TelegramClient
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		defaultBot, err = services.NewTelegramClient(token)
		if err != nil {
			log.Fatalf("failed to initialize default telegram bot: %v", err)
		}
		registry.Put(defaultBot)
		if publicURL := os.Getenv("PUBLIC_URL"); publicURL != "" {
			if err := defaultBot.SetWebhook(publicURL + "/bot/" + defaultBot.BotID); err != nil {
				services.ReportError(db, err)
			}
		}
		log.Printf("default telegram bot @%s ready", defaultBot.Username)
	} else {
		log.Println("TELEGRAM_BOT_TOKEN is not set, starting without a default bot")
	}

	// 登録済みカスタムボットからレジストリを再構築する
	services.LoadRegisteredBots(db, registry)

	r := gin.Default()
	r.POST("/bot/slack/events", handlers.HandleSlackEvents(db, registry, router))
	r.POST("/bot/slack/actions", handlers.HandleSlackActions(db, registry, pairing, slackFor, defaultBot))
	r.GET("/bot/slack/oauth_redirect", handlers.HandleOAuthRedirect(db))
	r.POST("/bot/:botID", handlers.HandleTelegramWebhook(router))

	// 未使用コードの掃除は毎時。リクエスト量とは無関係に回す
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1h", pairing.CleanupOldCodes); err != nil {
		log.Fatalf("failed to schedule code cleanup: %v", err)
	}
	sweeper.Start()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
