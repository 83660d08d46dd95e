package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"teleconnect/models"
	"teleconnect/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
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
		t.Fatalf("fail to migrate test db: %v", err)
	}

	return db
}

func newEventsTestServer(t *testing.T, db *gorm.DB) (*gin.Engine, *services.BotRegistry) {
	t.Helper()

	// ローカル実行と同じく署名検証は飛ばす
	originalSecret := os.Getenv("SLACK_SIGNING_SECRET")
	os.Unsetenv("SLACK_SIGNING_SECRET")
	t.Cleanup(func() { os.Setenv("SLACK_SIGNING_SECRET", originalSecret) })

	registry := services.NewBotRegistry()
	slackFor := services.SlackClientProvider(db)
	pairing := services.NewPairingService(db, registry, slackFor)
	router := services.NewRouter(db, registry, slackFor, pairing)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/bot/slack/events", HandleSlackEvents(db, registry, router))
	return r, registry
}

func TestHandleSlackEventsURLVerification(t *testing.T) {
	db := setupTestDB(t)
	r, _ := newEventsTestServer(t, db)

	body, _ := json.Marshal(map[string]interface{}{
		"type":      "url_verification",
		"challenge": "challenge-value",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bot/slack/events", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "challenge-value", w.Body.String())
}

func TestHandleSlackEventsInvalidPayload(t *testing.T) {
	db := setupTestDB(t)
	r, _ := newEventsTestServer(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bot/slack/events", bytes.NewBufferString("not json"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSlackEventsBotJoinedPostsOptions(t *testing.T) {
	db := setupTestDB(t)
	db.Create(&models.SlackTeam{TeamID: "W1", AccessToken: "xoxb-test", BotUserID: "UBOT"})
	r, _ := newEventsTestServer(t, db)

	defer gock.Off()

	gock.New("https://slack.com").
		Post("/api/chat.postMessage").
		Reply(200).
		JSON(map[string]interface{}{"ok": true, "channel": "C1", "ts": "55.66"})

	body, _ := json.Marshal(map[string]interface{}{
		"type":    "event_callback",
		"team_id": "W1",
		"event": map[string]interface{}{
			"type":    "member_joined_channel",
			"user":    "UBOT",
			"channel": "C1",
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bot/slack/events", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// 選択肢メッセージの ts が覚えられている
	var sentinel models.ChannelMessage
	assert.NoError(t, db.Where("channel_id = ?", "C1").First(&sentinel).Error)
	assert.Equal(t, "55.66", sentinel.MessageTS)
	assert.True(t, gock.IsDone())
}

func TestHandleSlackEventsOtherMemberJoinedIgnored(t *testing.T) {
	db := setupTestDB(t)
	db.Create(&models.SlackTeam{TeamID: "W1", AccessToken: "xoxb-test", BotUserID: "UBOT"})
	r, _ := newEventsTestServer(t, db)

	defer gock.Off()

	body, _ := json.Marshal(map[string]interface{}{
		"type":    "event_callback",
		"team_id": "W1",
		"event": map[string]interface{}{
			"type":    "member_joined_channel",
			"user":    "U-human",
			"channel": "C1",
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bot/slack/events", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.ChannelMessage{}).Count(&count)
	assert.Equal(t, int64(0), count)
	assert.True(t, gock.IsDone())
}

func TestHandleSlackEventsDirectMessageRegistersBot(t *testing.T) {
	db := setupTestDB(t)
	db.Create(&models.SlackTeam{TeamID: "W1", AccessToken: "xoxb-test", BotUserID: "UBOT"})
	r, registry := newEventsTestServer(t, db)

	originalURL := os.Getenv("PUBLIC_URL")
	os.Unsetenv("PUBLIC_URL")
	defer os.Setenv("PUBLIC_URL", originalURL)

	defer gock.Off()

	token := "12345:AAAAAAAAAABBBBBBBBBBccccccccccDDDDD"
	gock.New("https://api.telegram.org").
		Post("/bot" + token + "/getMe").
		Reply(200).
		JSON(map[string]interface{}{
			"ok":     true,
			"result": map[string]interface{}{"id": 12345, "username": "custom_bot"},
		})
	// 登録成功の返信
	gock.New("https://slack.com").
		Post("/api/chat.postMessage").
		Reply(200).
		JSON(map[string]interface{}{"ok": true, "channel": "D1", "ts": "1.2"})
	// 続けて接続の選択肢が出る
	gock.New("https://slack.com").
		Post("/api/chat.postMessage").
		Reply(200).
		JSON(map[string]interface{}{"ok": true, "channel": "D1", "ts": "1.3"})

	body, _ := json.Marshal(map[string]interface{}{
		"type":    "event_callback",
		"team_id": "W1",
		"event": map[string]interface{}{
			"type":         "message",
			"channel":      "D1",
			"channel_type": "im",
			"user":         "U1",
			"text":         token,
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bot/slack/events", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	_, ok := registry.Get("12345")
	assert.True(t, ok)

	var bot models.TeamBot
	assert.NoError(t, db.Where("team_id = ?", "W1").First(&bot).Error)
	assert.Equal(t, "custom_bot", bot.TelegramBotUsername)

	// 選択肢メッセージの ts も覚えられている
	var sentinel models.ChannelMessage
	assert.NoError(t, db.Where("channel_id = ?", "D1").First(&sentinel).Error)
	assert.Equal(t, "1.3", sentinel.MessageTS)
	assert.True(t, gock.IsDone())
}

func TestHandleSlackEventsDirectMessageNotAToken(t *testing.T) {
	db := setupTestDB(t)
	db.Create(&models.SlackTeam{TeamID: "W1", AccessToken: "xoxb-test", BotUserID: "UBOT"})
	r, _ := newEventsTestServer(t, db)

	defer gock.Off()

	gock.New("https://slack.com").
		Post("/api/chat.postMessage").
		Reply(200).
		JSON(map[string]interface{}{"ok": true, "channel": "D1", "ts": "1.2"})

	body, _ := json.Marshal(map[string]interface{}{
		"type":    "event_callback",
		"team_id": "W1",
		"event": map[string]interface{}{
			"type":         "message",
			"channel":      "D1",
			"channel_type": "im",
			"user":         "U1",
			"text":         "hello there",
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bot/slack/events", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.TeamBot{}).Count(&count)
	assert.Equal(t, int64(0), count)
	assert.True(t, gock.IsDone())
}
