package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"teleconnect/services"
)

// setupMetadata はモーダルの private_metadata で持ち回る対象チャンネルとボット
type setupMetadata struct {
	ChannelID   string `json:"channel_id"`
	BotID       string `json:"bot_id"`
	BotUsername string `json:"bot_username"`
}

// HandleSlackActions はボタン押下とモーダル送信の受け口
func HandleSlackActions(db *gorm.DB, registry *services.BotRegistry, pairing *services.PairingService, slackFor services.SlackClientFunc, defaultBot *services.TelegramClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		if !VerifySlackSignature(c.Request, body) {
			log.Println("invalid slack signature")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
			return
		}

		payloadStr := strings.TrimSpace(c.PostForm("payload"))

		var payload slack.InteractionCallback
		if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		teamID := payload.Team.ID
		client, err := slackFor(teamID)
		if err != nil {
			services.ReportError(db, err)
			c.Status(http.StatusInternalServerError)
			return
		}

		switch payload.Type {
		case slack.InteractionTypeBlockActions:
			handleBlockAction(c, db, client, payload, defaultBot)
		case slack.InteractionTypeViewSubmission:
			switch payload.View.CallbackID {
			case "bot_token_submission":
				handleBotTokenSubmission(c, db, registry, client, payload)
			case "setup_connection_submission":
				handleSetupConnectionSubmission(c, db, pairing, payload)
			default:
				c.Status(http.StatusOK)
			}
		default:
			c.Status(http.StatusOK)
		}
	}
}

func handleBlockAction(c *gin.Context, db *gorm.DB, client services.SlackAPI, payload slack.InteractionCallback, defaultBot *services.TelegramClient) {
	if len(payload.ActionCallback.BlockActions) == 0 {
		c.Status(http.StatusOK)
		return
	}

	action := payload.ActionCallback.BlockActions[0]
	channelID := payload.Channel.ID
	teamID := payload.Team.ID

	log.Printf("slack action received: action=%s, channel=%s, user=%s", action.ActionID, channelID, payload.User.ID)

	switch action.ActionID {
	case "connect_teleconnectbot":
		if defaultBot == nil {
			services.ReportError(db, errors.New("default telegram bot is not configured"))
			break
		}
		openSetupModal(db, client, payload.TriggerID, setupMetadata{
			ChannelID:   channelID,
			BotID:       defaultBot.BotID,
			BotUsername: defaultBot.Username,
		})

	case "connect_custom_bot":
		bot, err := services.GetCustomBotForTeam(db, teamID)
		if err != nil {
			services.ReportError(db, err)
			break
		}
		if bot == nil {
			break
		}
		openSetupModal(db, client, payload.TriggerID, setupMetadata{
			ChannelID:   channelID,
			BotID:       bot.TelegramBotID,
			BotUsername: bot.TelegramBotUsername,
		})

	case "create_new_custom_bot":
		meta, _ := json.Marshal(setupMetadata{ChannelID: channelID})
		if err := services.OpenCreateBotModal(client, payload.TriggerID, string(meta)); err != nil {
			services.ReportError(db, err)
		}
	}

	c.Status(http.StatusOK)
}

func openSetupModal(db *gorm.DB, client services.SlackAPI, triggerID string, meta setupMetadata) {
	metaJSON, _ := json.Marshal(meta)
	if err := services.OpenSetupConnectionModal(client, triggerID, string(metaJSON)); err != nil {
		services.ReportError(db, err)
	}
}

// トークン提出モーダル: 形式チェックはモーダル内エラー、検証は Telegram 側に任せる
func handleBotTokenSubmission(c *gin.Context, db *gorm.DB, registry *services.BotRegistry, client services.SlackAPI, payload slack.InteractionCallback) {
	if payload.View.State == nil {
		c.Status(http.StatusOK)
		return
	}

	token := strings.TrimSpace(payload.View.State.Values["bot_token_input"]["bot_token"].Value)
	if !botTokenPattern.MatchString(token) {
		c.JSON(http.StatusOK, gin.H{
			"response_action": "errors",
			"errors": gin.H{
				"bot_token_input": "Invalid Telegram bot token format. Please try again.",
			},
		})
		return
	}

	var meta setupMetadata
	if payload.View.PrivateMetadata != "" {
		if err := json.Unmarshal([]byte(payload.View.PrivateMetadata), &meta); err != nil {
			services.ReportError(db, err)
		}
	}

	bot, err := services.RegisterBot(db, registry, token, payload.Team.ID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			client.PostMessage(payload.User.ID, slack.MsgOptionText(
				"Invalid Telegram bot token. Please ensure you entered the correct token.", false))
		} else {
			client.PostMessage(payload.User.ID, slack.MsgOptionText(
				"An error occurred while saving your bot token. Please try again.", false))
		}
		c.Status(http.StatusOK)
		return
	}

	// 古い選択肢メッセージを消して、新しいボット入りで出し直す
	if meta.ChannelID != "" {
		services.DeleteSentinelMessage(db, client, meta.ChannelID)
		services.SendConnectionOptionsMessage(db, client, meta.ChannelID, bot.Username)
	}

	c.Status(http.StatusOK)
}

// 接続設定モーダル: 接続タイプを保存してペアリングコードを発行する
func handleSetupConnectionSubmission(c *gin.Context, db *gorm.DB, pairing *services.PairingService, payload slack.InteractionCallback) {
	if payload.View.State == nil || payload.View.PrivateMetadata == "" {
		c.Status(http.StatusOK)
		return
	}

	var meta setupMetadata
	if err := json.Unmarshal([]byte(payload.View.PrivateMetadata), &meta); err != nil {
		services.ReportError(db, err)
		c.Status(http.StatusOK)
		return
	}

	connectionType := payload.View.State.Values["connection_type_input"]["connection_type"].SelectedOption.Value
	if err := services.SetConnectionType(db, meta.ChannelID, payload.Team.ID, connectionType); err != nil {
		c.Status(http.StatusOK)
		return
	}

	_, err := pairing.GenerateAndSendCode(meta.ChannelID, payload.User.ID, payload.Team.ID, meta.BotUsername, meta.BotID)
	if err != nil {
		services.ReportError(db, err)
	}

	c.Status(http.StatusOK)
}
