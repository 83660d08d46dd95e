package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"gorm.io/gorm"

	"teleconnect/services"
)

var botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35}$`)

// HandleSlackEvents は Slack Events API の受け口。
// URL 検証チャレンジ、ボットのチャンネル参加、DM でのトークン提出、
// 通常メッセージの転送をここで振り分ける。
func HandleSlackEvents(db *gorm.DB, registry *services.BotRegistry, router *services.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		if !VerifySlackSignature(c.Request, body) {
			log.Println("invalid slack signature")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
			return
		}

		eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			log.Printf("slack event parse error: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		if eventsAPIEvent.Type == slackevents.URLVerification {
			var challenge slackevents.ChallengeResponse
			if err := json.Unmarshal(body, &challenge); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge"})
				return
			}
			c.String(http.StatusOK, challenge.Challenge)
			return
		}

		if eventsAPIEvent.Type != slackevents.CallbackEvent {
			c.Status(http.StatusOK)
			return
		}

		teamID := eventsAPIEvent.TeamID

		switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
		case *slackevents.MemberJoinedChannelEvent:
			handleBotJoined(db, router.SlackFor, teamID, ev)
		case *slackevents.MessageEvent:
			if ev.ChannelType == "im" && ev.BotID == "" {
				handleDirectMessage(db, registry, router.SlackFor, teamID, ev)
				break
			}
			router.RouteFromSlack(services.SlackMessageEvent{
				Type:        ev.Type,
				SubType:     ev.SubType,
				Channel:     ev.Channel,
				ChannelType: ev.ChannelType,
				User:        ev.User,
				Username:    ev.Username,
				BotID:       ev.BotID,
				Text:        ev.Text,
			}, teamID)
		}

		c.Status(http.StatusOK)
	}
}

// ボット自身がチャンネルに追加されたら、接続方法の選択肢を出す
func handleBotJoined(db *gorm.DB, slackFor services.SlackClientFunc, teamID string, ev *slackevents.MemberJoinedChannelEvent) {
	botUserID, err := services.GetBotUserIDForTeam(db, teamID)
	if err != nil {
		services.ReportError(db, err)
		return
	}
	if ev.User != botUserID {
		return
	}

	log.Printf("bot joined channel %s (team: %s)", ev.Channel, teamID)

	client, err := slackFor(teamID)
	if err != nil {
		services.ReportError(db, err)
		return
	}

	customUsername := ""
	if bot, err := services.GetCustomBotForTeam(db, teamID); err != nil {
		services.ReportError(db, err)
	} else if bot != nil {
		customUsername = bot.TelegramBotUsername
	}

	services.SendConnectionOptionsMessage(db, client, ev.Channel, customUsername)
}

// DM はカスタムボットのトークン提出として扱う
func handleDirectMessage(db *gorm.DB, registry *services.BotRegistry, slackFor services.SlackClientFunc, teamID string, ev *slackevents.MessageEvent) {
	client, err := slackFor(teamID)
	if err != nil {
		services.ReportError(db, err)
		return
	}

	token := strings.TrimSpace(ev.Text)
	if !botTokenPattern.MatchString(token) {
		client.PostMessage(ev.Channel, slack.MsgOptionText(
			"Please provide a valid Telegram bot token to proceed.", false))
		return
	}

	bot, err := services.RegisterBot(db, registry, token, teamID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			client.PostMessage(ev.Channel, slack.MsgOptionText(
				"Invalid Telegram bot token. Please ensure you entered the correct token.", false))
		} else {
			services.ReportError(db, err)
			client.PostMessage(ev.Channel, slack.MsgOptionText(
				"An error occurred while saving your bot token. Please try again.", false))
		}
		return
	}

	client.PostMessage(ev.Channel, slack.MsgOptionText(fmt.Sprintf(
		"Successfully set up your Telegram bot @%s. Now you can connect your Slack channels to Telegram groups using this bot.",
		bot.Username), false))

	// そのまま接続まで進めるように選択肢を出す
	services.SendConnectionOptionsMessage(db, client, ev.Channel, bot.Username)
}
