package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teleconnect/models"
)

// SlackMessageEvent は Router が使う Slack イベントの境界型。
// ハンドラが受信ペイロードから一度だけ詰め替える。
type SlackMessageEvent struct {
	Type        string
	SubType     string
	Channel     string
	ChannelType string
	User        string
	Username    string
	BotID       string
	Text        string
}

// TelegramMessage は webhook の Update から復号された受信メッセージの境界型
type TelegramMessage struct {
	MessageID      int64
	ChatID         string
	ChatTitle      string
	FromID         int64
	FromFirstName  string
	FromUsername   string
	Text           string
	HasPhoto       bool
	NewChatMembers []string
}

// Router は受信メッセージを対応するマッピング先へ配送する
type Router struct {
	DB       *gorm.DB
	Bots     *BotRegistry
	SlackFor SlackClientFunc
	Pairing  *PairingService
}

func NewRouter(db *gorm.DB, bots *BotRegistry, slackFor SlackClientFunc, pairing *PairingService) *Router {
	return &Router{DB: db, Bots: bots, SlackFor: slackFor, Pairing: pairing}
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// RouteFromSlack はユーザー発のチャンネルメッセージをマッピング先の
// Telegram チャットへ転送する。マッピングがなければ何もしない。
func (r *Router) RouteFromSlack(ev SlackMessageEvent, teamID string) {
	// ボットのエコーや削除イベントは転送しない
	if ev.BotID != "" || ev.SubType == "bot_message" || ev.SubType == "message_deleted" {
		return
	}

	var mappings []models.Mapping
	err := r.DB.Where("slack_channel_id = ? AND slack_workspace_id = ?", ev.Channel, teamID).
		Find(&mappings).Error
	if err != nil {
		ReportError(r.DB, err)
		return
	}
	if len(mappings) == 0 {
		return
	}

	userName := r.resolveSenderName(ev, teamID)
	text := fmt.Sprintf("<b>%s</b>: %s", htmlEscaper.Replace(userName), htmlEscaper.Replace(ev.Text))

	// 1 つの宛先の失敗は他の宛先の処理を止めない
	for _, m := range mappings {
		bot, ok := r.Bots.Get(m.TelegramBotID)
		if !ok {
			ReportError(r.DB, fmt.Errorf("telegram bot %s not found for mapping to chat %s",
				m.TelegramBotID, m.TelegramChatID))
			continue
		}
		if err := bot.SendMessage(m.TelegramChatID, text, "HTML"); err != nil {
			ReportError(r.DB, err)
		}
	}
}

func (r *Router) resolveSenderName(ev SlackMessageEvent, teamID string) string {
	if ev.User == "" {
		if ev.Username != "" {
			return ev.Username
		}
		return "Unknown User"
	}

	client, err := r.SlackFor(teamID)
	if err != nil {
		ReportError(r.DB, err)
		return "Unknown User"
	}
	info, err := client.GetUserInfo(ev.User)
	if err != nil {
		ReportError(r.DB, err)
		return "Unknown User"
	}
	if info.Profile.DisplayName != "" {
		return info.Profile.DisplayName
	}
	if info.RealName != "" {
		return info.RealName
	}
	return "Unknown"
}

// RouteFromTelegram は受信メッセージを処理する。優先順位は
// 「ボット追加の通知 → ペアリングコード → 通常メッセージの転送」。
func (r *Router) RouteFromTelegram(msg TelegramMessage, botID string) {
	for _, memberID := range msg.NewChatMembers {
		if memberID == botID {
			if bot, ok := r.Bots.Get(botID); ok {
				err := bot.SendMessage(msg.ChatID,
					"Hello! Please submit the code provided in Slack to connect this group with your Slack channel.", "")
				if err != nil {
					ReportError(r.DB, err)
				}
			}
			return
		}
	}

	if code := strings.TrimSpace(msg.Text); code != "" {
		result, err := r.Pairing.RedeemCode(code, botID, msg.ChatID)
		switch {
		case err == nil:
			// コードとして消費された。メッセージは転送しない
			r.announcePairing(result, msg.ChatTitle)
			return
		case errors.Is(err, ErrCodeNotFound):
			// コードではなかった。通常メッセージとして転送する
		default:
			if bot, ok := r.Bots.Get(botID); ok {
				bot.SendMessage(msg.ChatID, "An error occurred while processing your code.", "")
			}
			return
		}
	}

	r.forwardToSlack(msg, botID)
}

// announcePairing はペアリング成立を両側に通知し、セットアップ用メッセージを消す
func (r *Router) announcePairing(result *RedemptionResult, chatTitle string) {
	if bot, ok := r.Bots.Get(result.TelegramBotID); ok {
		err := bot.SendMessage(result.TelegramChatID,
			fmt.Sprintf("Successfully connected this Telegram group (%s) with Slack channel. 🚀", chatTitle), "")
		if err != nil {
			ReportError(r.DB, err)
		}
	}

	client, err := r.SlackFor(result.SlackWorkspaceID)
	if err != nil {
		ReportError(r.DB, err)
		return
	}

	DeleteSentinelMessage(r.DB, client, result.SlackChannelID)

	_, _, err = client.PostMessage(result.SlackChannelID, slack.MsgOptionText(
		fmt.Sprintf("Successfully connected this Slack Channel with Telegram group (%s)", chatTitle), false))
	if err != nil {
		ReportError(r.DB, err)
	} else {
		log.Printf("notified slack channel %s about successful connection", result.SlackChannelID)
	}
}

func (r *Router) forwardToSlack(msg TelegramMessage, botID string) {
	var mappings []models.Mapping
	err := r.DB.Where("telegram_chat_id = ? AND telegram_bot_id = ?", msg.ChatID, botID).
		Find(&mappings).Error
	if err != nil {
		ReportError(r.DB, err)
		return
	}
	if len(mappings) == 0 {
		return
	}

	messageText := msg.Text
	if messageText == "" {
		if msg.HasPhoto {
			messageText = "sent a photo"
		} else {
			messageText = "sent a message"
		}
	}

	senderName := msg.FromFirstName
	if senderName == "" {
		senderName = "Unknown"
	}
	displayName := senderName
	if msg.FromUsername != "" {
		displayName = fmt.Sprintf("%s @%s", senderName, msg.FromUsername)
	}

	// プロフィール写真はベストエフォート。失敗はアバターなしに退化する
	var iconURL string
	if bot, ok := r.Bots.Get(botID); ok {
		url, err := bot.GetUserProfilePhotoURL(msg.FromID)
		if err != nil {
			ReportError(r.DB, err)
		} else {
			iconURL = url
		}
	}

	for _, m := range mappings {
		client, err := r.SlackFor(m.SlackWorkspaceID)
		if err != nil {
			ReportError(r.DB, err)
			continue
		}

		opts := []slack.MsgOption{
			slack.MsgOptionText(messageText, false),
			slack.MsgOptionUsername(displayName),
		}
		if iconURL != "" {
			opts = append(opts, slack.MsgOptionIconURL(iconURL))
		}

		if ConnectionTypeFor(r.DB, m.SlackChannelID, m.SlackWorkspaceID) == models.ConnectionMultiple {
			r.postThreaded(client, m.SlackChannelID, msg.ChatID, opts)
			continue
		}

		if _, _, err := client.PostMessage(m.SlackChannelID, opts...); err != nil {
			ReportError(r.DB, err)
		}
	}
}

// postThreaded は multiple モードの投稿。チャットごとのアンカーがあれば
// そのスレッドに返信し、なければトップレベルに投稿して ts をアンカーとして
// 保存する。保存は ON CONFLICT DO NOTHING で、先にコミットした方が勝つ。
func (r *Router) postThreaded(client SlackAPI, channelID, chatID string, opts []slack.MsgOption) {
	var thread models.SlackThread
	err := r.DB.Where("slack_channel_id = ? AND telegram_chat_id = ?", channelID, chatID).
		First(&thread).Error
	if err == nil {
		if _, _, err := client.PostMessage(channelID, append(opts, slack.MsgOptionTS(thread.ThreadTS))...); err != nil {
			ReportError(r.DB, err)
		}
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		ReportError(r.DB, err)
		return
	}

	_, ts, postErr := client.PostMessage(channelID, opts...)
	if postErr != nil {
		ReportError(r.DB, postErr)
		return
	}

	anchor := models.SlackThread{
		SlackChannelID: channelID,
		TelegramChatID: chatID,
		ThreadTS:       ts,
	}
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slack_channel_id"}, {Name: "telegram_chat_id"}},
		DoNothing: true,
	}).Create(&anchor)
	if result.Error != nil {
		ReportError(r.DB, result.Error)
	}
	// RowsAffected == 0 なら別の書き込みが先に勝っている。以後の投稿はその ts を読む
}
