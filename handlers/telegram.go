package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"teleconnect/services"
)

// telegramUpdate は Bot API の Update envelope。境界で一度だけ復号する。
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
			Type  string `json:"type"`
		} `json:"chat"`
		Text  string `json:"text"`
		Photo []struct {
			FileID string `json:"file_id"`
		} `json:"photo"`
		NewChatMembers []struct {
			ID int64 `json:"id"`
		} `json:"new_chat_members"`
	} `json:"message"`
}

// HandleTelegramWebhook は /bot/:botID への Update を受けて Router に渡す
func HandleTelegramWebhook(router *services.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		botID := c.Param("botID")

		var update telegramUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
			return
		}

		// メッセージ以外の update（編集・ポールなど）は受理だけする
		if update.Message == nil {
			c.Status(http.StatusOK)
			return
		}

		msg := services.TelegramMessage{
			MessageID: update.Message.MessageID,
			ChatID:    strconv.FormatInt(update.Message.Chat.ID, 10),
			ChatTitle: update.Message.Chat.Title,
			Text:      update.Message.Text,
			HasPhoto:  len(update.Message.Photo) > 0,
		}
		if update.Message.From != nil {
			msg.FromID = update.Message.From.ID
			msg.FromFirstName = update.Message.From.FirstName
			msg.FromUsername = update.Message.From.Username
		}
		for _, member := range update.Message.NewChatMembers {
			msg.NewChatMembers = append(msg.NewChatMembers, strconv.FormatInt(member.ID, 10))
		}

		router.RouteFromTelegram(msg, botID)
		c.Status(http.StatusOK)
	}
}
