package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Telegram Bot API のベース URL。テストでは gock がここを横取りする。
var telegramAPIBase = "https://api.telegram.org"

// TelegramClient は 1 つのボットトークンに紐づく Bot API クライアント
type TelegramClient struct {
	Token    string
	BotID    string
	Username string
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// NewTelegramClient はトークンを getMe で検証してクライアントを作る。
// Telegram に拒否されたトークンは ErrInvalidToken になる。
func NewTelegramClient(token string) (*TelegramClient, error) {
	c := &TelegramClient{Token: token}

	result, err := c.call("getMe", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var me struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(result, &me); err != nil {
		return nil, fmt.Errorf("getMe response parse error: %v", err)
	}

	c.BotID = strconv.FormatInt(me.ID, 10)
	c.Username = me.Username
	return c, nil
}

// SendMessage はチャットにテキストを送る。parseMode は "HTML" か空。
func (c *TelegramClient) SendMessage(chatID, text, parseMode string) error {
	body := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		body["parse_mode"] = parseMode
	}

	_, err := c.call("sendMessage", body)
	return err
}

// SetWebhook はこのボットの webhook URL を設定する
func (c *TelegramClient) SetWebhook(url string) error {
	_, err := c.call("setWebhook", map[string]interface{}{"url": url})
	return err
}

// GetUserProfilePhotoURL は送信者の最新プロフィール写真の URL を返す。
// 写真がなければ空文字。ベストエフォートで、失敗はアバターなしに退化する。
func (c *TelegramClient) GetUserProfilePhotoURL(userID int64) (string, error) {
	result, err := c.call("getUserProfilePhotos", map[string]interface{}{
		"user_id": userID,
		"limit":   1,
	})
	if err != nil {
		return "", err
	}

	var photos struct {
		TotalCount int `json:"total_count"`
		Photos     [][]struct {
			FileID string `json:"file_id"`
		} `json:"photos"`
	}
	if err := json.Unmarshal(result, &photos); err != nil {
		return "", fmt.Errorf("getUserProfilePhotos response parse error: %v", err)
	}

	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", nil
	}

	// 一番大きいサイズを使う
	sizes := photos.Photos[0]
	largest := sizes[len(sizes)-1]

	result, err = c.call("getFile", map[string]interface{}{"file_id": largest.FileID})
	if err != nil {
		return "", err
	}

	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(result, &file); err != nil {
		return "", fmt.Errorf("getFile response parse error: %v", err)
	}
	if file.FilePath == "" {
		return "", nil
	}

	return fmt.Sprintf("%s/file/bot%s/%s", telegramAPIBase, c.Token, file.FilePath), nil
}

// call は Bot API のメソッドを呼び、result 部分を返す
func (c *TelegramClient) call(method string, body map[string]interface{}) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/bot%s/%s", telegramAPIBase, c.Token, method)

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest("POST", url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(bodyBytes, &tgResp); err != nil {
		return nil, fmt.Errorf("telegram API response parse error: %v", err)
	}

	if !tgResp.OK {
		return nil, fmt.Errorf("telegram error: %s", tgResp.Description)
	}

	return tgResp.Result, nil
}
