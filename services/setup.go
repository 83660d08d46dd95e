package services

import (
	"errors"
	"time"

	"github.com/slack-go/slack"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teleconnect/models"
)

// ボットをチャンネルに繋ぐためのセットアップ UI。
// 選択肢メッセージの ts は channel_messages に覚えておき、
// ペアリング完了時に DeleteSentinelMessage で消す。

// SendConnectionOptionsMessage は接続方法を選ぶボタン付きメッセージを投稿する。
// customBotUsername が空でなければ「Connect @そのボット」ボタンも出す。
func SendConnectionOptionsMessage(db *gorm.DB, client SlackAPI, channelID, customBotUsername string) error {
	elements := []slack.BlockElement{
		slack.NewButtonBlockElement("connect_teleconnectbot", "connect_teleconnectbot",
			slack.NewTextBlockObject(slack.PlainTextType, "Connect TeleConnectBot", true, false)),
	}
	if customBotUsername != "" {
		elements = append(elements,
			slack.NewButtonBlockElement("connect_custom_bot", "connect_custom_bot",
				slack.NewTextBlockObject(slack.PlainTextType, "Connect @"+customBotUsername, true, false)))
	}
	elements = append(elements,
		slack.NewButtonBlockElement("create_new_custom_bot", "create_new_custom_bot",
			slack.NewTextBlockObject(slack.PlainTextType, "Create New Custom Bot", true, false)))

	_, ts, err := client.PostMessage(channelID,
		slack.MsgOptionText("Please choose an option:", false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
				"Please choose an option to connect this Slack channel with Telegram:", false, false), nil, nil),
			slack.NewActionBlock("connection_options", elements...),
		))
	if err != nil {
		ReportError(db, err)
		return err
	}

	sentinel := models.ChannelMessage{
		ChannelID: channelID,
		MessageTS: ts,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"message_ts", "updated_at"}),
	}).Create(&sentinel).Error
	if err != nil {
		ReportError(db, err)
		return err
	}
	return nil
}

// DeleteSentinelMessage はセットアップ用メッセージが残っていれば消す。
// 何も残っていなければ何もしない。
func DeleteSentinelMessage(db *gorm.DB, client SlackAPI, channelID string) {
	var sentinel models.ChannelMessage
	err := db.Where("channel_id = ?", channelID).First(&sentinel).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ReportError(db, err)
		}
		return
	}

	if _, _, err := client.DeleteMessage(channelID, sentinel.MessageTS); err != nil {
		ReportError(db, err)
	}
	if err := db.Delete(&sentinel).Error; err != nil {
		ReportError(db, err)
	}
}

// OpenSetupConnectionModal は接続タイプを選んでコードを発行するモーダルを開く。
// private_metadata に対象チャンネルとボットを持ち回る。
func OpenSetupConnectionModal(client SlackAPI, triggerID, privateMetadata string) error {
	options := []*slack.OptionBlockObject{
		slack.NewOptionBlockObject(models.ConnectionSingle,
			slack.NewTextBlockObject(slack.PlainTextType, "Single (one Telegram group)", false, false), nil),
		slack.NewOptionBlockObject(models.ConnectionMultiple,
			slack.NewTextBlockObject(slack.PlainTextType, "Multiple (one thread per Telegram group)", false, false), nil),
	}

	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      "setup_connection_submission",
		PrivateMetadata: privateMetadata,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Set Up Connection", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Submit", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
				"Choose how this channel connects to Telegram. *Single* keeps one exclusive group; "+
					"*Multiple* lets several groups fan into this channel, one thread each.", false, false), nil, nil),
			slack.NewInputBlock("connection_type_input",
				slack.NewTextBlockObject(slack.PlainTextType, "Connection type", false, false), nil,
				slack.NewOptionsSelectBlockElement(slack.OptTypeStatic,
					slack.NewTextBlockObject(slack.PlainTextType, "Select a connection type", false, false),
					"connection_type", options...)),
		}},
	}

	_, err := client.OpenView(triggerID, view)
	return err
}

// OpenCreateBotModal は BotFather のトークンを提出するモーダルを開く
func OpenCreateBotModal(client SlackAPI, triggerID, privateMetadata string) error {
	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      "bot_token_submission",
		PrivateMetadata: privateMetadata,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Create New Custom Bot", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Submit", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
				"To create a new Telegram bot, please follow these steps:\n\n"+
					"1. Open Telegram and start a conversation with *@BotFather*.\n"+
					"2. Send the command `/newbot` and follow the instructions to create a new bot.\n"+
					"3. Once you have created the bot, you will receive a bot token.\n"+
					"4. Paste the bot token below and click *Submit*.", false, false), nil, nil),
			slack.NewInputBlock("bot_token_input",
				slack.NewTextBlockObject(slack.PlainTextType, "Telegram Bot Token", false, false), nil,
				slack.NewPlainTextInputBlockElement(
					slack.NewTextBlockObject(slack.PlainTextType, "Enter your Telegram bot token here", false, false),
					"bot_token")),
		}},
	}

	_, err := client.OpenView(triggerID, view)
	return err
}
