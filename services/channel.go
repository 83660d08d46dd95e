package services

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teleconnect/models"
)

// ConnectionTypeFor はチャンネルの接続タイプを返す。行がなければ single。
func ConnectionTypeFor(db *gorm.DB, channelID, workspaceID string) string {
	var setting models.ChannelSetting
	err := db.Where("slack_channel_id = ? AND slack_workspace_id = ?", channelID, workspaceID).
		First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ReportError(db, err)
		}
		return models.ConnectionSingle
	}
	if setting.ConnectionType != models.ConnectionMultiple {
		return models.ConnectionSingle
	}
	return models.ConnectionMultiple
}

// SetConnectionType はチャンネルの接続タイプを upsert する
func SetConnectionType(db *gorm.DB, channelID, workspaceID, connectionType string) error {
	if connectionType != models.ConnectionSingle && connectionType != models.ConnectionMultiple {
		connectionType = models.ConnectionSingle
	}

	setting := models.ChannelSetting{
		SlackChannelID:   channelID,
		SlackWorkspaceID: workspaceID,
		ConnectionType:   connectionType,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slack_channel_id"}, {Name: "slack_workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"connection_type", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		ReportError(db, err)
		return err
	}

	log.Printf("channel %s connection type set to %s", channelID, connectionType)
	return nil
}
