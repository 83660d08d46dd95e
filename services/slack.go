package services

import (
	"errors"

	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"teleconnect/models"
)

// SlackAPI は Router と PairingService が必要とする Slack Web API の最小面。
// 本番では *slack.Client がそのまま満たす。
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	DeleteMessage(channel, messageTimestamp string) (string, string, error)
	GetUserInfo(user string) (*slack.User, error)
	OpenView(triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
}

// SlackClientFunc はチーム ID からそのワークスペース用のクライアントを引く
type SlackClientFunc func(teamID string) (SlackAPI, error)

// SlackClientProvider は slack_teams の保存済みトークンからクライアントを作る
func SlackClientProvider(db *gorm.DB) SlackClientFunc {
	return func(teamID string) (SlackAPI, error) {
		var team models.SlackTeam
		err := db.Where("team_id = ?", teamID).First(&team).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTeamNotFound
			}
			return nil, err
		}
		return slack.New(team.AccessToken), nil
	}
}

// GetBotUserIDForTeam はチームのボットユーザー ID を返す
func GetBotUserIDForTeam(db *gorm.DB, teamID string) (string, error) {
	var team models.SlackTeam
	err := db.Where("team_id = ?", teamID).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTeamNotFound
		}
		return "", err
	}
	return team.BotUserID, nil
}
