package handlers

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teleconnect/models"
	"teleconnect/services"
)

// HandleOAuthRedirect は Slack の OAuth インストールフローの戻り先。
// トークンを交換して slack_teams に upsert する。再インストールは更新になる。
func HandleOAuthRedirect(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Query("code")
		if code == "" {
			c.String(http.StatusBadRequest, "Missing code parameter")
			return
		}

		resp, err := slack.GetOAuthV2Response(http.DefaultClient,
			os.Getenv("SLACK_CLIENT_ID"), os.Getenv("SLACK_CLIENT_SECRET"), code, "")
		if err != nil {
			services.ReportError(db, err)
			c.String(http.StatusInternalServerError, "OAuth access error")
			return
		}

		team := models.SlackTeam{
			TeamID:      resp.Team.ID,
			TeamName:    resp.Team.Name,
			AccessToken: resp.AccessToken,
			BotUserID:   resp.BotUserID,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"team_name", "access_token", "bot_user_id", "updated_at"}),
		}).Create(&team).Error
		if err != nil {
			services.ReportError(db, err)
			c.String(http.StatusInternalServerError, "Internal Server Error")
			return
		}

		log.Printf("slack app installed for team %s (%s)", resp.Team.ID, resp.Team.Name)
		c.String(http.StatusOK, "App installed successfully!")
	}
}
