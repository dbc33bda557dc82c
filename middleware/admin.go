package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/config"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// AdminRequired restricts a route to usernames listed in AdminUsernames.
// Must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username := ctx.GetString(ContextUsernameKey)
		if username == "" || !isAdmin(username) {
			utils.Error(ctx, http.StatusForbidden, 40310, "admin access required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func isAdmin(username string) bool {
	for _, admin := range config.Get().AdminUsernames {
		if admin == username {
			return true
		}
	}
	return false
}
