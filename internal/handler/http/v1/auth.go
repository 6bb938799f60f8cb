package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
	"github.com/sirupsen/logrus"
)

const teamIDKey = "team_id"

// APIKeyAuthMiddleware - middleware для аутентификации операторов по API-ключу
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = bearerToken(c)
		}

		if apiKey == "" {
			log.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		isValid := false
		for _, key := range cfg.APIKeys {
			if key == apiKey {
				isValid = true
				break
			}
		}

		if !isValid {
			log.Warn("Invalid API key provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// TeamAuthMiddleware проверяет токен сессии бригады и кладет id бригады в контекст
func TeamAuthMiddleware(teams service.TeamService, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "team token required"})
			return
		}

		teamID, err := teams.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.WithError(err).Warn("Team authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}

		c.Set(teamIDKey, teamID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func currentTeam(c *gin.Context) uuid.UUID {
	v, _ := c.Get(teamIDKey)
	id, _ := v.(uuid.UUID)
	return id
}
