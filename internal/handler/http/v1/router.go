package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Публичные маршруты
	api.POST("/reports", h.submitReport)
	api.POST("/team/login", h.teamLogin)
	api.GET("/system/health", h.healthCheck)

	// Маршруты оператора по API-ключу
	admin := api.Group("", APIKeyAuthMiddleware(h.cfg, h.logger))
	{
		incidents := admin.Group("/incidents")
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.PUT("/:id/status", h.updateIncidentStatus)
		incidents.POST("/:id/plan", h.generateActionPlan)

		teams := admin.Group("/teams")
		teams.POST("", h.createTeam)
		teams.GET("", h.listTeams)
		teams.GET("/loads", h.teamLoads)

		dispatches := admin.Group("/dispatches")
		dispatches.POST("", h.allocateBatch)
		dispatches.POST("/score", h.scoreAssignment)
	}

	// Маршруты бригады по токену сессии
	team := api.Group("/team", TeamAuthMiddleware(h.teamService, h.logger))
	{
		team.POST("/logout", h.teamLogout)
		team.GET("/dispatches", h.teamDispatches)
		team.GET("/dispatches/:id", h.teamDispatch)
		team.POST("/incident-status", h.teamIncidentStatus)
		team.POST("/location", h.teamLocation)
	}
}
