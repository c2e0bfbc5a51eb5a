package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1.
// Все маршруты, кроме health-check, требуют API-ключ.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("", APIKeyAuthMiddleware(h.cfg, h.logger))

	reports := protected.Group("/reports")
	{
		reports.POST("", h.createReport)
		reports.GET("", h.listReports)
		reports.GET("/groups", h.listGroups)
		reports.GET("/:id", h.getReport)
		reports.GET("/:id/dispatch-status", h.getDispatchStatus)
	}

	protected.POST("/dispatches", h.createDispatch)

	assignments := protected.Group("/assignments")
	{
		assignments.GET("", h.listAssignments)
		assignments.POST("/:id/accept", h.acceptAssignment)
		assignments.POST("/:id/reject", h.rejectAssignment)
		assignments.POST("/:id/resolve", h.resolveAssignment)
	}

	responders := protected.Group("/responders")
	{
		responders.GET("", h.listResponders)
		responders.GET("/available", h.listAvailable)
		responders.PUT("/:id/availability", h.setAvailability)
	}

	// Живая лента изменений (SSE)
	protected.GET("/stream", h.stream)
}
