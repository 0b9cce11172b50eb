package main

import (
	"meeting-scheduler/internal/httpapi"
	"meeting-scheduler/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	// public
	r.GET("/healthz", httpapi.Health)

	// Participant deep links. The token in the path is the credential.
	links := r.Group("/availability")
	{
		links.GET("/:token", h.AvailabilityDetails)
		links.PUT("/:token", h.SubmitAvailability)
		links.DELETE("/:token", h.DeclineCall)
		links.PATCH("/:token", h.ReopenAvailability)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireUser())
	{
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleOrganizer))
		{
			calls.POST("", h.CreateCall)
			calls.GET("", h.ListCalls)
		}

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleOrganizer))
		{
			reports.GET("/summary", h.CallsSummary)
		}

		// Sweep triggers for cron jobs holding a scheduler token. Admins
		// pass through the bypass.
		scheduler := v1.Group("/scheduler")
		scheduler.Use(rbac.RequireAnyRole(rbac.RoleScheduler))
		{
			scheduler.POST("/run", h.RunSweep)
			scheduler.POST("/calls/:id/run", h.RunCall)
		}
	}
}
