package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wigshare/wigshare-api/internal/middleware"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/repository"
	"github.com/wigshare/wigshare-api/internal/service"
)

// Handlers groups every HTTP handler for route registration.
type Handlers struct {
	Auth      *AuthHandler
	Requests  *RequestHandler
	Analyses  *AnalysisHandler
	Donations *DonationHandler
	Wigs      *WigHandler
	Metrics   *MetricsHandler
}

// RegisterRoutes mounts the full API under the given prefix. Role gates
// keep whole role classes off routes; ownership checks live in the
// services.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService, auditRepo *repository.UserRepository) {
	api := r.Group(prefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.GET("/me", middleware.JWT(auth), h.Auth.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	requests := protected.Group("/requests")
	{
		requests.POST("", middleware.RequireRoles(models.RoleRequester), h.Requests.Submit)
		requests.GET("", h.Requests.List)
		requests.GET("/:id", h.Requests.Get)
		requests.PATCH("/:id", h.Requests.UpdateNote)
		requests.PATCH("/:id/status", h.Requests.UpdateStatus)
		requests.POST("/:id/cancel", h.Requests.Cancel)
		requests.DELETE("/:id", h.Requests.Delete)
		requests.GET("/:id/evidence", h.Requests.EvidenceLink)
		requests.GET("/:id/analyses", h.Analyses.ListByRequest)
		requests.GET("/:id/summary", h.Analyses.Summary)
	}

	analyses := protected.Group("/analyses")
	{
		analyses.POST("", middleware.RequireRoles(models.RoleInstitution), h.Analyses.Claim)
		analyses.GET("", middleware.RequireRoles(models.RoleInstitution), h.Analyses.ListMine)
		analyses.GET("/:id", h.Analyses.Get)
		analyses.PATCH("/:id", h.Analyses.Advance)
		analyses.DELETE("/:id", h.Analyses.Withdraw)
	}

	donations := protected.Group("/donations")
	{
		donations.POST("", middleware.RequireRoles(models.RoleInstitution), h.Donations.Donate)
		donations.GET("", h.Donations.List)
		donations.GET("/export", h.Donations.ExportHistory)
		donations.GET("/:id", h.Donations.Get)
		donations.POST("/:id/revert", h.Donations.Revert)
		donations.GET("/:id/receipt", h.Donations.Receipt)
	}

	wigs := protected.Group("/wigs")
	{
		wigs.POST("", middleware.RequireRoles(models.RoleInstitution), h.Wigs.Create)
		wigs.GET("", h.Wigs.List)
		wigs.GET("/:id", h.Wigs.Get)
		wigs.PATCH("/:id", h.Wigs.Update)
		wigs.DELETE("/:id", h.Wigs.Delete)
	}

	// Token-authorized downloads; the signed token is the credential.
	// Services never see these, so the audit trail is written here.
	api.GET("/evidence/:token", middleware.Audit(auditRepo, "evidence.download", "request"), h.Requests.DownloadEvidence)
	api.GET("/exports/:token", middleware.Audit(auditRepo, "export.download", "donation"), h.Donations.DownloadExport)
}
