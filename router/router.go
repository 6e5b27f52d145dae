package router

import (
	"net/http"

	"balcao/config"
	"balcao/controllers"
	dbpkg "balcao/db"
	"balcao/middleware"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Initialize wires all routes and middlewares: public routes (health, metrics,
// Meta webhook) and the operator API guarded by Authorizer.
func Initialize(r *gin.Engine, cfg config.Configuration, db *gorm.DB, ctl *controllers.Controller, log logrus.FieldLogger) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigins))
	r.Use(dbpkg.Middleware(db))

	r.GET("/health", func(c *gin.Context) {
		if err := db.DB().PingContext(c.Request.Context()); err != nil {
			controllers.RespondError(c, "db indisponível", http.StatusServiceUnavailable)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Webhook (WhatsApp) - multi-tenant: /webhook/:tenantId
	api.GET("/webhook/:tenantId", Logger(log), ctl.WebhookVerify)
	api.POST("/webhook/:tenantId", Logger(log), ctl.WebhookUpdate)

	// Operator routes
	op := api.Group("")
	op.Use(Logger(log), Authorizer(cfg.OperatorApiKey))

	tenant := op.Group("/tenants/:tenantId")

	// Conversations
	tenant.POST("/conversations/decide", ctl.Decide)
	tenant.GET("/conversations/state", ctl.ConversationState)
	tenant.POST("/conversations/reset", ctl.ResetConversation)
	tenant.GET("/conversations/events", ctl.ConversationEvents)
	tenant.GET("/events", ctl.GetEvents)
	op.GET("/events/:id", ctl.GetEventByID)

	// Settings / catalog
	tenant.GET("/settings", ctl.GetSettings)
	tenant.PUT("/settings", ctl.PutSettings)
	tenant.GET("/catalog/readiness", ctl.CatalogReadiness)

	// Outbox / dispatch
	tenant.POST("/outbox", ctl.EnqueueOutbox)
	tenant.GET("/outbox", ctl.ListOutbox)
	op.POST("/outbox/:id/requeue", ctl.RequeueOutbox)
	op.POST("/dispatch/run", ctl.RunDispatch)

	// Campaign runs
	tenant.POST("/campaigns/:campaignId/runs", ctl.StartCampaignRun)
	tenant.POST("/group-campaigns/:groupCampaignId/runs", ctl.StartGroupCampaignRun)
	op.GET("/runs/:runId/items", ctl.RunItems)

	// Preorders
	tenant.GET("/preorders", ctl.ListPreorders)
	tenant.POST("/preorders", ctl.CreatePreorder)
	op.GET("/preorders/:id", ctl.GetPreorder)
	op.PATCH("/preorders/:id", ctl.UpdatePreorder)
	op.POST("/preorders/:id/status", ctl.SetPreorderStatus)

	// WhatsApp credentials / registration
	tenant.PUT("/whatsapp/config", ctl.UpsertWhatsAppConfig)
	tenant.POST("/whatsapp/request-code", ctl.WhatsAppRequestCode)
	tenant.POST("/whatsapp/register", ctl.WhatsAppRegister)
	tenant.POST("/whatsapp/subscribe", ctl.WhatsAppSubscribe)

	log.Info("router: routes initialized")
}
