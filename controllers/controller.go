package controllers

import (
	"net/http"

	"balcao/apperrors"
	"balcao/audit"
	"balcao/catalog"
	"balcao/config"
	"balcao/conversation"
	"balcao/dispatch"
	"balcao/outbox"
	"balcao/preorder"
	"balcao/workers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Controller carries the services the handlers call. One instance is built in
// main and its methods are registered by the router.
type Controller struct {
	Conversations *conversation.Service
	Sequencer     *conversation.Sequencer
	Settings      *conversation.SettingsStore
	Events        *workers.EventProcessor
	Catalog       *catalog.Provider
	Trail         *audit.Trail
	Outbox        *outbox.Store
	Runner        *dispatch.Runner
	Scheduler     *dispatch.Scheduler
	Ledger        *dispatch.Ledger
	Preorders     *preorder.Store
	WhatsApp      config.WhatsApp
	GraphBaseURL  string // empty: graph.facebook.com
	Log           logrus.FieldLogger
}

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

// RespondAppError maps the error taxonomy onto HTTP status codes.
func RespondAppError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeValidation:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeConflict:
		status = http.StatusConflict
	case apperrors.CodeConfiguration:
		status = http.StatusUnprocessableEntity
	case apperrors.CodeTransport:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
