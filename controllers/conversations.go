package controllers

import (
	"context"
	"net/http"
	"strings"

	"balcao/conversation"
	"balcao/models"

	"github.com/gin-gonic/gin"
)

type decideReq struct {
	ChannelInstance string                    `json:"channelInstance"`
	RemoteIdentity  string                    `json:"remoteIdentity"`
	Text            string                    `json:"text"`
	Media           []conversation.MediaAsset `json:"media"`
}

// POST /api/tenants/:tenantId/conversations/decide
// Runs one inbound text through the conversation machine, in order with any
// webhook traffic of the same conversation. Nothing is sent.
func (ctl *Controller) Decide(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	var req decideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	in := conversation.Inbound{
		Key: conversation.Key{
			TenantID:        tenantID,
			ChannelInstance: strings.TrimSpace(req.ChannelInstance),
			RemoteIdentity:  strings.TrimSpace(req.RemoteIdentity),
		},
		Text:  req.Text,
		Media: req.Media,
	}

	// the lane may run after this handler returned; it only sees its own copies
	res, err := conversation.Run(c.Request.Context(), ctl.Sequencer, in.Key.String(), func(ctx context.Context) (conversation.Result, error) {
		return ctl.Conversations.HandleInbound(ctx, in)
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, res)
}

// GET /api/tenants/:tenantId/conversations/state?channel=&remote=
func (ctl *Controller) ConversationState(c *gin.Context) {
	key, ok := queryKey(c)
	if !ok {
		return
	}
	st, err := ctl.Conversations.State(c.Request.Context(), key)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"state": st})
}

type resetReq struct {
	ChannelInstance string `json:"channelInstance"`
	RemoteIdentity  string `json:"remoteIdentity"`
	Actor           string `json:"actor"`
}

// POST /api/tenants/:tenantId/conversations/reset
// Takes a conversation out of handoff (or any phase) back to idle.
func (ctl *Controller) ResetConversation(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	var req resetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	key := conversation.Key{
		TenantID:        tenantID,
		ChannelInstance: strings.TrimSpace(req.ChannelInstance),
		RemoteIdentity:  strings.TrimSpace(req.RemoteIdentity),
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = models.ACTOR_HUMAN
	}

	st, err := conversation.Run(c.Request.Context(), ctl.Sequencer, key.String(), func(ctx context.Context) (conversation.State, error) {
		return ctl.Conversations.ResetHandoff(ctx, key, actor)
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"state": st})
}

// GET /api/tenants/:tenantId/conversations/events?channel=&remote=
// Audit trail of one conversation, newest first.
func (ctl *Controller) ConversationEvents(c *gin.Context) {
	key, ok := queryKey(c)
	if !ok {
		return
	}
	events, err := ctl.Trail.List(c.Request.Context(), key.AuditKey(), QueryLimit(c, 100))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"events": events})
}
