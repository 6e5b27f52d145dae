package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"balcao/conversation"
	dbpkg "balcao/db"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

func ParamID(c *gin.Context, name string) (int64, bool) {
	v := c.Param(name)
	if v == "" {
		RespondError(c, name+" é obrigatório", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, name+" inválido", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// QueryLimit reads ?limit=, falling back to def when absent or invalid.
func QueryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// queryKey builds the conversation key from :tenantId and ?channel=&remote=.
func queryKey(c *gin.Context) (conversation.Key, bool) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return conversation.Key{}, false
	}
	key := conversation.Key{
		TenantID:        tenantID,
		ChannelInstance: strings.TrimSpace(c.Query("channel")),
		RemoteIdentity:  strings.TrimSpace(c.Query("remote")),
	}
	if key.RemoteIdentity == "" {
		RespondError(c, "remote é obrigatório", http.StatusBadRequest)
		return key, false
	}
	return key, true
}

func requestDB(c *gin.Context) (*gorm.DB, bool) {
	database, ok := dbpkg.FromContext(c)
	if !ok {
		RespondError(c, "db não configurado no contexto", http.StatusInternalServerError)
	}
	return database, ok
}
