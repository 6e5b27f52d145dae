package db

import (
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

const ginKey = "balcao.db"

// Middleware puts the connection on every request so table-level handlers
// (events, whatsapp config, webhook) can query without a store.
func Middleware(database *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginKey, database)
		c.Next()
	}
}

func FromContext(c *gin.Context) (*gorm.DB, bool) {
	v, ok := c.Get(ginKey)
	if !ok {
		return nil, false
	}
	database, ok := v.(*gorm.DB)
	return database, ok && database != nil
}
