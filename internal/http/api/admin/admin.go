// Package admin registers the back-office API surface.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/http/api/admin/handlers"
	"github.com/tatlabs/tatserver/internal/mailer"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/security"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, mailerSvc *mailer.Service) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	packageHandler := handlers.NewPackageHandler(db)
	authed.POST("/packages", packageHandler.Create)
	authed.GET("/packages", packageHandler.List)
	authed.PUT("/packages/:id", packageHandler.Update)
	authed.POST("/packages/:id/enable", packageHandler.Enable)
	authed.POST("/packages/:id/disable", packageHandler.Disable)

	testHandler := handlers.NewTestAdminHandler(db)
	authed.POST("/tests", testHandler.Create)
	authed.GET("/tests", testHandler.List)
	authed.PUT("/tests/:id", testHandler.Update)
	authed.POST("/tests/:id/enable", testHandler.Enable)
	authed.POST("/tests/:id/disable", testHandler.Disable)

	userHandler := handlers.NewUserAdminHandler(db)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)

	orderHandler := handlers.NewOrderAdminHandler(db)
	authed.GET("/orders", orderHandler.List)

	webhookHandler := handlers.NewWebhookEventHandler(db)
	authed.GET("/webhook-events", webhookHandler.List)

	campaignHandler := handlers.NewCampaignHandler(db, mailerSvc)
	authed.POST("/campaigns", campaignHandler.Create)
	authed.GET("/campaigns", campaignHandler.List)
	authed.POST("/campaigns/:id/send", campaignHandler.Send)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}
		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Set("adminID", user.ID)
		c.Next()
	}
}
