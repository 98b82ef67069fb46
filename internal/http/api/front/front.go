// Package front registers the user-facing API surface.
package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/analysis"
	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/http/api/front/handlers"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/payment"
	"github.com/tatlabs/tatserver/internal/security"
	"github.com/tatlabs/tatserver/internal/session"
	"gorm.io/gorm"
)

// Deps carries the services the front routes depend on.
type Deps struct {
	DB        *gorm.DB
	JWT       config.JWTConfig
	Gateway   config.GatewayConfig
	Reconcile config.ReconcileConfig

	Sessions   *session.Service
	Analysis   *analysis.Service
	Tracker    *payment.Tracker
	Reconciler *payment.Reconciler
}

// RegisterFrontRoutes registers user routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	group := r.Group("/v0")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	group.POST("/auth/register", authHandler.Register)
	group.POST("/auth/login", authHandler.Login)

	paymentHandler := handlers.NewPaymentHandler(deps.DB, deps.Tracker, deps.Reconciler, deps.Gateway, deps.Reconcile)
	group.POST("/payment/webhook", paymentHandler.Webhook)
	group.POST("/payment/reconcile", paymentHandler.Reconcile)

	authed := group.Group("")
	authed.Use(userAuthMiddleware(deps.DB, deps.JWT))

	meHandler := handlers.NewMeHandler(deps.DB)
	authed.GET("/me", meHandler.Profile)
	authed.GET("/me/credits", meHandler.Credits)
	authed.GET("/me/progress", meHandler.Progress)

	testHandler := handlers.NewTestHandler(deps.DB, deps.Sessions)
	authed.GET("/tests", testHandler.List)
	authed.POST("/tests/:id/sessions", testHandler.StartSession)

	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Analysis)
	authed.GET("/sessions/:id", sessionHandler.Get)
	authed.POST("/sessions/:id/complete", sessionHandler.Complete)
	authed.POST("/sessions/:id/abandon", sessionHandler.Abandon)
	authed.POST("/sessions/:id/pause", sessionHandler.Pause)
	authed.POST("/sessions/:id/resume", sessionHandler.Resume)
	authed.GET("/sessions/:id/analysis", sessionHandler.Analysis)

	purchaseHandler := handlers.NewPurchaseHandler(deps.DB, deps.Tracker)
	authed.GET("/packages", purchaseHandler.ListPackages)
	authed.POST("/purchases", purchaseHandler.Create)
	authed.GET("/purchases", purchaseHandler.List)
}

// userAuthMiddleware validates user JWTs and loads the user context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
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

		c.Set("userID", user.ID)
		c.Set("userEmail", user.Email)
		c.Next()
	}
}
