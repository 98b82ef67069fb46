// Package app wires configuration, storage, and services into the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/analysis"
	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/db"
	"github.com/tatlabs/tatserver/internal/http/api/admin"
	"github.com/tatlabs/tatserver/internal/http/api/front"
	"github.com/tatlabs/tatserver/internal/mailer"
	"github.com/tatlabs/tatserver/internal/membership"
	"github.com/tatlabs/tatserver/internal/payment"
	"github.com/tatlabs/tatserver/internal/session"

	log "github.com/sirupsen/logrus"
)

// membershipSweepInterval is how often expired pro memberships are demoted.
const membershipSweepInterval = time.Hour

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed services. It blocks
// until ctx is cancelled, then drains in-flight requests before returning.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	gatewayCfg, _ := config.LoadGatewayConfig(configPath)
	emailCfg, _ := config.LoadEmailConfig(configPath)
	analysisCfg, _ := config.LoadAnalysisConfig(configPath)
	reconcileCfg, _ := config.LoadReconcileConfig(configPath)

	gateway := payment.NewHTTPGateway(gatewayCfg)
	tracker := payment.NewTracker(conn, gateway, gatewayCfg.RedirectURL)
	reconciler := payment.NewReconciler(conn, gateway, tracker, reconcileCfg.GraceWindow, reconcileCfg.InterCallDelay)

	sessions := session.NewService(conn)
	analysisSvc := analysis.NewService(conn, analysis.NewHTTPClient(analysisCfg))
	mailerSvc := mailer.NewService(conn, mailer.NewHTTPClient(emailCfg))

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	front.RegisterFrontRoutes(engine, front.Deps{
		DB:         conn,
		JWT:        jwtCfg,
		Gateway:    gatewayCfg,
		Reconcile:  reconcileCfg,
		Sessions:   sessions,
		Analysis:   analysisSvc,
		Tracker:    tracker,
		Reconciler: reconciler,
	})
	admin.RegisterAdminRoutes(engine, conn, jwtCfg, mailerSvc)

	go membership.RunSweeper(ctx, conn, membershipSweepInterval)

	if port <= 0 {
		port = 8318
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Infof("listening on %s with config=%s", server.Addr, configPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// requestLogger logs each request with method, path, status, and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}
