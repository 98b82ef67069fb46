// Package membership demotes pro accounts whose paid period has lapsed.
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sweep demotes every pro user whose membership expiry has passed. Returns
// the number of demoted accounts.
func Sweep(ctx context.Context, conn *gorm.DB) (int64, error) {
	if conn == nil {
		return 0, fmt.Errorf("membership: nil connection")
	}

	now := time.Now().UTC()
	res := conn.WithContext(ctx).
		Model(&models.User{}).
		Where("membership = ? AND membership_expires_at IS NOT NULL AND membership_expires_at < ?", models.MembershipPro, now).
		Updates(map[string]any{
			"membership":            models.MembershipFree,
			"membership_expires_at": nil,
			"updated_at":            now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("membership: sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RunSweeper runs Sweep on the given interval until the context ends.
// Failures are logged and the next tick retries.
func RunSweeper(ctx context.Context, conn *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			demoted, errSweep := Sweep(ctx, conn)
			if errSweep != nil {
				log.WithError(errSweep).Warn("membership: sweep failed")
				continue
			}
			if demoted > 0 {
				log.WithField("demoted", demoted).Info("membership: expired pro accounts demoted")
			}
		}
	}
}
