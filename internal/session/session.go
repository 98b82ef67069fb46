// Package session tracks the lifecycle of a test-taking attempt. The
// countdown is server-authoritative: remaining time is always derived from
// persisted timestamps, so a client cannot extend its own limit.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tatlabs/tatserver/internal/ledger"
	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound indicates no session matches the id and owner.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionFinished indicates the session already reached a terminal state.
	ErrSessionFinished = errors.New("session: already finished")
	// ErrNotActive indicates the operation requires an active session.
	ErrNotActive = errors.New("session: not active")
	// ErrNotPaused indicates the operation requires a paused session.
	ErrNotPaused = errors.New("session: not paused")
	// ErrTestNotFound indicates the test is missing or disabled.
	ErrTestNotFound = errors.New("session: test not found")
)

// firstCompletionPromoCredits is the one-time grant for a user's first
// completed test.
const firstCompletionPromoCredits = 5

// Service manages test session state transitions.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Start deducts the test's credit cost and opens a new active session. Any
// session the user left running is abandoned first, so at most one countdown
// is live per user. The deduction and the session row share one database
// transaction: an insufficient balance leaves no session behind.
func (s *Service) Start(ctx context.Context, userID, testID uint64) (*models.TestSession, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("session: service not initialized")
	}

	var test models.Test
	if errFind := s.db.WithContext(ctx).
		Where("id = ? AND is_enabled = ?", testID, true).
		First(&test).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("session: query test: %w", errFind)
	}

	var created models.TestSession
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		if errAbandon := tx.Model(&models.TestSession{}).
			Where("user_id = ? AND status IN ?", userID, []models.SessionStatus{models.SessionActive, models.SessionPaused}).
			Updates(map[string]any{
				"status":       models.SessionAbandoned,
				"completed_at": now,
				"updated_at":   now,
			}).Error; errAbandon != nil {
			return errAbandon
		}

		sess := models.TestSession{
			UserID:          userID,
			TestID:          test.ID,
			Status:          models.SessionActive,
			StartedAt:       now,
			DurationSeconds: test.DurationSeconds,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if errCreate := tx.Create(&sess).Error; errCreate != nil {
			return errCreate
		}

		if test.CreditCost > 0 {
			if _, errDeduct := ledger.Deduct(ctx, tx, userID, test.CreditCost,
				models.RefTestSession, strconv.FormatUint(sess.ID, 10),
				fmt.Sprintf("test %q started", test.Title)); errDeduct != nil {
				return errDeduct
			}
		}

		created = sess
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &created, nil
}

// Load returns a session owned by the user.
func (s *Service) Load(ctx context.Context, sessionID, userID uint64) (*models.TestSession, error) {
	var sess models.TestSession
	if errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&sess).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: query session: %w", errFind)
	}
	return &sess, nil
}

// Remaining computes the authoritative remaining seconds at the given time.
// Elapsed time excludes completed pauses; a session currently paused is frozen
// at its pause start. The result is clamped at zero.
func Remaining(sess *models.TestSession, now time.Time) int {
	if sess == nil {
		return 0
	}
	reference := now.UTC()
	if sess.Status == models.SessionPaused && sess.PausedAt != nil {
		reference = sess.PausedAt.UTC()
	}
	elapsed := int(reference.Sub(sess.StartedAt.UTC()).Seconds()) - sess.PausedSeconds
	remaining := sess.DurationSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Complete submits the story and finishes the session. The terminal flip is a
// conditional update on non-terminal status, so a second submission (or a
// racing Abandon) is rejected with ErrSessionFinished. A timer that has
// already run out does not block completion; remaining time simply clamps to
// zero. The user's first completed test earns a one-time promo grant.
func (s *Service) Complete(ctx context.Context, sessionID, userID uint64, story string) (*models.TestSession, error) {
	sess, errLoad := s.Load(ctx, sessionID, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionFinished
	}

	now := time.Now().UTC()
	pausedSeconds := finalPausedSeconds(sess, now)

	res := s.db.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("id = ? AND status IN ?", sess.ID, []models.SessionStatus{models.SessionActive, models.SessionPaused}).
		Updates(map[string]any{
			"status":         models.SessionCompleted,
			"story":          story,
			"completed_at":   now,
			"paused_seconds": pausedSeconds,
			"paused_at":      nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("session: complete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionFinished
	}

	s.grantFirstCompletionPromo(ctx, userID)

	return s.Load(ctx, sessionID, userID)
}

// Abandon finishes the session without a story.
func (s *Service) Abandon(ctx context.Context, sessionID, userID uint64) (*models.TestSession, error) {
	sess, errLoad := s.Load(ctx, sessionID, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionFinished
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("id = ? AND status IN ?", sess.ID, []models.SessionStatus{models.SessionActive, models.SessionPaused}).
		Updates(map[string]any{
			"status":         models.SessionAbandoned,
			"completed_at":   now,
			"paused_seconds": finalPausedSeconds(sess, now),
			"paused_at":      nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("session: abandon: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionFinished
	}
	return s.Load(ctx, sessionID, userID)
}

// Pause suspends the countdown of an active session.
func (s *Service) Pause(ctx context.Context, sessionID, userID uint64) (*models.TestSession, error) {
	sess, errLoad := s.Load(ctx, sessionID, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionFinished
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("id = ? AND status = ?", sess.ID, models.SessionActive).
		Updates(map[string]any{
			"status":     models.SessionPaused,
			"paused_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("session: pause: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotActive
	}
	return s.Load(ctx, sessionID, userID)
}

// Resume restarts the countdown of a paused session, folding the completed
// pause into the accumulator.
func (s *Service) Resume(ctx context.Context, sessionID, userID uint64) (*models.TestSession, error) {
	sess, errLoad := s.Load(ctx, sessionID, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionFinished
	}
	if sess.Status != models.SessionPaused || sess.PausedAt == nil {
		return nil, ErrNotPaused
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("id = ? AND status = ?", sess.ID, models.SessionPaused).
		Updates(map[string]any{
			"status":         models.SessionActive,
			"paused_seconds": finalPausedSeconds(sess, now),
			"paused_at":      nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("session: resume: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotPaused
	}
	return s.Load(ctx, sessionID, userID)
}

// finalPausedSeconds folds an in-progress pause into the accumulator.
func finalPausedSeconds(sess *models.TestSession, now time.Time) int {
	total := sess.PausedSeconds
	if sess.PausedAt != nil {
		total += int(now.Sub(sess.PausedAt.UTC()).Seconds())
	}
	return total
}

// grantFirstCompletionPromo credits a one-time grant after the user's first
// completed test. The promo key makes the grant idempotent through the ledger
// reference index; failure to grant never fails the completion.
func (s *Service) grantFirstCompletionPromo(ctx context.Context, userID uint64) {
	var completed int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("user_id = ? AND status = ?", userID, models.SessionCompleted).
		Count(&completed).Error; errCount != nil {
		log.WithError(errCount).Warn("session: count completions failed")
		return
	}
	if completed != 1 {
		return
	}

	promoKey := fmt.Sprintf("first-completion:%d", userID)
	if _, errCredit := ledger.Credit(ctx, s.db, userID, firstCompletionPromoCredits,
		models.CreditTxPromo, models.RefPromo, promoKey,
		"first completed test bonus"); errCredit != nil && !errors.Is(errCredit, ledger.ErrDuplicateReference) {
		log.WithError(errCredit).Warn("session: first completion promo failed")
	}
}
