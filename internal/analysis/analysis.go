// Package analysis produces the LLM evaluation of a completed session's
// story. The analysis payload is opaque to the rest of the system: it is
// stored and served as-is, one result per session.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotCompleted indicates the session has no submitted story yet.
	ErrNotCompleted = errors.New("analysis: session not completed")
	// ErrUnavailable indicates a transient analysis API failure.
	ErrUnavailable = errors.New("analysis: api unavailable")
)

// Client abstracts the completion API that evaluates stories.
type Client interface {
	Analyze(ctx context.Context, story string) (json.RawMessage, string, error)
}

// HTTPClient calls a chat-completions style API over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPClient constructs an HTTPClient from config.
func NewHTTPClient(cfg config.AnalysisConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// analysisPrompt frames the story for the completion API.
const analysisPrompt = "You are a trained TAT assessor. Analyze the following story for themes, needs, conflicts, and officer-like qualities. Respond with a JSON object."

// Analyze sends the story to the completion API and returns the raw JSON
// analysis plus the model name that produced it.
func (c *HTTPClient) Analyze(ctx context.Context, story string) (json.RawMessage, string, error) {
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": analysisPrompt},
			{"role": "user", "content": story},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	payload, errMarshal := json.Marshal(reqBody)
	if errMarshal != nil {
		return nil, "", fmt.Errorf("analysis: marshal request: %w", errMarshal)
	}

	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if errReq != nil {
		return nil, "", fmt.Errorf("analysis: build request: %w", errReq)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, errDo := c.client.Do(httpReq)
	if errDo != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	data, errRead := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if errRead != nil {
		return nil, "", fmt.Errorf("%w: read response: %v", ErrUnavailable, errRead)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("analysis: api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	// completionResponse maps the fields needed from the API reply.
	var completionResponse struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if errUnmarshal := json.Unmarshal(data, &completionResponse); errUnmarshal != nil {
		return nil, "", fmt.Errorf("analysis: decode response: %w", errUnmarshal)
	}
	if len(completionResponse.Choices) == 0 {
		return nil, "", fmt.Errorf("analysis: empty completion")
	}

	content := completionResponse.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		// Some models wrap JSON in prose; keep the reply verbatim as a string.
		wrapped, _ := json.Marshal(map[string]string{"raw": content})
		return wrapped, completionResponse.Model, nil
	}
	return json.RawMessage(content), completionResponse.Model, nil
}

// Service persists analysis results keyed 1:1 to sessions.
type Service struct {
	db     *gorm.DB
	client Client
}

// NewService constructs a Service.
func NewService(db *gorm.DB, client Client) *Service {
	return &Service{db: db, client: client}
}

// AnalyzeSession returns the stored analysis for a completed session,
// producing it on first request. A concurrent duplicate insert loses to the
// unique session index and falls back to the stored row.
func (s *Service) AnalyzeSession(ctx context.Context, sessionID, userID uint64) (*models.AnalysisResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("analysis: service not initialized")
	}

	var sess models.TestSession
	if errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&sess).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("analysis: query session: %w", errFind)
	}
	if sess.Status != models.SessionCompleted || strings.TrimSpace(sess.Story) == "" {
		return nil, ErrNotCompleted
	}

	var existing models.AnalysisResult
	errExisting := s.db.WithContext(ctx).Where("session_id = ?", sess.ID).First(&existing).Error
	if errExisting == nil {
		return &existing, nil
	}
	if !errors.Is(errExisting, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("analysis: query result: %w", errExisting)
	}

	result, model, errAnalyze := s.client.Analyze(ctx, sess.Story)
	if errAnalyze != nil {
		return nil, errAnalyze
	}

	row := models.AnalysisResult{
		SessionID: sess.ID,
		Result:    datatypes.JSON(result),
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			var stored models.AnalysisResult
			if errFind := s.db.WithContext(ctx).Where("session_id = ?", sess.ID).First(&stored).Error; errFind == nil {
				return &stored, nil
			}
		}
		return nil, fmt.Errorf("analysis: store result: %w", errCreate)
	}
	return &row, nil
}
