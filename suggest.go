package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

/* ─── Request / Response types ───────────────────────────────────────── */

// suggestRequest is the request body for POST /api/exercises/suggest.
// ClientID optionally tailors the draft to one of the trainer's clients.
type suggestRequest struct {
	Description string `json:"description"`
	ClientID    *int   `json:"client_id"`
}

// exerciseSuggestion is the exercise draft returned by the AI, with a default
// prescription. Confidence is 1-5 indicating how sure the model is.
type exerciseSuggestion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MuscleGroup string `json:"muscle_group"`
	Equipment   string `json:"equipment"`
	Difficulty  string `json:"difficulty"`
	Sets        int    `json:"sets"`
	Reps        int    `json:"reps"`
	RestSeconds int    `json:"rest_seconds"`
	Confidence  int    `json:"confidence"`
}

/* ─── OpenAI prompt constants ────────────────────────────────────────── */

const exerciseSystemPrompt = `You are a strength and conditioning assistant helping a personal trainer build an exercise library. Parse the exercise description and return a JSON object with:
- "name" (string, cleaned up title case)
- "description" (string, one or two sentences on execution)
- "muscle_group" (string, lower case primary muscle group, e.g. chest, back, legs, shoulders, arms, core, full body)
- "equipment" (string, lower case, "none" for bodyweight)
- "difficulty" (one of: beginner, intermediate, advanced)
- "sets" (integer, a sensible default)
- "reps" (integer, a sensible default)
- "rest_seconds" (integer, a sensible default)
- "confidence" (integer 1-5: 5=standard well-known exercise, 3=reasonable interpretation, 1=very uncertain)

Always provide your best interpretation, even for vague descriptions. Only return {"error": "unrecognized"} if the input is not a physical exercise at all.
Return only valid JSON, no explanation.`

// clientContextTemplate is appended when the draft is for a specific client.
const clientContextTemplate = `

The exercise is for a client with:
- Injuries: %s
- Medical conditions: %s
- Goals: %s

Pick a difficulty and prescription appropriate for this client, and avoid loading injured areas.`

/* ─── OpenAI HTTP client ─────────────────────────────────────────────── */

// openAIMessage is a single message in the OpenAI chat completions request.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the request body for the OpenAI chat completions API.
type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

// callOpenAI sends a chat completions request and returns the raw content string
// from the first choice. Uses raw net/http to avoid pulling in the OpenAI SDK.
func callOpenAI(ctx context.Context, messages []openAIMessage, baseURL string) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", errors.New("OPENAI_API_KEY not set")
	}

	bodyBytes, err := json.Marshal(openAIRequest{
		Model:          "gpt-4o-mini",
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

/* ─── Handler ────────────────────────────────────────────────────────── */

// normalizeSuggestion cleans up model output so it can be posted straight
// back to POST /api/exercises. Returns false when no usable name came back.
func normalizeSuggestion(s *exerciseSuggestion) bool {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return false
	}
	s.MuscleGroup = strings.ToLower(strings.TrimSpace(s.MuscleGroup))
	s.Equipment = strings.ToLower(strings.TrimSpace(s.Equipment))
	s.Difficulty = strings.ToLower(strings.TrimSpace(s.Difficulty))
	if !validDifficulties[s.Difficulty] {
		s.Difficulty = "intermediate"
	}
	if s.Sets <= 0 {
		s.Sets = 3
	}
	if s.Reps <= 0 {
		s.Reps = 10
	}
	if s.RestSeconds < 0 {
		s.RestSeconds = 60
	}
	if s.Confidence < 1 || s.Confidence > 5 {
		s.Confidence = 1
	}
	return true
}

// suggestExercise handles POST /api/exercises/suggest.
// Accepts a free-text exercise description, calls OpenAI to turn it into an
// exercise draft, and returns the draft without saving it.
func (h *Handler) suggestExercise(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}

	messages := []openAIMessage{
		{Role: "system", Content: h.buildSuggestPrompt(c, req.ClientID)},
		{Role: "user", Content: req.Description},
	}

	content, err := callOpenAI(c.Request.Context(), messages, h.openAIBaseURL)
	if err != nil {
		logger.Error("openai request failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "openai request failed")
		return
	}

	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &errorResp); err != nil {
		logger.Error("failed to parse openai response", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "openai request failed")
		return
	}
	if errorResp.Error == "unrecognized" {
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}

	var suggestion exerciseSuggestion
	if err := json.Unmarshal([]byte(content), &suggestion); err != nil {
		logger.Error("failed to parse suggestion json", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "openai request failed")
		return
	}
	if !normalizeSuggestion(&suggestion) {
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}

	c.JSON(http.StatusOK, suggestion)
}

// buildSuggestPrompt adds the client's injuries and goals to the system
// prompt when clientID names one of the caller's clients. Falls back to the
// generic prompt otherwise.
func (h *Handler) buildSuggestPrompt(c *gin.Context, clientID *int) string {
	if h.db == nil || clientID == nil {
		return exerciseSystemPrompt
	}
	p, err := queryOne[clientProfile](h.db, c,
		`SELECT p.* FROM client_profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.user_id = @clientID AND u.trainer_id = @trainerID`,
		pgx.NamedArgs{"clientID": *clientID, "trainerID": c.GetInt("user_id")})
	if err != nil {
		return exerciseSystemPrompt
	}
	if p.Injuries == nil && p.MedicalConditions == nil && p.Goals == nil {
		return exerciseSystemPrompt
	}

	orNone := func(s *string) string {
		if s == nil || strings.TrimSpace(*s) == "" {
			return "none"
		}
		return *s
	}
	return exerciseSystemPrompt + fmt.Sprintf(clientContextTemplate,
		orNone(p.Injuries), orNone(p.MedicalConditions), orNone(p.Goals))
}
