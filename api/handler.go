package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourusername/burstfence/pkg/burstfence"
)

// MaxWait caps the wait a client may request through wait_ms.
const MaxWait = 30 * time.Second

// Handler handles token consumption requests
type Handler struct {
	limiter burstfence.RateLimiter
	logger  *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(limiter burstfence.RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
}

// ConsumeRequest represents the incoming consume request
type ConsumeRequest struct {
	Key    string `json:"key"`               // Required: unique identifier (user ID, API key, IP)
	Policy string `json:"policy,omitempty"`  // Optional: named policy, defaults otherwise
	Tokens int64  `json:"tokens,omitempty"`  // Optional: tokens to take, default 1
	WaitMs int64  `json:"wait_ms,omitempty"` // Optional: how long to wait for tokens
}

// ConsumeResponse represents the consume response
type ConsumeResponse struct {
	Allowed      bool  `json:"allowed"`                  // Whether the tokens were taken
	Remaining    int64 `json:"remaining"`                // Tokens left in the bucket
	Limit        int64 `json:"limit"`                    // Bucket capacity
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"` // Milliseconds until the next refill (if denied)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Consume handles POST /consume requests
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Key == "" {
		sendError(w, r, http.StatusBadRequest, "missing_key", "key is required")
		return
	}
	if req.WaitMs < 0 {
		sendError(w, r, http.StatusBadRequest, "invalid_wait", "wait_ms cannot be negative")
		return
	}

	wait := min(time.Duration(req.WaitMs)*time.Millisecond, MaxWait)
	decision, err := h.limiter.Take(r.Context(), burstfence.TakeRequest{
		Key:    req.Key,
		Policy: req.Policy,
		Tokens: req.Tokens,
		Wait:   wait,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := ConsumeResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		Limit:     decision.Limit,
	}
	statusCode := http.StatusOK
	if !decision.Allowed {
		resp.RetryAfterMs = decision.RetryAfter.Milliseconds()
		statusCode = http.StatusTooManyRequests
	}

	h.logger.Debug("consume",
		"request_id", RequestIDFrom(r.Context()),
		"key", req.Key,
		"policy", req.Policy,
		"tokens", req.Tokens,
		"allowed", decision.Allowed,
	)

	writeJSON(w, statusCode, resp)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, burstfence.ErrInvalidKey):
		sendError(w, r, http.StatusBadRequest, "missing_key", err.Error())
	case errors.Is(err, burstfence.ErrUnknownPolicy):
		sendError(w, r, http.StatusNotFound, "unknown_policy", err.Error())
	case errors.Is(err, burstfence.ErrInvalidArgument):
		sendError(w, r, http.StatusBadRequest, "invalid_tokens", err.Error())
	case errors.Is(err, burstfence.ErrCancelled):
		sendError(w, r, http.StatusRequestTimeout, "cancelled", "Request cancelled while waiting for tokens")
	default:
		h.logger.Error("consume failed", "request_id", RequestIDFrom(r.Context()), "error", err)
		sendError(w, r, http.StatusInternalServerError, "internal_error", "Internal Server Error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: RequestIDFrom(r.Context()),
	})
}
