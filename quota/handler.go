package quota

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"logquota/quota/domain"

	"github.com/go-playground/validator/v10"
)

const (
	MsgLogged       = "Logged successfully"
	MsgLimitReached = "Usage limit reached. Try again in 24 hours."
	MsgRequired     = "Message is required."
	MsgBadBody      = "Invalid request body."
	MsgInternal     = "Internal server error"

	defaultMaxBodyBytes = 64 << 10
)

// Admitter é o que o handler precisa do gate.
type Admitter interface {
	CheckAndRecord(ctx context.Context, id domain.Key, content string) (domain.Decision, error)
}

type HandlerOptions struct {
	Gate               Admitter
	KeyFn              KeyFunc
	TrustXForwardedFor bool
	Logger             *slog.Logger
	MaxBodyBytes       int64
	// AddQuotaHeaders expõe X-Quota-Limit / X-Quota-Used nas respostas 200/429.
	AddQuotaHeaders bool
}

type logRequest struct {
	Message string `json:"message" validate:"required"`
}

// Handler atende POST /log.
type Handler struct {
	gate       Admitter
	keyFn      KeyFunc
	log        *slog.Logger
	validate   *validator.Validate
	maxBody    int64
	addHeaders bool
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		gate:       opts.Gate,
		keyFn:      opts.KeyFn,
		log:        opts.Logger,
		validate:   validator.New(),
		maxBody:    opts.MaxBodyBytes,
		addHeaders: opts.AddQuotaHeaders,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, MsgBadBody)
		return
	}
	if err := h.validate.Struct(req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeMessage(w, http.StatusBadRequest, MsgRequired)
		return
	}

	key := domain.Key(strings.TrimSpace(h.keyFn(r)))
	decision, err := h.gate.CheckAndRecord(r.Context(), key, req.Message)
	switch {
	case domain.IsInvalidInput(err):
		writeMessage(w, http.StatusBadRequest, MsgRequired)
		return
	case err != nil:
		h.log.Error("log submission failed",
			"identifier", key,
			"storage_unavailable", domain.IsStorageUnavailable(err),
			"error", err,
		)
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	if h.addHeaders {
		w.Header().Set("X-Quota-Limit", formatInt(decision.Limit))
		w.Header().Set("X-Quota-Used", formatInt(decision.Used))
	}

	if !decision.Allowed {
		h.log.Info("log submission rejected", "identifier", key, "used", decision.Used, "limit", decision.Limit)
		w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
		writeMessage(w, http.StatusTooManyRequests, MsgLimitReached)
		return
	}

	h.log.Debug("log submission admitted", "identifier", key, "record_id", decision.RecordID)
	writeMessage(w, http.StatusOK, MsgLogged)
}
