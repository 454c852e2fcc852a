// Package httpserver serves the plain-HTTP side of flour: health, metrics
// and payment provider webhooks.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/metrics"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/payment"
	"github.com/and161185/flour/internal/repository"
)

// MaxWebhookBody bounds webhook payloads.
const MaxWebhookBody = 64 << 10

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

// PaymentRecorder is the part of the engine webhooks drive.
type PaymentRecorder interface {
	RecordPaymentOutcome(ctx context.Context, txID uuid.UUID, succeeded bool, reason string) (model.Transaction, error)
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	payments      PaymentRecorder
	dedupe        repository.EventDeduper
	webhookSecret string
	log           *zap.Logger
	metrics       *metrics.Collector
	parse         func(payload []byte, sig, secret string) (payment.Outcome, error)
}

// New constructs the HTTP server. An empty webhookSecret disables the webhook route.
func New(payments PaymentRecorder, dedupe repository.EventDeduper, webhookSecret string, log *zap.Logger, mc *metrics.Collector) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		payments:      payments,
		dedupe:        dedupe,
		webhookSecret: webhookSecret,
		log:           log,
		metrics:       mc,
		parse:         payment.ParseWebhook,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	if s.webhookSecret != "" {
		r.Post("/webhooks/payments", s.paymentWebhook)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// paymentWebhook verifies the event, drops redeliveries and records the outcome.
// Outcomes the engine rejects are acknowledged so the provider stops retrying.
func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		s.webhookDone(w, http.StatusRequestEntityTooLarge, "too_large")
		return
	}

	out, err := s.parse(body, r.Header.Get(SignatureHeader), s.webhookSecret)
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		s.webhookDone(w, http.StatusOK, "ignored")
		return
	case err != nil:
		s.log.Warn("webhook rejected", zap.Error(err))
		s.webhookDone(w, http.StatusBadRequest, "invalid")
		return
	}

	if s.dedupe != nil {
		first, err := s.dedupe.FirstSeen(r.Context(), out.EventID)
		if err != nil {
			s.log.Error("webhook dedupe", zap.String("event_id", out.EventID), zap.Error(err))
			s.webhookDone(w, http.StatusInternalServerError, "error")
			return
		}
		if !first {
			s.webhookDone(w, http.StatusOK, "duplicate")
			return
		}
	}

	_, err = s.payments.RecordPaymentOutcome(r.Context(), out.TransactionID, out.Succeeded, out.Reason)
	switch {
	case err == nil:
		s.webhookDone(w, http.StatusOK, "recorded")
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrInvalidState):
		s.log.Warn("payment outcome rejected",
			zap.String("event_id", out.EventID),
			zap.String("transaction_id", out.TransactionID.String()),
			zap.Error(err))
		s.webhookDone(w, http.StatusOK, "rejected")
	default:
		s.log.Error("payment outcome", zap.String("event_id", out.EventID), zap.Error(err))
		s.webhookDone(w, http.StatusInternalServerError, "error")
	}
}

func (s *Server) webhookDone(w http.ResponseWriter, code int, outcome string) {
	s.metrics.Webhook(outcome)
	writeJSON(w, code, map[string]string{"outcome": outcome})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
