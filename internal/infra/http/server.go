package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/infra/logging"
	"telegram-paid-channel/internal/usecase"
)

// maxWebhookBody caps notification bodies; provider callbacks are tiny.
const maxWebhookBody = 1 << 20

// Server exposes the webhook endpoints the payment providers call back into,
// plus health and metrics. Every verified-or-not notification outcome is
// answered 2xx so providers stop redelivering; only internal failures get a
// 5xx and a retry.
type Server struct {
	pm     usecase.PaymentManager
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(pm usecase.PaymentManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{pm: pm, log: &l}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhook/{provider}", s.handleWebhook)
	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	ctx := logging.WithProvider(r.Context(), provider)
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		ctx = logging.WithTraceID(ctx, reqID)
	}
	log := logging.With(ctx, s.log)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	outcome, err := s.pm.ProcessWebhook(ctx, provider, body, r.Header)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			http.Error(w, "unknown provider", http.StatusNotFound)
			return
		}
		// Internal failure: a 5xx makes the provider redeliver, which is
		// safe because processing is idempotent per key.
		log.Error().Err(err).Msg("webhook processing failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.Info().Str("outcome", string(outcome)).Msg("webhook handled")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, string(outcome))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
