// Package api exposes the HTTP surface of the bot: the mini-app endpoints,
// the provider callback and the payment webhook.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aieffects/videobot/internal/service"
)

type Server struct {
	addr      string
	log       *slog.Logger
	tasks     *service.TaskService
	callbacks *service.CallbackService
	payments  *service.PaymentService
	users     *service.UserService
	router    *chi.Mux
}

func NewServer(addr string, log *slog.Logger, tasks *service.TaskService, callbacks *service.CallbackService, payments *service.PaymentService, users *service.UserService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		log:       log,
		tasks:     tasks,
		callbacks: callbacks,
		payments:  payments,
		users:     users,
		router:    r,
	}

	r.Get("/", s.handleHealth)
	r.Post("/api/callback/{provider}", s.handleProviderCallback)
	r.Post("/api/payment/webhook", s.handlePaymentWebhook)

	r.Group(func(authed chi.Router) {
		authed.Use(s.telegramUserMiddleware())
		authed.Post("/api/generate", s.handleGenerate)
		authed.Get("/api/status/{taskID}", s.handleStatus)
		authed.Get("/api/user", s.handleGetUser)
		authed.Get("/api/user/has-pending", s.handleHasPending)
		authed.Patch("/api/user/settings", s.handleUpdateSettings)
		authed.Get("/api/plans", s.handleListPlans)
		authed.Post("/api/payment/create", s.handleCreatePayment)
		authed.Post("/api/payment/verify", s.handleVerifyPayment)
		authed.Get("/api/ref-tags", s.handleListTags)
		authed.Post("/api/ref-tags", s.handleCreateTag)
		authed.Delete("/api/ref-tags/{name}", s.handleDeleteTag)
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type ctxKey int

const userIDKey ctxKey = 0

// telegramUserMiddleware authenticates mini-app requests by the Telegram user
// id header the webapp forwards after validating initData.
func (s *Server) telegramUserMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(r.Header.Get("X-Telegram-User-Id"), 10, 64)
			if err != nil || id <= 0 {
				s.writeError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
		})
	}
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string, details map[string]any) {
	body := map[string]any{"error": code}
	for k, v := range details {
		body[k] = v
	}
	s.writeJSON(w, status, body)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal_error", nil)
}
