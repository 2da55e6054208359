package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"txledger/internal/auth"
	"txledger/internal/graph"
	applog "txledger/internal/log"
	"txledger/internal/models"

	"github.com/goccy/go-json"
)

const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// maxRequestBytes bounds the size of a graph request body.
	maxRequestBytes = 1 << 20
)

// Pinger reports whether the data store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	registry   *graph.Registry
	sessions   *auth.SessionManager
	auth       *auth.Service
	store      Pinger
	logger     *applog.Logger
	production bool
}

// NewHandlers creates a new Handlers instance. production switches the
// session cookie to Secure and SameSite=None.
func NewHandlers(registry *graph.Registry, sessions *auth.SessionManager, authService *auth.Service, store Pinger, logger *applog.Logger, production bool) *Handlers {
	return &Handlers{
		registry:   registry,
		sessions:   sessions,
		auth:       authService,
		store:      store,
		logger:     logger.WithComponent(applog.ComponentHTTP),
		production: production,
	}
}

// SessionMiddleware builds the identity of every request. Credentials sent
// with HTTP Basic auth are verified up front; otherwise the session cookie
// is looked up the first time a resolver asks for the caller.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var eager *models.User
		if username, password, ok := r.BasicAuth(); ok {
			user, err := h.auth.VerifyCredentials(ctx, username, password)
			if err != nil {
				h.logger.Ctx(ctx).DebugContext(ctx, "Basic credentials rejected", applog.FieldUsername, username)
			} else {
				eager = user
			}
		}

		resolve := func(ctx context.Context) *models.User {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return nil
			}
			return h.sessions.Resolve(ctx, cookie.Value)
		}

		identity := auth.NewIdentity(eager, resolve, &cookieBinder{h: h, w: w, r: r})
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, identity)))
	})
}

// cookieBinder ties login and logout to the session cookie of one request.
type cookieBinder struct {
	h *Handlers
	w http.ResponseWriter
	r *http.Request
}

func (b *cookieBinder) Bind(ctx context.Context, user *models.User) error {
	// Drop any session the client already holds before issuing a new one.
	if cookie, err := b.r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := b.h.sessions.Destroy(ctx, cookie.Value); err != nil {
			b.h.logger.Ctx(ctx).WarnContext(ctx, "Failed to delete previous session", applog.FieldError, err)
		}
	}

	value, expiresAt, err := b.h.sessions.Create(ctx, user)
	if err != nil {
		return err
	}
	b.h.setSessionCookie(b.w, value, expiresAt)
	return nil
}

func (b *cookieBinder) Unbind(ctx context.Context) error {
	if cookie, err := b.r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := b.h.sessions.Destroy(ctx, cookie.Value); err != nil {
			b.h.logger.Ctx(ctx).ErrorContext(ctx, "Failed to delete session", applog.FieldError, err)
		}
	}
	b.h.clearSessionCookie(b.w)
	return nil
}

func (h *Handlers) sameSite() http.SameSite {
	if h.production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(auth.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: h.sameSite(),
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: h.sameSite(),
	})
}

// GraphError is one error entry of a graph response.
type GraphError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// GraphResponse is the body returned by the graph endpoint.
type GraphResponse struct {
	Data   any          `json:"data"`
	Errors []GraphError `json:"errors,omitempty"`
}

// Graph executes one operation. Operation failures are reported in the
// errors list with status 200; only unreadable requests get a 4xx status.
func (h *Handlers) Graph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req graph.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, GraphResponse{
			Errors: []GraphError{{Message: "invalid request body", Code: graph.CodeInvalidInput}},
		})
		return
	}

	data, err := h.registry.Execute(ctx, req)
	if err != nil {
		code := graph.ErrorCode(err)
		logger := h.logger.Ctx(ctx).With(applog.FieldOperation, string(req.Operation), applog.FieldErrorCode, code)
		if code == graph.CodeStore || code == graph.CodeInternal {
			logger.ErrorContext(ctx, "Operation failed", applog.FieldError, err)
		} else {
			logger.InfoContext(ctx, "Operation rejected", applog.FieldError, err)
		}
		h.writeJSON(w, http.StatusOK, GraphResponse{
			Errors: []GraphError{{Message: graph.ErrorMessage(err), Code: code}},
		})
		return
	}

	h.writeJSON(w, http.StatusOK, GraphResponse{Data: data})
}

// Health reports whether the server and its data store are up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Ctx(ctx).ErrorContext(ctx, "Health check failed", applog.FieldError, err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.logger.Error("Response encoding error", applog.FieldError, err)
	}
}
