package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/channel"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/observability"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user"
)

// Deps are the wired handlers the router mounts.
type Deps struct {
	Config   *config.Config
	Logger   *zap.SugaredLogger
	Metrics  *observability.Metrics
	Auth     *auth.Authenticator
	Sessions *auth.Handler
	Users    *user.Handler
	Channels *channel.Handler
	// Ready backs /health; nil means always ready.
	Ready func(ctx context.Context) error
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.status == 0 {
		lrw.status = code
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request; server errors at warn, the rest at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"size", lrw.size,
			}
			if status >= http.StatusInternalServerError {
				logger.Warnw("http request", fields...)
				return
			}
			logger.Debugw("http request", fields...)
		})
	}
}

// SecurityHeadersMiddleware sets the usual hardening headers and, in
// production, redirects plain HTTP to HTTPS.
func SecurityHeadersMiddleware(production bool, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer-when-downgrade",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=()",
		ContentSecurityPolicy: "default-src 'self'; object-src 'none'; base-uri 'self';",
		STSSeconds:            2592000,
		STSIncludeSubdomains:  true,
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				// secure already wrote the redirect or rejection
				logger.Debugw("secure middleware stopped request", "path", r.URL.Path, "err", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TimeoutMiddleware bounds every request with a context deadline. When the
// deadline passes before the handler wrote anything, the client gets the
// error envelope with 503.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				cancel()
				if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
					httpx.Error(ww, apierr.Unavailable("request timed out", ctx.Err()))
				}
			}()
			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

// CORSMiddleware allows credentialed requests from a single origin. "*"
// allows any origin without credentials.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if origin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin != "*" && r.Header.Get("Origin") != origin {
				next.ServeHTTP(w, r)
				return
			}
			// browsers refuse credentials with a wildcard origin
			if origin == "*" {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts health, metrics and the user API under the configured base path.
func RegisterRoutes(d Deps) http.Handler {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		LoggingMiddleware(logger),
		middleware.Recoverer,
		SecurityHeadersMiddleware(cfg.IsProduction(), logger),
		CORSMiddleware(cfg.CORSOrigin),
		d.Metrics.Middleware,
		TimeoutMiddleware(cfg.RequestTimeout),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, apierr.NotFound("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, &apierr.Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				logger.Warnw("health check failed", "err", err)
				httpx.Error(w, apierr.Unavailable("store unavailable", err))
				return
			}
		}
		httpx.Success(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route(cfg.BasePath, func(api chi.Router) {
		// multipart endpoints
		api.Group(func(mp chi.Router) {
			mp.Use(middleware.RequestSize(cfg.Media.MaxFileSize))
			mp.Post("/register", d.Users.Register)
			mp.Group(func(priv chi.Router) {
				priv.Use(d.Auth.Middleware)
				both(priv, "/update-avatar-image", d.Users.UpdateAvatarImage)
				both(priv, "/update-cover-image", d.Users.UpdateCoverImage)
			})
		})

		api.Group(func(js chi.Router) {
			js.Use(middleware.RequestSize(cfg.BodyLimit))
			js.Post("/login", d.Sessions.Login)
			js.Post("/refresh-access-token", d.Sessions.RefreshAccessToken)
			js.With(d.Auth.Optional).Get("/channel/{username}", d.Channels.GetChannel)

			js.Group(func(priv chi.Router) {
				priv.Use(d.Auth.Middleware)
				priv.Post("/logout", d.Sessions.Logout)
				both(priv, "/change-current-password", d.Sessions.ChangeCurrentPassword)
				priv.Get("/get-current-user", d.Users.GetCurrentUser)
				both(priv, "/update-user-data", d.Users.UpdateUserData)
				priv.Post("/channel/{username}/subscription", d.Channels.Subscribe)
				priv.Delete("/channel/{username}/subscription", d.Channels.Unsubscribe)
			})
		})
	})

	return r
}

// both mounts a mutation on PATCH and POST.
func both(r chi.Router, pattern string, h http.HandlerFunc) {
	r.Patch(pattern, h)
	r.Post(pattern, h)
}
