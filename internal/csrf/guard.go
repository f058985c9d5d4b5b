// Package csrf implements the stateless double-submit cookie defense: a token
// held in both a non-httpOnly cookie and a client-echoed header. Same-origin
// policy stops a hostile page from reading the cookie to forge the header,
// even though it can cause the cookie to be sent automatically.
package csrf

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"civicgate/internal/audit"
	"civicgate/internal/platform/config"
	"civicgate/internal/platform/metrics"
	dErrors "civicgate/pkg/domain-errors"
	"civicgate/pkg/platform/httputil"
	"civicgate/pkg/platform/privacy"
	"civicgate/pkg/requestcontext"
)

// Guard issues and validates the double-submit token pair. Each request is
// judged independently; there is no server-side token state.
type Guard struct {
	cfg            config.CSRFConfig
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Publisher
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithMetrics wires the rejection counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithAuditPublisher sets the security audit sink.
func WithAuditPublisher(pub audit.Publisher) Option {
	return func(g *Guard) {
		g.auditPublisher = pub
	}
}

// New constructs a Guard from configuration.
func New(cfg config.CSRFConfig, opts ...Option) *Guard {
	g := &Guard{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware enforces the double-submit check on unsafe methods and issues or
// refreshes the token cookie on safe methods. When protection is disabled via
// configuration (internal-only deployments not reachable from a browser),
// every request passes through unmodified.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if isSafeMethod(r.Method) {
			g.issueToken(w, r)
			next.ServeHTTP(w, r)
			return
		}

		cookieToken := g.readCookieToken(r)
		headerToken := g.readHeaderToken(r)

		if cookieToken == "" || headerToken == "" {
			g.reject(w, r, "token_required", "CSRF token required")
			return
		}
		if cookieToken != headerToken {
			g.reject(w, r, "token_mismatch", "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// issueToken sets the CSRF cookie: a fresh random token when none exists, or
// the same value re-set to refresh the expiry. The cookie is deliberately not
// httpOnly so client script can echo it back in the header.
func (g *Guard) issueToken(w http.ResponseWriter, r *http.Request) {
	token := g.readCookieToken(r)
	if token == "" {
		token = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.cfg.CookieDomain,
		MaxAge:   int(g.cfg.TokenMaxAge.Seconds()),
		HttpOnly: false,
		Secure:   g.cfg.SecureCookie,
		SameSite: parseSameSite(g.cfg.SameSite),
	})
}

// readHeaderToken returns the first value of the configured header.
func (g *Guard) readHeaderToken(r *http.Request) string {
	values := r.Header.Values(g.cfg.HeaderName)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// readCookieToken reads the CSRF cookie, falling back to a manual parse of the
// raw Cookie header when the structured jar rejects it.
func (g *Guard) readCookieToken(r *http.Request) string {
	if cookie, err := r.Cookie(g.cfg.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return parseRawCookie(r.Header.Get("Cookie"), g.cfg.CookieName)
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, reason, message string) {
	ctx := r.Context()
	if g.logger != nil {
		g.logger.WarnContext(ctx, "CSRF validation failed",
			"reason", reason,
			"method", r.Method,
			"path", r.URL.Path,
			"source", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		)
	}
	if g.metrics != nil {
		g.metrics.CSRFRejections.WithLabelValues(reason).Inc()
	}
	audit.Emit(ctx, g.logger, g.auditPublisher, audit.ActionCSRFRejected, map[string]string{
		"reason": reason,
		"method": r.Method,
		"path":   r.URL.Path,
		"source": privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
	})
	httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, message))
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func parseSameSite(mode string) http.SameSite {
	switch mode {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
