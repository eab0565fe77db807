package auth

import (
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-tenant-auth/middleware/jwtware"
)

// Envelope is the JSON body of every API response
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Message   string     `json:"message,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RespondData writes a success envelope
func RespondData(c router.Context, status int, data any, message string) error {
	return c.JSON(status, Envelope{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// HTTPStatus resolves the status code for err
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}
	return statusFor(richErr)
}

func statusFor(richErr *goerrors.Error) int {
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RouteAuthenticator protects routes with bearer tokens and renders errors
// as JSON envelopes.
type RouteAuthenticator struct {
	tokens           TokenService
	contextKey       string
	rawTokenKey      string
	tokenLookup      string
	listeners        []ValidationListener
	now              func() time.Time
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

// RouteAuthenticatorOption customizes a RouteAuthenticator
type RouteAuthenticatorOption func(*RouteAuthenticator)

// WithRouteLogger sets the logger
func WithRouteLogger(logger Logger) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		a.Logger = normalizeLogger(logger)
	}
}

// WithRouteContextKey changes the Locals key holding the claims
func WithRouteContextKey(key string) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if key != "" {
			a.contextKey = key
		}
	}
}

// WithRouteTokenLookup changes where bearer tokens are read from,
// e.g. "header:Authorization,cookie:jwt".
func WithRouteTokenLookup(lookup string) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if lookup != "" {
			a.tokenLookup = lookup
		}
	}
}

// WithRouteValidationListeners adds listeners to every protected route
func WithRouteValidationListeners(listeners ...ValidationListener) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		a.listeners = append(a.listeners, listeners...)
	}
}

// WithRouteClock sets the clock used for envelope timestamps
func WithRouteClock(now func() time.Time) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewHTTPAuthenticator(tokens TokenService, opts ...RouteAuthenticatorOption) *RouteAuthenticator {
	a := &RouteAuthenticator{
		tokens:      tokens,
		contextKey:  DefaultContextKey,
		rawTokenKey: "raw_token",
		tokenLookup: "header:" + router.HeaderAuthorization,
		now:         time.Now,
		Logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a
}

// ContextKey returns the Locals key used for claims
func (a *RouteAuthenticator) ContextKey() string {
	return a.contextKey
}

// ProtectedRoute requires a valid, non revoked access token
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return jwtware.New(a.jwtConfig())
}

// RequireRole requires a token whose role is at least minRole
func (a *RouteAuthenticator) RequireRole(minRole UserRole) router.MiddlewareFunc {
	cfg := a.jwtConfig()
	cfg.MinimumRole = string(minRole)
	return jwtware.New(cfg)
}

// RequireAnyRole requires a token holding one of roles exactly
func (a *RouteAuthenticator) RequireAnyRole(roles ...UserRole) router.MiddlewareFunc {
	cfg := a.jwtConfig()
	for _, role := range roles {
		cfg.RequiredRoles = append(cfg.RequiredRoles, string(role))
	}
	return jwtware.New(cfg)
}

func (a *RouteAuthenticator) jwtConfig() jwtware.Config {
	cfg := jwtware.Config{
		TokenValidator:  JWTValidator(a.tokens),
		ContextKey:      a.contextKey,
		RawTokenKey:     a.rawTokenKey,
		TokenLookup:     a.tokenLookup,
		AuthScheme:      "Bearer",
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c router.Context, err error) error {
			return a.AuthErrorHandler(c, err)
		},
	}
	RegisterValidationListeners(&cfg, a.listeners...)
	return cfg
}

// Principal resolves the caller of a protected route
func (a *RouteAuthenticator) Principal(c router.Context) (Principal, error) {
	return PrincipalFromRouter(c, a.contextKey)
}

// RawToken returns the bearer token the middleware accepted
func (a *RouteAuthenticator) RawToken(c router.Context) string {
	raw, _ := c.Locals(a.rawTokenKey).(string)
	return raw
}

// BearerToken reads the Authorization header without validating it
func BearerToken(c router.Context) string {
	raw, err := jwtware.ExtractRawTokenFromContext(c, jwtware.GetExtractors("header:"+router.HeaderAuthorization, "Bearer"))
	if err != nil {
		return ""
	}
	return raw
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, ErrUnauthenticated.Message).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeUnauthenticated)
	}

	a.Logger.Debug("authentication rejected",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"method", c.Method(),
		"path", c.OriginalURL(),
	)

	return a.ErrorHandler(c, richErr)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = asRichError(err, "An unexpected server error occurred")
	}

	status := statusFor(richErr)
	body := &ErrorBody{
		Code:    richErr.TextCode,
		Message: richErr.Message,
	}

	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed",
			"error", richErr.Error(),
			"category", richErr.Category,
			"path", c.OriginalURL(),
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
		body.Code = TextCodeInternal
		body.Message = "An unexpected server error occurred"
	} else {
		if vm := richErr.ValidationMap(); len(vm) > 0 {
			body.Details = vm
		} else if len(richErr.Metadata) > 0 {
			body.Details = richErr.Metadata
		}
	}

	if body.Code == "" {
		body.Code = defaultTextCode(status)
	}

	return c.JSON(status, Envelope{
		Success:   false,
		Error:     body,
		Timestamp: a.now().UTC().Format(time.RFC3339),
	})
}

func defaultTextCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TextCodeValidation
	case http.StatusUnauthorized:
		return TextCodeUnauthenticated
	case http.StatusForbidden:
		return TextCodeForbidden
	case http.StatusNotFound:
		return TextCodeNotFound
	case http.StatusTooManyRequests:
		return TextCodeRateLimited
	default:
		return TextCodeInternal
	}
}
