package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	refreshTokenBytes = 32
	tokenFamilyBytes  = 16
	tokenTypeBearer   = "Bearer"
)

// CleanupReport counts rows removed by a sweep
type CleanupReport struct {
	RefreshTokens int64 `json:"refresh_tokens"`
	ResetTokens   int64 `json:"reset_tokens"`
	Blacklisted   int64 `json:"blacklisted"`
}

// Total returns the number of rows removed
func (r CleanupReport) Total() int64 {
	return r.RefreshTokens + r.ResetTokens + r.Blacklisted
}

// TokenServiceOption customizes the token service
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenServiceLogger sets the logger
func WithTokenServiceLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// WithTokenServiceClock injects a custom clock (useful for tests).
func WithTokenServiceClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenServiceActivitySink sets the sink used for token reuse events
func WithTokenServiceActivitySink(sink ActivitySink) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.activity = normalizeActivitySink(sink)
	}
}

// WithRevokedRetention sets how long revoked refresh tokens are kept for
// reuse detection before the sweep deletes them.
func WithRevokedRetention(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if d > 0 {
			ts.revokedRetention = d
		}
	}
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	repo             RepositoryManager
	signingKey       []byte
	issuer           string
	audience         jwt.ClaimStrings
	accessTTL        time.Duration
	refreshTTL       time.Duration
	revokedRetention time.Duration
	logger           Logger
	activity         ActivitySink
	now              func() time.Time
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(repo RepositoryManager, cfg Config, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		repo:             repo,
		signingKey:       []byte(cfg.GetSigningKey()),
		issuer:           cfg.GetIssuer(),
		audience:         cfg.GetAudience(),
		accessTTL:        cfg.GetAccessTokenTTL(),
		refreshTTL:       cfg.GetRefreshTokenTTL(),
		revokedRetention: 7 * 24 * time.Hour,
		logger:           defLogger{},
		activity:         noopActivitySink{},
		now:              func() time.Time { return time.Now().UTC() },
	}

	if ts.accessTTL <= 0 {
		ts.accessTTL = 15 * time.Minute
	}

	if ts.refreshTTL <= 0 {
		ts.refreshTTL = 30 * 24 * time.Hour
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Issue creates a token pair in a fresh family
func (ts *TokenServiceImpl) Issue(ctx context.Context, user *User) (*TokenPair, error) {
	var pair *TokenPair
	err := ts.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		pair, err = ts.IssueTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, asRichError(err, "failed to issue tokens")
	}
	return pair, nil
}

// IssueTx creates a token pair in a fresh family using tx
func (ts *TokenServiceImpl) IssueTx(ctx context.Context, tx bun.IDB, user *User) (*TokenPair, error) {
	if user == nil {
		return nil, errors.New("user is required to issue tokens", errors.CategoryInternal)
	}

	family, err := randomHex(tokenFamilyBytes)
	if err != nil {
		return nil, err
	}

	refresh, _, err := ts.saveRefreshToken(ctx, tx, user.ID, family)
	if err != nil {
		return nil, err
	}

	return ts.pair(user, refresh)
}

// Refresh rotates a refresh token inside its family. Presenting a token
// that was already rotated revokes every token of the family.
func (ts *TokenServiceImpl) Refresh(ctx context.Context, refreshToken, accessToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}

	var pair *TokenPair
	var reuse *RefreshToken
	var revoked *TokenBlacklist

	err := ts.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pair, reuse, revoked = nil, nil, nil
		now := ts.now()

		current, err := ts.repo.RefreshTokens().FindByHashTx(ctx, tx, HashToken(refreshToken))
		if err != nil {
			return err
		}

		if current.RevokedAt != nil {
			if current.RevokedReason == RevokeReasonRotated {
				if _, err := ts.repo.RefreshTokens().RevokeFamilyTx(ctx, tx, current.TokenFamily, RevokeReasonReuse); err != nil {
					return err
				}
				reuse = current
				return nil
			}
			return ErrInvalidToken
		}

		if !now.Before(current.ExpiresAt) {
			return ErrInvalidToken
		}

		active, err := ts.repo.RefreshTokens().CountActiveInFamilyTx(ctx, tx, current.TokenFamily, now)
		if err != nil {
			return err
		}

		if active > 1 {
			if _, err := ts.repo.RefreshTokens().RevokeFamilyTx(ctx, tx, current.TokenFamily, RevokeReasonReuse); err != nil {
				return err
			}
			reuse = current
			return nil
		}

		user, err := ts.repo.Users().GetByUUIDTx(ctx, tx, current.UserID)
		if err != nil {
			if HasTextCode(err, TextCodeNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		if err := checkAccountStatusTx(ctx, tx, ts.repo.Companies(), user); err != nil {
			return err
		}

		raw, next, err := ts.saveRefreshToken(ctx, tx, user.ID, current.TokenFamily)
		if err != nil {
			return err
		}

		rotated, err := ts.repo.RefreshTokens().RevokeTx(ctx, tx, current.ID, RevokeReasonRotated, &next.ID)
		if err != nil {
			return err
		}

		// another request rotated the same token after we read it
		if !rotated {
			if _, err := ts.repo.RefreshTokens().RevokeFamilyTx(ctx, tx, current.TokenFamily, RevokeReasonReuse); err != nil {
				return err
			}
			reuse = current
			return nil
		}

		if accessToken != "" {
			if revoked, err = ts.blacklistTx(ctx, tx, accessToken, RevokeReasonRefresh, &user.ID); err != nil {
				ts.logger.Debug("refresh could not blacklist previous access token", "error", err)
			}
		}

		pair, err = ts.pair(user, raw)
		return err
	})

	if err != nil {
		return nil, asRichError(err, "failed to refresh tokens")
	}

	if reuse != nil {
		ts.logger.Warn("refresh token reuse detected",
			"user_id", reuse.UserID.String(),
			"token_family", reuse.TokenFamily,
		)
		recordActivity(ctx, ts.activity, ts.logger, ActivityEvent{
			EventType:  ActivityEventTokenReuse,
			Actor:      ActorRef{ID: reuse.UserID.String(), Type: "user"},
			ObjectType: "user",
			ObjectID:   reuse.UserID.String(),
			Metadata: map[string]any{
				"token_family": reuse.TokenFamily,
			},
			OccurredAt: ts.now(),
		})
		return nil, ErrTokenReuse
	}

	ts.repo.Blacklist().Cache(ctx, revoked)
	return pair, nil
}

// Revoke blacklists an access token until its natural expiry. Revoking the
// same token twice is a no-op.
func (ts *TokenServiceImpl) Revoke(ctx context.Context, accessToken, reason string) error {
	var entry *TokenBlacklist
	err := ts.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) (err error) {
		entry, err = ts.blacklistTx(ctx, tx, accessToken, reason, nil)
		return err
	})
	if err != nil {
		return asRichError(err, "failed to revoke token")
	}
	ts.repo.Blacklist().Cache(ctx, entry)
	return nil
}

// Logout revokes every refresh token of the user and blacklists the
// access token used for the request.
func (ts *TokenServiceImpl) Logout(ctx context.Context, userID uuid.UUID, accessToken string) error {
	var entry *TokenBlacklist
	err := ts.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) (err error) {
		entry = nil
		if err := ts.RevokeAllForUserTx(ctx, tx, userID, RevokeReasonLogout); err != nil {
			return err
		}
		if accessToken == "" {
			return nil
		}
		entry, err = ts.blacklistTx(ctx, tx, accessToken, RevokeReasonLogout, &userID)
		return err
	})
	if err != nil {
		return asRichError(err, "failed to logout")
	}
	ts.repo.Blacklist().Cache(ctx, entry)
	return nil
}

// RevokeAllForUserTx revokes every active refresh token owned by userID
func (ts *TokenServiceImpl) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, reason string) error {
	n, err := ts.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, userID, reason)
	if err != nil {
		return err
	}
	ts.logger.Debug("revoked refresh tokens", "user_id", userID.String(), "count", n, "reason", reason)
	return nil
}

// Validate satisfies TokenValidator
func (ts *TokenServiceImpl) Validate(ctx context.Context, tokenString string) (AuthClaims, error) {
	return ts.ValidateAccess(ctx, tokenString)
}

// ValidateAccess checks signature, issuer, audience, expiry and the blacklist
func (ts *TokenServiceImpl) ValidateAccess(ctx context.Context, tokenString string) (AuthClaims, error) {
	claims, err := ts.parse(tokenString, true)
	if err != nil {
		return nil, err
	}

	revoked, err := ts.repo.Blacklist().IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check token blacklist")
	}

	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// CleanupExpired removes expired refresh tokens, long revoked refresh
// tokens, used or expired reset tokens and expired blacklist rows.
func (ts *TokenServiceImpl) CleanupExpired(ctx context.Context) (CleanupReport, error) {
	now := ts.now()
	report := CleanupReport{}

	var err error
	if report.RefreshTokens, err = ts.repo.RefreshTokens().DeleteStale(ctx, now, ts.revokedRetention); err != nil {
		return report, errors.Wrap(err, errors.CategoryInternal, "failed to sweep refresh tokens")
	}

	if report.ResetTokens, err = ts.repo.PasswordResetTokens().DeleteStale(ctx, now); err != nil {
		return report, errors.Wrap(err, errors.CategoryInternal, "failed to sweep password reset tokens")
	}

	if report.Blacklisted, err = ts.repo.Blacklist().Purge(ctx, now); err != nil {
		return report, errors.Wrap(err, errors.CategoryInternal, "failed to sweep token blacklist")
	}

	return report, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// AccessTokenTTL returns the configured access token lifetime
func (ts *TokenServiceImpl) AccessTokenTTL() time.Duration {
	return ts.accessTTL
}

func (ts *TokenServiceImpl) signAccess(user *User) (string, error) {
	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
		UID:        user.ID.String(),
		UserRole:   string(user.Role),
		UserStatus: string(user.Status),
	}

	if user.CompanyID != nil {
		claims.Company = user.CompanyID.String()
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

func (ts *TokenServiceImpl) pair(user *User, refresh string) (*TokenPair, error) {
	access, err := ts.signAccess(user)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(ts.accessTTL / time.Second),
	}, nil
}

func (ts *TokenServiceImpl) saveRefreshToken(ctx context.Context, tx bun.IDB, userID uuid.UUID, family string) (string, *RefreshToken, error) {
	raw, err := randomToken(refreshTokenBytes)
	if err != nil {
		return "", nil, err
	}

	record := &RefreshToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHash:   HashToken(raw),
		TokenFamily: family,
		ExpiresAt:   ts.now().Add(ts.refreshTTL),
	}

	if err := ts.repo.RefreshTokens().SaveTx(ctx, tx, record); err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to store refresh token")
	}

	return raw, record, nil
}

// blacklistTx stores the token's jti in the blacklist table. The returned
// entry is nil when the token has already expired. Callers push it to the
// cache once the transaction committed.
func (ts *TokenServiceImpl) blacklistTx(ctx context.Context, tx bun.IDB, accessToken, reason string, userID *uuid.UUID) (*TokenBlacklist, error) {
	claims, err := ts.parse(accessToken, false)
	if err != nil {
		return nil, err
	}

	if !claims.Expires().After(ts.now()) {
		return nil, nil
	}

	if userID == nil {
		if id, err := uuid.Parse(claims.UserID()); err == nil {
			userID = &id
		}
	} else if claims.UserID() != userID.String() {
		return nil, NewError(ErrForbidden, map[string]any{
			"reason": "access token belongs to another user",
		})
	}

	entry := &TokenBlacklist{
		TokenID:   claims.TokenID(),
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: claims.Expires(),
	}
	if err := ts.repo.Blacklist().AddTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// parse verifies the signature. When validateClaims is false, time based
// claims are not checked so expired tokens can still be inspected.
func (ts *TokenServiceImpl) parse(tokenString string, validateClaims bool) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}

	if validateClaims {
		if ts.issuer != "" {
			parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
		}
		if len(ts.audience) > 0 {
			parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
		}
	} else {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithCode(ErrTokenMalformed.Code).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.TokenID() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// HashToken returns the hex sha256 digest stored in place of opaque tokens
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read random bytes")
	}
	return hex.EncodeToString(buf), nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
