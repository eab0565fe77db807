package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Status is the approval lifecycle state shared by users and companies
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusInactive Status = "inactive"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected, StatusInactive:
		return true
	default:
		return false
	}
}

// User is the user model
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email             string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	FirstName         string     `bun:"first_name,notnull" json:"first_name"`
	LastName          string     `bun:"last_name,notnull" json:"last_name"`
	Phone             string     `bun:"phone_number" json:"phone_number,omitempty"`
	Role              UserRole   `bun:"user_role,notnull" json:"role"`
	Status            Status     `bun:"status,notnull" json:"status"`
	CompanyID         *uuid.UUID `bun:"company_id,type:uuid" json:"company_id,omitempty"`
	Company           *Company   `bun:"rel:belongs-to,join:company_id=id" json:"company,omitempty"`
	LoginAttempts     int        `bun:"login_attempts,notnull,default:0" json:"-"`
	LoginAttemptAt    *time.Time `bun:"login_attempt_at" json:"-"`
	LastLoginAt       *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	PasswordChangedAt *time.Time `bun:"password_changed_at" json:"-"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// BelongsTo reports whether the user is a member of the company
func (u *User) BelongsTo(companyID uuid.UUID) bool {
	return u != nil && u.CompanyID != nil && *u.CompanyID == companyID
}

// EnsureStatus defaults an empty status to pending
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = StatusPending
	}
}

// Company is a tenant
type Company struct {
	bun.BaseModel  `bun:"table:companies,alias:cmp"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name           string     `bun:"name,notnull,unique" json:"name"`
	Description    string     `bun:"description" json:"description,omitempty"`
	Status         Status     `bun:"status,notnull" json:"status"`
	InvitationCode *string    `bun:"invitation_code,unique" json:"invitation_code,omitempty"`
	ManagerID      *uuid.UUID `bun:"manager_id,type:uuid" json:"manager_id,omitempty"`
	ApprovedAt     *time.Time `bun:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy     *uuid.UUID `bun:"approved_by,type:uuid" json:"approved_by,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// EnsureStatus defaults an empty status to pending
func (c *Company) EnsureStatus() {
	if c.Status == "" {
		c.Status = StatusPending
	}
}

// Reasons recorded on revoked refresh tokens and blacklist entries
const (
	RevokeReasonRotated        = "ROTATED"
	RevokeReasonReuse          = "TOKEN_REUSE"
	RevokeReasonLogout         = "USER_LOGOUT"
	RevokeReasonRefresh        = "TOKEN_REFRESH"
	RevokeReasonPasswordReset  = "PASSWORD_RESET"
	RevokeReasonPasswordChange = "PASSWORD_CHANGE"
)

// RefreshToken is the persisted side of a refresh token. Only the sha256
// digest of the opaque value is stored.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	TokenFamily   string     `bun:"token_family,notnull" json:"token_family"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at" json:"revoked_at,omitempty"`
	RevokedReason string     `bun:"revoked_reason" json:"revoked_reason,omitempty"`
	ReplacedBy    *uuid.UUID `bun:"replaced_by,type:uuid" json:"replaced_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsActive is true when the token is neither revoked nor expired at now
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// PasswordResetToken is a single use reset credential
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	UsedAt        *time.Time `bun:"used_at" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TokenBlacklist holds revoked access tokens, keyed by jti, until they expire
type TokenBlacklist struct {
	bun.BaseModel `bun:"table:token_blacklist,alias:tbl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	TokenID       string     `bun:"token_id,notnull,unique" json:"token_id"`
	UserID        *uuid.UUID `bun:"user_id,type:uuid" json:"user_id,omitempty"`
	Reason        string     `bun:"reason" json:"reason,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Models lists the tables owned by this package, in creation order
func Models() []any {
	return []any{
		(*Company)(nil),
		(*User)(nil),
		(*RefreshToken)(nil),
		(*PasswordResetToken)(nil),
		(*TokenBlacklist)(nil),
	}
}
