// Package activitymap flattens auth activity events into tenant scoped audit
// entries and stores them.
package activitymap

import (
	"maps"
	"strings"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
)

// Metadata keys added to Entry.Metadata
const (
	KeyFromStatus  = "from_status"
	KeyToStatus    = "to_status"
	KeyTokenFamily = "token_family"
)

// Entry is one audit line. Verb is a short past tense word derived from the
// event type and, for status changes, from the transition itself.
type Entry struct {
	Event      string
	Verb       string
	ActorID    string
	ActorRole  string
	Subject    string
	SubjectID  string
	CompanyID  string
	Channel    string
	Security   bool
	Family     string
	Metadata   map[string]any
	OccurredAt time.Time
}

var verbs = map[auth.ActivityEventType]string{
	auth.ActivityEventManagerSignup:         "registered",
	auth.ActivityEventMemberSignup:          "joined",
	auth.ActivityEventLoginSuccess:          "logged_in",
	auth.ActivityEventLoginFailure:          "login_failed",
	auth.ActivityEventLogout:                "logged_out",
	auth.ActivityEventTokenReuse:            "token_reused",
	auth.ActivityEventPasswordResetRequest:  "reset_requested",
	auth.ActivityEventPasswordResetSuccess:  "password_reset",
	auth.ActivityEventPasswordChanged:       "password_changed",
	auth.ActivityEventProfileUpdated:        "profile_updated",
	auth.ActivityEventInvitationRegenerated: "invitation_rotated",
}

var security = map[auth.ActivityEventType]bool{
	auth.ActivityEventLoginFailure:         true,
	auth.ActivityEventTokenReuse:           true,
	auth.ActivityEventPasswordResetRequest: true,
	auth.ActivityEventPasswordResetSuccess: true,
	auth.ActivityEventPasswordChanged:      true,
}

// Option tweaks how entries are built
type Option func(*options)

type options struct {
	channel string
	now     func() time.Time
}

// WithChannel tags entries with the surface that produced them, e.g. "api"
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithClock sets the time used for events that carry none
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel: "auth",
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewEntry flattens event. The source metadata map is never modified.
func NewEntry(event auth.ActivityEvent, opts ...Option) Entry {
	o := buildOptions(opts)

	entry := Entry{
		Event:      string(event.EventType),
		Verb:       Verb(event),
		ActorID:    strings.TrimSpace(event.Actor.ID),
		ActorRole:  strings.TrimSpace(event.Actor.Type),
		Subject:    subjectOf(event),
		SubjectID:  strings.TrimSpace(event.ObjectID),
		CompanyID:  strings.TrimSpace(event.CompanyID),
		Channel:    o.channel,
		Security:   security[event.EventType],
		Metadata:   maps.Clone(event.Metadata),
		OccurredAt: event.OccurredAt.UTC(),
	}

	if entry.ActorID == "" {
		entry.ActorID = "system"
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = o.now()
	}

	// a company is its own tenant
	if entry.CompanyID == "" && entry.Subject == string(auth.SubjectCompany) {
		entry.CompanyID = entry.SubjectID
	}

	if family, ok := entry.Metadata[KeyTokenFamily].(string); ok {
		entry.Family = family
	}

	if event.FromStatus != "" || event.ToStatus != "" {
		entry.set(KeyFromStatus, string(event.FromStatus))
		entry.set(KeyToStatus, string(event.ToStatus))
	}

	return entry
}

func (e *Entry) set(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata[key] = value
}

// Verb names what happened to the subject. Status changes map onto the
// approval vocabulary, unknown events fall back to the last segment of the
// event type.
func Verb(event auth.ActivityEvent) string {
	switch event.EventType {
	case auth.ActivityEventUserStatusChanged, auth.ActivityEventCompanyStatusChanged:
		return transitionVerb(event.FromStatus, event.ToStatus)
	}

	if verb, ok := verbs[event.EventType]; ok {
		return verb
	}

	name := string(event.EventType)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func transitionVerb(from, to auth.Status) string {
	switch {
	case to == auth.StatusRejected:
		return "rejected"
	case to == auth.StatusInactive:
		return "deactivated"
	case to == auth.StatusActive && from == auth.StatusInactive:
		return "reactivated"
	case to == auth.StatusActive:
		return "approved"
	default:
		return "status_changed"
	}
}

func subjectOf(event auth.ActivityEvent) string {
	if kind := strings.TrimSpace(event.ObjectType); kind != "" {
		return kind
	}
	if event.EventType == auth.ActivityEventCompanyStatusChanged ||
		event.EventType == auth.ActivityEventInvitationRegenerated {
		return string(auth.SubjectCompany)
	}
	return string(auth.SubjectMember)
}
