package activitymap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
)

func TestVerb(t *testing.T) {
	tests := []struct {
		name  string
		event auth.ActivityEvent
		want  string
	}{
		{"company approved", auth.ActivityEvent{EventType: auth.ActivityEventCompanyStatusChanged, FromStatus: auth.StatusPending, ToStatus: auth.StatusActive}, "approved"},
		{"member rejected", auth.ActivityEvent{EventType: auth.ActivityEventUserStatusChanged, FromStatus: auth.StatusPending, ToStatus: auth.StatusRejected}, "rejected"},
		{"member deactivated", auth.ActivityEvent{EventType: auth.ActivityEventUserStatusChanged, FromStatus: auth.StatusActive, ToStatus: auth.StatusInactive}, "deactivated"},
		{"member reactivated", auth.ActivityEvent{EventType: auth.ActivityEventUserStatusChanged, FromStatus: auth.StatusInactive, ToStatus: auth.StatusActive}, "reactivated"},
		{"token reuse", auth.ActivityEvent{EventType: auth.ActivityEventTokenReuse}, "token_reused"},
		{"profile", auth.ActivityEvent{EventType: auth.ActivityEventProfileUpdated}, "profile_updated"},
		{"unknown event", auth.ActivityEvent{EventType: "workspace.task.archived"}, "archived"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, activitymap.Verb(tt.event))
		})
	}
}

func TestNewEntryCompanyTransition(t *testing.T) {
	at := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventCompanyStatusChanged,
		Actor:      auth.ActorRef{ID: "admin-42", Type: string(auth.RoleSystemAdmin)},
		ObjectID:   "company-100",
		FromStatus: auth.StatusPending,
		ToStatus:   auth.StatusActive,
		Metadata:   map[string]any{"reason": "verified"},
		OccurredAt: at,
	}

	entry := activitymap.NewEntry(event, activitymap.WithChannel("api"))

	assert.Equal(t, "approved", entry.Verb)
	assert.Equal(t, string(auth.SubjectCompany), entry.Subject)
	assert.Equal(t, "company-100", entry.CompanyID, "a company is scoped to itself")
	assert.Equal(t, "admin-42", entry.ActorID)
	assert.Equal(t, string(auth.RoleSystemAdmin), entry.ActorRole)
	assert.Equal(t, "api", entry.Channel)
	assert.False(t, entry.Security)
	assert.True(t, at.Equal(entry.OccurredAt))

	assert.Equal(t, "verified", entry.Metadata["reason"])
	assert.Equal(t, "pending", entry.Metadata[activitymap.KeyFromStatus])
	assert.Equal(t, "active", entry.Metadata[activitymap.KeyToStatus])
	assert.Len(t, event.Metadata, 1, "source metadata is copied")
}

func TestNewEntryTokenReuse(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	entry := activitymap.NewEntry(auth.ActivityEvent{
		EventType:  auth.ActivityEventTokenReuse,
		Actor:      auth.ActorRef{ID: "user-1", Type: "user"},
		ObjectType: "user",
		ObjectID:   "user-1",
		Metadata:   map[string]any{activitymap.KeyTokenFamily: "fam-9"},
	}, activitymap.WithClock(func() time.Time { return now }))

	assert.True(t, entry.Security)
	assert.Equal(t, "fam-9", entry.Family)
	assert.Empty(t, entry.CompanyID)
	assert.Equal(t, now, entry.OccurredAt)
	assert.Equal(t, "auth", entry.Channel)
	assert.NotContains(t, entry.Metadata, activitymap.KeyFromStatus)
}

func TestNewEntryDefaults(t *testing.T) {
	entry := activitymap.NewEntry(auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure})

	assert.Equal(t, "system", entry.ActorID)
	assert.Equal(t, string(auth.SubjectMember), entry.Subject)
	assert.Equal(t, "login_failed", entry.Verb)
	assert.True(t, entry.Security)
	assert.Nil(t, entry.Metadata)
	require.False(t, entry.OccurredAt.IsZero())
}
