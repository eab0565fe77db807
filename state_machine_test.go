package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestTransitionsAllows(t *testing.T) {
	tests := []struct {
		from, to auth.Status
		want     bool
	}{
		{auth.StatusPending, auth.StatusActive, true},
		{auth.StatusPending, auth.StatusRejected, true},
		{auth.StatusActive, auth.StatusInactive, true},
		{auth.StatusInactive, auth.StatusActive, true},
		{auth.StatusRejected, auth.StatusActive, false},
		{auth.StatusActive, auth.StatusPending, false},
		{auth.StatusPending, auth.StatusInactive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, auth.MemberTransitions.Allows(tt.from, tt.to))
			assert.Equal(t, tt.want, auth.CompanyTransitions.Allows(tt.from, tt.to))
		})
	}
}

func TestApprovalStateMachineMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	company := e.insertCompany(t, "Acme", auth.StatusActive)
	member := e.insertUser(t, "alan@acme.test", auth.RoleTeamMember, &company.ID, auth.StatusPending)

	sm := auth.NewApprovalStateMachine(e.repo, auth.WithStateMachineActivitySink(e.sink()))
	actor := auth.ActorRef{ID: "admin", Type: string(auth.RoleSystemAdmin)}

	t.Run("before hook aborts", func(t *testing.T) {
		boom := errors.New("veto")
		err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := sm.TransitionMemberTx(ctx, tx, actor, member, auth.StatusActive,
				auth.WithBeforeTransitionHook(func(context.Context, auth.TransitionContext) error { return boom }),
			)
			return err
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, auth.StatusPending, e.reloadUser(t, member.ID).Status)
		assert.Empty(t, e.events)
	})

	t.Run("after hook sees the transition", func(t *testing.T) {
		var seen auth.TransitionContext
		err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			updated, err := sm.TransitionMemberTx(ctx, tx, actor, member, auth.StatusActive,
				auth.WithTransitionReason("welcome"),
				auth.WithAfterTransitionHook(func(_ context.Context, tc auth.TransitionContext) error {
					seen = tc
					return nil
				}),
			)
			if err == nil {
				assert.Equal(t, auth.StatusActive, updated.Status)
			}
			return err
		})
		require.NoError(t, err)

		assert.Equal(t, auth.StatusPending, seen.From)
		assert.Equal(t, auth.StatusActive, seen.To)
		assert.Equal(t, "welcome", seen.Meta.Reason)

		require.Len(t, e.events, 1)
		assert.Equal(t, auth.ActivityEventUserStatusChanged, e.events[0].EventType)
		assert.Equal(t, "welcome", e.events[0].Metadata["reason"])
	})

	t.Run("deferred activity is buffered", func(t *testing.T) {
		var buf []auth.ActivityEvent
		err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			current, err := e.repo.Users().GetByUUIDTx(ctx, tx, member.ID)
			if err != nil {
				return err
			}
			_, err = sm.TransitionMemberTx(ctx, tx, actor, current, auth.StatusInactive, auth.WithDeferredActivity(&buf))
			return err
		})
		require.NoError(t, err)
		assert.Len(t, buf, 1)
		assert.Len(t, e.events, 1, "deferred events are not sent to the sink")
	})

	t.Run("invalid target", func(t *testing.T) {
		err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			current, err := e.repo.Users().GetByUUIDTx(ctx, tx, member.ID)
			if err != nil {
				return err
			}
			_, err = sm.TransitionMemberTx(ctx, tx, actor, current, auth.StatusRejected)
			return err
		})
		assert.Equal(t, auth.TextCodeInvalidStateTransition, textCode(t, err))
	})
}

func TestApprovalStateMachineRejectsStaleStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sm := auth.NewApprovalStateMachine(e.repo)
	actor := auth.ActorRef{ID: "admin", Type: string(auth.RoleSystemAdmin)}

	t.Run("company", func(t *testing.T) {
		company := e.insertCompany(t, "Initech", auth.StatusPending)
		stale := *company

		err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := sm.TransitionCompanyTx(ctx, tx, actor, company, auth.StatusActive)
			return err
		})
		require.NoError(t, err)

		err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := sm.TransitionCompanyTx(ctx, tx, actor, &stale, auth.StatusRejected)
			return err
		})
		assert.Equal(t, auth.TextCodeInvalidStateTransition, textCode(t, err))
		assert.Equal(t, auth.StatusActive, e.reloadCompany(t, company.ID).Status)
	})

	t.Run("member", func(t *testing.T) {
		company := e.insertCompany(t, "Umbrella", auth.StatusActive)
		member := e.insertUser(t, "jill@umbrella.test", auth.RoleTeamMember, &company.ID, auth.StatusPending)
		stale := *member

		err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := sm.TransitionMemberTx(ctx, tx, actor, member, auth.StatusRejected)
			return err
		})
		require.NoError(t, err)

		err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := sm.TransitionMemberTx(ctx, tx, actor, &stale, auth.StatusActive)
			return err
		})
		assert.Equal(t, auth.TextCodeInvalidStateTransition, textCode(t, err))
		assert.Equal(t, auth.StatusRejected, e.reloadUser(t, member.ID).Status)
	})
}
