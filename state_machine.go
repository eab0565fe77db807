package auth

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SubjectKind names the entity moving through the approval lifecycle
type SubjectKind string

const (
	SubjectCompany SubjectKind = "company"
	SubjectMember  SubjectKind = "user"
)

// Transitions lists allowed target statuses per source status
type Transitions map[Status]map[Status]struct{}

// Allows reports whether from -> to is listed
func (t Transitions) Allows(from, to Status) bool {
	if allowed, ok := t[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// CompanyTransitions: rejected is terminal
var CompanyTransitions = Transitions{
	StatusPending: {
		StatusActive:   {},
		StatusRejected: {},
	},
	StatusActive: {
		StatusInactive: {},
	},
	StatusInactive: {
		StatusActive: {},
	},
}

// MemberTransitions: rejected is terminal
var MemberTransitions = Transitions{
	StatusPending: {
		StatusActive:   {},
		StatusRejected: {},
	},
	StatusActive: {
		StatusInactive: {},
	},
	StatusInactive: {
		StatusActive: {},
	},
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Tx        bun.IDB
	Actor     ActorRef
	Kind      SubjectKind
	SubjectID uuid.UUID
	CompanyID *uuid.UUID
	From      Status
	To        Status
	Meta      TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// ApprovalStateMachine moves companies and members between statuses inside
// a caller provided transaction.
type ApprovalStateMachine interface {
	TransitionCompanyTx(ctx context.Context, tx bun.IDB, actor ActorRef, company *Company, target Status, opts ...TransitionOption) (*Company, error)
	TransitionMemberTx(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target Status, opts ...TransitionOption) (*User, error)
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*approvalStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *approvalStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *approvalStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *approvalStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *approvalStateMachine) {
		sm.logger = normalizeLogger(logger)
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(opts.metadata.Metadata, metadata)
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithDeferredActivity collects the activity event into buf instead of
// publishing it, so the caller can publish after commit.
func WithDeferredActivity(buf *[]ActivityEvent) TransitionOption {
	return func(opts *transitionOptions) {
		opts.deferred = buf
	}
}

// NewApprovalStateMachine returns the default implementation backed by repo.
func NewApprovalStateMachine(repo RepositoryManager, opts ...StateMachineOption) ApprovalStateMachine {
	sm := &approvalStateMachine{
		repo:               repo,
		companyTransitions: CompanyTransitions,
		memberTransitions:  MemberTransitions,
		now:                func() time.Time { return time.Now().UTC() },
		activitySink:       noopActivitySink{},
		logger:             defLogger{},
		hookErrorHandler: func(_ context.Context, _ TransitionHookPhase, err error, _ TransitionContext) error {
			return err
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type approvalStateMachine struct {
	repo               RepositoryManager
	companyTransitions Transitions
	memberTransitions  Transitions
	now                func() time.Time
	activitySink       ActivitySink
	logger             Logger
	hookErrorHandler   HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
	deferred    *[]ActivityEvent
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: maps.Clone(o.metadata.Metadata),
	}
}

func (sm *approvalStateMachine) TransitionCompanyTx(ctx context.Context, tx bun.IDB, actor ActorRef, company *Company, target Status, opts ...TransitionOption) (*Company, error) {
	if company == nil {
		return nil, NewError(ErrInvalidStateTransition, map[string]any{"reason": "company is nil"})
	}

	company.EnsureStatus()
	from := company.Status

	if err := sm.validate(sm.companyTransitions, SubjectCompany, from, target); err != nil {
		return nil, err
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Tx:        tx,
		Actor:     actor,
		Kind:      SubjectCompany,
		SubjectID: company.ID,
		CompanyID: &company.ID,
		From:      from,
		To:        target,
		Meta:      options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	var approvedBy *uuid.UUID
	if target == StatusActive {
		if id, err := uuid.Parse(actor.ID); err == nil {
			approvedBy = &id
		}
	}

	updated, err := sm.repo.Companies().UpdateStatusTx(ctx, tx, company, target, approvedBy)
	if err != nil {
		return nil, err
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.publish(ctx, options, ActivityEvent{
		EventType:  ActivityEventCompanyStatusChanged,
		Actor:      actor,
		ObjectType: string(SubjectCompany),
		ObjectID:   company.ID.String(),
		CompanyID:  company.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   transitionMetadata(tc.Meta),
	})

	return updated, nil
}

func (sm *approvalStateMachine) TransitionMemberTx(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target Status, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, NewError(ErrInvalidStateTransition, map[string]any{"reason": "user is nil"})
	}

	user.EnsureStatus()
	from := user.Status

	if err := sm.validate(sm.memberTransitions, SubjectMember, from, target); err != nil {
		return nil, err
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Tx:        tx,
		Actor:     actor,
		Kind:      SubjectMember,
		SubjectID: user.ID,
		CompanyID: user.CompanyID,
		From:      from,
		To:        target,
		Meta:      options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	updated, err := sm.repo.Users().UpdateStatusTx(ctx, tx, user.ID, from, target)
	if err != nil {
		return nil, err
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.publish(ctx, options, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		ObjectType: string(SubjectMember),
		ObjectID:   user.ID.String(),
		CompanyID:  companyIDString(user.CompanyID),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   transitionMetadata(tc.Meta),
	})

	return updated, nil
}

func (sm *approvalStateMachine) validate(transitions Transitions, kind SubjectKind, from, to Status) error {
	if !to.IsValid() || !transitions.Allows(from, to) {
		return NewError(ErrInvalidStateTransition, map[string]any{
			"subject": string(kind),
			"from":    string(from),
			"to":      string(to),
		})
	}
	return nil
}

func (sm *approvalStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *approvalStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *approvalStateMachine) publish(ctx context.Context, opts *transitionOptions, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	if opts.deferred != nil {
		*opts.deferred = append(*opts.deferred, event)
		return
	}

	recordActivity(ctx, sm.activitySink, sm.logger, event)
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	maps.Copy(result, meta.Metadata)
	return result
}
