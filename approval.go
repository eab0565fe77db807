package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Decision is the outcome chosen by an approver
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Target maps a decision to the resulting status
func (d Decision) Target() Status {
	if d == DecisionApprove {
		return StatusActive
	}
	return StatusRejected
}

// CompanyApprovalRequest is the payload of an admin company decision
type CompanyApprovalRequest struct {
	CompanyID              uuid.UUID `json:"company_id"`
	Decision               Decision  `json:"decision"`
	GenerateInvitationCode bool      `json:"generate_invitation_code"`
	Reason                 string    `json:"reason"`
}

// Validate will run validation rules
func (r CompanyApprovalRequest) Validate() error {
	return ValidateInput("invalid company approval payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.CompanyID, requiredUUID),
			validation.Field(&r.Decision, validation.Required, validation.In(DecisionApprove, DecisionReject)),
			validation.Field(&r.Reason, validation.Length(0, 500)),
		)
	})
}

// MemberApprovalRequest is the payload of a manager member decision
type MemberApprovalRequest struct {
	MemberID uuid.UUID `json:"member_id"`
	Decision Decision  `json:"decision"`
	Reason   string    `json:"reason"`
}

// Validate will run validation rules
func (r MemberApprovalRequest) Validate() error {
	return ValidateInput("invalid member approval payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.MemberID, requiredUUID),
			validation.Field(&r.Decision, validation.Required, validation.In(DecisionApprove, DecisionReject)),
			validation.Field(&r.Reason, validation.Length(0, 500)),
		)
	})
}

// CompanyApprovalResult is returned by ApproveCompany
type CompanyApprovalResult struct {
	Company *Company `json:"company"`
	Manager *User    `json:"manager,omitempty"`
}

// ApprovalServiceOption customizes the ApprovalService
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalNotifier sets the notifier told about decisions
func WithApprovalNotifier(n Notifier) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.notifier = normalizeNotifier(n)
	}
}

// WithApprovalActivitySink sets the audit sink
func WithApprovalActivitySink(sink ActivitySink) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithApprovalLogger sets the logger
func WithApprovalLogger(logger Logger) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.logger = normalizeLogger(logger)
	}
}

// WithInvitationCodeGenerator swaps the random code generator
func WithInvitationCodeGenerator(gen InvitationCodeGenerator) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if gen != nil {
			s.codes = gen
		}
	}
}

// WithApprovalStateMachine replaces the default state machine
func WithApprovalStateMachine(sm ApprovalStateMachine) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if sm != nil {
			s.sm = sm
		}
	}
}

// ApprovalService drives company and member approvals
type ApprovalService struct {
	repo     RepositoryManager
	sm       ApprovalStateMachine
	notifier Notifier
	activity ActivitySink
	logger   Logger
	codes    InvitationCodeGenerator
}

// NewApprovalService creates an ApprovalService
func NewApprovalService(repo RepositoryManager, opts ...ApprovalServiceOption) *ApprovalService {
	s := &ApprovalService{
		repo:     repo,
		notifier: LogNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		codes:    GenerateInvitationCode,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.sm == nil {
		s.sm = NewApprovalStateMachine(repo, WithStateMachineLogger(s.logger), WithStateMachineActivitySink(s.activity))
	}

	return s
}

// ApproveCompany approves or rejects a pending company and its manager.
func (s *ApprovalService) ApproveCompany(ctx context.Context, actor Principal, req CompanyApprovalRequest) (*CompanyApprovalResult, error) {
	if !actor.Is(RoleSystemAdmin) {
		return nil, ErrForbidden
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	target := req.Decision.Target()
	result := &CompanyApprovalResult{}
	var events []ActivityEvent

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		events = events[:0]

		company, err := s.repo.Companies().GetByUUIDTx(ctx, tx, req.CompanyID)
		if err != nil {
			return err
		}

		if company.Status != StatusPending {
			return NewError(ErrInvalidStateTransition, map[string]any{
				"company_id": company.ID.String(),
				"from":       string(company.Status),
				"to":         string(target),
			})
		}

		opts := []TransitionOption{
			WithDeferredActivity(&events),
			WithTransitionReason(req.Reason),
		}

		if result.Company, err = s.sm.TransitionCompanyTx(ctx, tx, actor.Ref(), company, target, opts...); err != nil {
			return err
		}

		if company.ManagerID != nil {
			manager, err := s.repo.Users().GetByUUIDTx(ctx, tx, *company.ManagerID)
			if err != nil {
				return err
			}

			result.Manager = manager
			if manager.Status == StatusPending {
				if result.Manager, err = s.sm.TransitionMemberTx(ctx, tx, actor.Ref(), manager, target, opts...); err != nil {
					return err
				}
			}
		}

		if target == StatusActive && req.GenerateInvitationCode {
			code, err := uniqueInvitationCodeTx(ctx, tx, s.repo.Companies(), s.codes)
			if err != nil {
				return err
			}
			if err := s.repo.Companies().SetInvitationCodeTx(ctx, tx, company.ID, code); err != nil {
				return err
			}
			result.Company.InvitationCode = &code
		}

		return nil
	})

	if err != nil {
		return nil, asRichError(err, "failed to process company approval")
	}

	s.publish(ctx, events)

	if result.Manager != nil {
		kind := NotifyCompanyApproved
		if target == StatusRejected {
			kind = NotifyCompanyRejected
		}
		notify(ctx, s.notifier, s.logger, Notification{
			Kind:      kind,
			Recipient: result.Manager.Email,
			Name:      result.Manager.FullName(),
			Data: map[string]any{
				"company":         result.Company.Name,
				"reason":          req.Reason,
				"invitation_code": derefString(result.Company.InvitationCode),
			},
		})
	}

	return result, nil
}

// ApproveMember approves or rejects a pending team member. Managers may only
// decide on members of their own company.
func (s *ApprovalService) ApproveMember(ctx context.Context, actor Principal, req MemberApprovalRequest) (*User, error) {
	if !actor.AtLeast(RoleCompanyManager) {
		return nil, ErrForbidden
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	target := req.Decision.Target()
	var member *User
	var events []ActivityEvent

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		events = events[:0]

		candidate, err := s.loadScopedMemberTx(ctx, tx, actor, req.MemberID)
		if err != nil {
			return err
		}

		if candidate.Role != RoleTeamMember {
			return NewError(ErrForbidden, map[string]any{"reason": "only team members can be approved here"})
		}

		if candidate.Status != StatusPending {
			return NewError(ErrInvalidStateTransition, map[string]any{
				"member_id": candidate.ID.String(),
				"from":      string(candidate.Status),
				"to":        string(target),
			})
		}

		if err := s.requireActiveCompanyTx(ctx, tx, candidate); err != nil {
			return err
		}

		member, err = s.sm.TransitionMemberTx(ctx, tx, actor.Ref(), candidate, target,
			WithDeferredActivity(&events),
			WithTransitionReason(req.Reason),
		)
		return err
	})

	if err != nil {
		return nil, asRichError(err, "failed to process member approval")
	}

	s.publish(ctx, events)

	kind := NotifyMemberApproved
	if target == StatusRejected {
		kind = NotifyMemberRejected
	}
	notify(ctx, s.notifier, s.logger, Notification{
		Kind:      kind,
		Recipient: member.Email,
		Name:      member.FullName(),
		Data:      map[string]any{"reason": req.Reason},
	})

	return member, nil
}

// SetMemberStatus activates or deactivates an approved member
func (s *ApprovalService) SetMemberStatus(ctx context.Context, actor Principal, memberID uuid.UUID, status Status) (*User, error) {
	if !actor.AtLeast(RoleCompanyManager) {
		return nil, ErrForbidden
	}

	if status != StatusActive && status != StatusInactive {
		return nil, NewError(ErrInvalidStateTransition, map[string]any{"to": string(status)})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var member *User
	var events []ActivityEvent

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		events = events[:0]

		candidate, err := s.loadScopedMemberTx(ctx, tx, actor, memberID)
		if err != nil {
			return err
		}

		if candidate.Role != RoleTeamMember || candidate.ID == actor.ID {
			return ErrForbidden
		}

		if candidate.Status == status {
			member = candidate
			return nil
		}

		member, err = s.sm.TransitionMemberTx(ctx, tx, actor.Ref(), candidate, status, WithDeferredActivity(&events))
		if err != nil {
			return err
		}

		if status == StatusInactive {
			if _, err := s.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, candidate.ID, RevokeReasonLogout); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, asRichError(err, "failed to update member status")
	}

	s.publish(ctx, events)
	return member, nil
}

// ListPendingCompanies lists companies awaiting an admin decision
func (s *ApprovalService) ListPendingCompanies(ctx context.Context, actor Principal) ([]*Company, error) {
	if !actor.Is(RoleSystemAdmin) {
		return nil, ErrForbidden
	}

	records, err := s.repo.Companies().ListByStatus(ctx, StatusPending)
	if err != nil {
		return nil, asRichError(err, "failed to list pending companies")
	}
	return records, nil
}

// ListPendingMembers lists pending team members, scoped to the manager's
// company. Admins see every company.
func (s *ApprovalService) ListPendingMembers(ctx context.Context, actor Principal) ([]*User, error) {
	if !actor.AtLeast(RoleCompanyManager) {
		return nil, ErrForbidden
	}

	filter := MemberFilter{Role: RoleTeamMember, Status: StatusPending}
	if !actor.Is(RoleSystemAdmin) {
		if actor.CompanyID == nil {
			return nil, ErrNoCompany
		}
		filter.CompanyID = actor.CompanyID
	}

	records, err := s.repo.Users().ListMembers(ctx, filter)
	if err != nil {
		return nil, asRichError(err, "failed to list pending members")
	}
	return records, nil
}

// RegenerateInvitationCode replaces the invitation code of an active
// company. Managers always act on their own company; admins must name one.
func (s *ApprovalService) RegenerateInvitationCode(ctx context.Context, actor Principal, companyID *uuid.UUID) (*Company, error) {
	if !actor.AtLeast(RoleCompanyManager) {
		return nil, ErrForbidden
	}

	target := companyID
	if !actor.Is(RoleSystemAdmin) {
		target = actor.CompanyID
	}

	if target == nil {
		return nil, NewError(ErrNoCompany, map[string]any{"reason": "company_id is required"})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var company *Company
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		company, err = s.repo.Companies().GetByUUIDTx(ctx, tx, *target)
		if err != nil {
			return err
		}

		if company.Status != StatusActive {
			return ErrCompanyInactive
		}

		code, err := uniqueInvitationCodeTx(ctx, tx, s.repo.Companies(), s.codes)
		if err != nil {
			return err
		}

		if err := s.repo.Companies().SetInvitationCodeTx(ctx, tx, company.ID, code); err != nil {
			return err
		}

		company.InvitationCode = &code
		return nil
	})

	if err != nil {
		return nil, asRichError(err, "failed to regenerate invitation code")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventInvitationRegenerated,
		Actor:      actor.Ref(),
		ObjectType: string(SubjectCompany),
		ObjectID:   company.ID.String(),
		CompanyID:  company.ID.String(),
	})

	return company, nil
}

// loadScopedMemberTx loads a user the actor is allowed to manage
func (s *ApprovalService) loadScopedMemberTx(ctx context.Context, tx bun.IDB, actor Principal, id uuid.UUID) (*User, error) {
	member, err := s.repo.Users().GetByUUIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if actor.Is(RoleSystemAdmin) {
		return member, nil
	}

	if actor.CompanyID == nil || !member.BelongsTo(*actor.CompanyID) {
		return nil, NewError(ErrForbidden, map[string]any{"reason": "member belongs to another company"})
	}

	return member, nil
}

func (s *ApprovalService) requireActiveCompanyTx(ctx context.Context, tx bun.IDB, member *User) error {
	if member.CompanyID == nil {
		return ErrNoCompany
	}

	company, err := s.repo.Companies().GetByUUIDTx(ctx, tx, *member.CompanyID)
	if err != nil {
		return err
	}

	if company.Status != StatusActive {
		return NewError(ErrInvalidStateTransition, map[string]any{
			"reason":         "company is not active",
			"company_status": string(company.Status),
		})
	}
	return nil
}

func (s *ApprovalService) publish(ctx context.Context, events []ActivityEvent) {
	for _, event := range events {
		recordActivity(ctx, s.activity, s.logger, event)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
