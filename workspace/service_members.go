package workspace

import (
	"context"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
)

// ListMembers lists the team members of the caller's company. Admins see
// every company.
func (s *Service) ListMembers(ctx context.Context, actor auth.Principal, status auth.Status) ([]*auth.User, error) {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return nil, auth.ErrForbidden
	}

	if status != "" && !status.IsValid() {
		return nil, auth.NewError(auth.ErrValidation, map[string]any{"status": "must be pending, active, rejected or inactive"})
	}

	scope, err := companyScope(actor)
	if err != nil {
		return nil, err
	}

	records, err := s.accounts.Users().ListMembers(ctx, auth.MemberFilter{
		CompanyID: scope,
		Role:      auth.RoleTeamMember,
		Status:    status,
	})
	if err != nil {
		return nil, wrap(err, "failed to list members")
	}
	return records, nil
}

// SetMemberStatus activates or deactivates a member through the approval
// state machine.
func (s *Service) SetMemberStatus(ctx context.Context, actor auth.Principal, memberID uuid.UUID, req MemberStatusRequest) (*auth.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.approvals.SetMemberStatus(ctx, actor, memberID, req.Status)
}

// UpdateMemberProfile edits the name and phone of a member of the caller's
// company.
func (s *Service) UpdateMemberProfile(ctx context.Context, actor auth.Principal, memberID uuid.UUID, req MemberProfileRequest) (*auth.User, error) {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return nil, auth.ErrForbidden
	}

	var member *auth.User
	err := s.profiles.Execute(ctx, auth.UpdateProfileMessage{
		Actor:      actor,
		UserID:     memberID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		OnResponse: func(u *auth.User) { member = u },
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}
