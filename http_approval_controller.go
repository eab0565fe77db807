package auth

import (
	"net/http"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// InvitationCodeRequest names the company whose code is rotated. Managers
// leave it empty.
type InvitationCodeRequest struct {
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
}

// ApprovalController exposes the approval workflow
type ApprovalController struct {
	approvals *ApprovalService
	guard     *RouteAuthenticator
}

func NewApprovalController(approvals *ApprovalService, guard *RouteAuthenticator) *ApprovalController {
	return &ApprovalController{approvals: approvals, guard: guard}
}

// RegisterApprovalRoutes mounts the admin and manager approval routes
func RegisterApprovalRoutes(app RouteRegistrar, controller *ApprovalController) {
	admin := controller.guard.RequireRole(RoleSystemAdmin)
	manager := controller.guard.RequireRole(RoleCompanyManager)

	app.Post("/admin/approve/company", controller.ApproveCompany, admin).SetName("approval.company")
	app.Get("/admin/companies/pending", controller.PendingCompanies, admin).SetName("approval.companies.pending")
	app.Post("/manager/approve/member", controller.ApproveMember, manager).SetName("approval.member")
	app.Get("/manager/members/pending", controller.PendingMembers, manager).SetName("approval.members.pending")
	app.Post("/manager/invitation-code", controller.RegenerateInvitationCode, manager).SetName("approval.invitation_code")
}

func (a *ApprovalController) ApproveCompany(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	req := CompanyApprovalRequest{}
	if err := c.Bind(&req); err != nil {
		return a.guard.ErrorHandler(c, errBadBody(err))
	}

	result, err := a.approvals.ApproveCompany(c.Context(), principal, req)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	return RespondData(c, http.StatusOK, result, "Company "+string(req.Decision.Target()))
}

func (a *ApprovalController) PendingCompanies(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	records, err := a.approvals.ListPendingCompanies(c.Context(), principal)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	return RespondData(c, http.StatusOK, records, "")
}

func (a *ApprovalController) ApproveMember(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	req := MemberApprovalRequest{}
	if err := c.Bind(&req); err != nil {
		return a.guard.ErrorHandler(c, errBadBody(err))
	}

	member, err := a.approvals.ApproveMember(c.Context(), principal, req)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	return RespondData(c, http.StatusOK, member, "Member "+string(req.Decision.Target()))
}

func (a *ApprovalController) PendingMembers(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	records, err := a.approvals.ListPendingMembers(c.Context(), principal)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	return RespondData(c, http.StatusOK, records, "")
}

func (a *ApprovalController) RegenerateInvitationCode(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	req := InvitationCodeRequest{}
	if principal.Is(RoleSystemAdmin) {
		if err := c.Bind(&req); err != nil {
			return a.guard.ErrorHandler(c, errBadBody(err))
		}
	}

	company, err := a.approvals.RegenerateInvitationCode(c.Context(), principal, req.CompanyID)
	if err != nil {
		return a.guard.ErrorHandler(c, err)
	}

	return RespondData(c, http.StatusOK, map[string]any{
		"company_id":      company.ID,
		"invitation_code": derefString(company.InvitationCode),
	}, "Invitation code regenerated")
}
