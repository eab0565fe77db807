package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

func managerSignup(email, company string) auth.SignupManagerMessage {
	return auth.SignupManagerMessage{
		Email:       email,
		Password:    testPassword,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		CompanyName: company,
	}
}

func memberSignup(email, code string) auth.SignupMemberMessage {
	return auth.SignupMemberMessage{
		Email:          email,
		Password:       testPassword,
		FirstName:      "Alan",
		LastName:       "Turing",
		InvitationCode: code,
	}
}

func TestSignupManager(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	handler := auth.NewSignupManagerHandler(e.repo).WithActivitySink(e.sink())

	var result *auth.SignupResult
	msg := managerSignup("Ada@Acme.test", "Acme")
	msg.OnResponse = func(res *auth.SignupResult) { result = res }

	require.NoError(t, handler.Execute(ctx, msg))
	require.NotNil(t, result)

	assert.Equal(t, "ada@acme.test", result.User.Email)
	assert.Equal(t, auth.RoleCompanyManager, result.User.Role)
	assert.Equal(t, auth.StatusPending, result.User.Status)
	assert.NotEqual(t, testPassword, result.User.PasswordHash)
	assert.Equal(t, auth.StatusPending, result.Company.Status)
	require.NotNil(t, result.Company.ManagerID)
	assert.Equal(t, result.User.ID, *result.Company.ManagerID)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventManagerSignup}, e.eventTypes())

	stored := e.reloadCompany(t, result.Company.ID)
	require.NotNil(t, stored.ManagerID)
	assert.Equal(t, result.User.ID, *stored.ManagerID)

	t.Run("phone stored as E.164", func(t *testing.T) {
		var res *auth.SignupResult
		msg := managerSignup("grace@hopper.test", "Hopper")
		msg.Phone = "(650) 253-0000"
		msg.OnResponse = func(r *auth.SignupResult) { res = r }

		require.NoError(t, handler.Execute(ctx, msg))
		assert.Equal(t, "+16502530000", e.reloadUser(t, res.User.ID).Phone)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := handler.Execute(ctx, managerSignup("ada@acme.test", "Another"))
		assert.Equal(t, auth.TextCodeDuplicateEmail, textCode(t, err))
	})

	t.Run("duplicate company", func(t *testing.T) {
		err := handler.Execute(ctx, managerSignup("grace@acme.test", "Acme"))
		assert.Equal(t, auth.TextCodeDuplicateCompanyName, textCode(t, err))
	})

	t.Run("invalid payload", func(t *testing.T) {
		tests := map[string]auth.SignupManagerMessage{
			"bad email":     managerSignup("not-an-email", "Initech"),
			"weak password": {Email: "x@initech.test", Password: "short", FirstName: "A", LastName: "B", CompanyName: "Initech"},
			"no digits":     {Email: "x@initech.test", Password: "onlyletters", FirstName: "A", LastName: "B", CompanyName: "Initech"},
			"no company":    managerSignup("x@initech.test", ""),
			"bad phone":     {Email: "x@initech.test", Password: testPassword, FirstName: "A", LastName: "B", CompanyName: "Initech", Phone: "12"},
		}
		for name, msg := range tests {
			t.Run(name, func(t *testing.T) {
				err := handler.Execute(ctx, msg)
				assert.Equal(t, auth.TextCodeValidation, textCode(t, err))
			})
		}
	})
}

func TestSignupMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	company := e.insertCompany(t, "Acme", auth.StatusActive)
	code := "ABC123"
	_, err := e.db.NewUpdate().Model((*auth.Company)(nil)).
		Set("invitation_code = ?", code).
		Where("id = ?", company.ID).
		Exec(ctx)
	require.NoError(t, err)

	dormant := e.insertCompany(t, "Globex", auth.StatusInactive)
	_, err = e.db.NewUpdate().Model((*auth.Company)(nil)).
		Set("invitation_code = ?", "DEF456").
		Where("id = ?", dormant.ID).
		Exec(ctx)
	require.NoError(t, err)

	handler := auth.NewSignupMemberHandler(e.repo)

	var result *auth.SignupResult
	msg := memberSignup("alan@acme.test", " abc123 ")
	msg.OnResponse = func(res *auth.SignupResult) { result = res }

	require.NoError(t, handler.Execute(ctx, msg))
	require.NotNil(t, result)
	assert.Equal(t, auth.RoleTeamMember, result.User.Role)
	assert.Equal(t, auth.StatusPending, result.User.Status)
	require.NotNil(t, result.User.CompanyID)
	assert.Equal(t, company.ID, *result.User.CompanyID)

	tests := []struct {
		name string
		msg  auth.SignupMemberMessage
		code string
	}{
		{name: "unknown code", msg: memberSignup("x@acme.test", "ZZZ999"), code: auth.TextCodeInvalidInvitationCode},
		{name: "inactive company", msg: memberSignup("x@acme.test", "DEF456"), code: auth.TextCodeInvalidInvitationCode},
		{name: "duplicate email", msg: memberSignup("alan@acme.test", code), code: auth.TextCodeDuplicateEmail},
		{name: "short code", msg: memberSignup("x@acme.test", "ABC"), code: auth.TextCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Execute(ctx, tt.msg)
			assert.Equal(t, tt.code, textCode(t, err))
		})
	}
}

// TestOnboardingFlow walks a company from signup to a working team member.
func TestOnboardingFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	admin := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, notificationOf(auth.NotifyCompanyApproved, "ada@acme.test")).Return(nil).Once()
	notifier.On("Notify", mock.Anything, notificationOf(auth.NotifyMemberApproved, "alan@acme.test")).Return(nil).Once()

	approvals := auth.NewApprovalService(e.repo,
		auth.WithApprovalNotifier(notifier),
		auth.WithApprovalActivitySink(e.sink()),
	)
	authenticator := auth.NewAuthenticator(e.repo, e.tokens(), e.cfg)

	var signup *auth.SignupResult
	msg := managerSignup("ada@acme.test", "Acme")
	msg.OnResponse = func(res *auth.SignupResult) { signup = res }
	require.NoError(t, auth.NewSignupManagerHandler(e.repo).Execute(ctx, msg))

	_, err := authenticator.Login(ctx, "ada@acme.test", testPassword)
	assert.Equal(t, auth.TextCodeAccountPending, textCode(t, err))

	pending, err := approvals.ListPendingCompanies(ctx, principalOf(admin))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := approvals.ApproveCompany(ctx, principalOf(admin), auth.CompanyApprovalRequest{
		CompanyID:              signup.Company.ID,
		Decision:               auth.DecisionApprove,
		GenerateInvitationCode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, auth.StatusActive, approved.Company.Status)
	assert.Equal(t, auth.StatusActive, approved.Manager.Status)
	require.NotNil(t, approved.Company.InvitationCode)
	code := *approved.Company.InvitationCode
	assert.Len(t, code, auth.InvitationCodeLength)
	assert.Equal(t, strings.ToUpper(code), code)

	stored := e.reloadCompany(t, signup.Company.ID)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, admin.ID, *stored.ApprovedBy)

	login, err := authenticator.Login(ctx, "ada@acme.test", testPassword)
	require.NoError(t, err)
	manager := principalOf(login.User)

	var member *auth.SignupResult
	join := memberSignup("alan@acme.test", strings.ToLower(code))
	join.OnResponse = func(res *auth.SignupResult) { member = res }
	require.NoError(t, auth.NewSignupMemberHandler(e.repo).Execute(ctx, join))

	waiting, err := approvals.ListPendingMembers(ctx, manager)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, member.User.ID, waiting[0].ID)

	_, err = approvals.ApproveMember(ctx, manager, auth.MemberApprovalRequest{
		MemberID: member.User.ID,
		Decision: auth.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = authenticator.Login(ctx, "alan@acme.test", testPassword)
	require.NoError(t, err)

	notifier.AssertExpectations(t)
	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventCompanyStatusChanged,
		auth.ActivityEventUserStatusChanged,
		auth.ActivityEventUserStatusChanged,
	}, e.eventTypes())
}
