package auth

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

// RouteRegistrar captures the router methods used by the controllers.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// AuthRoutes holds the paths of the auth API, relative to its mount point
type AuthRoutes struct {
	SignupManager  string
	SignupMember   string
	Login          string
	Refresh        string
	Logout         string
	ForgotPassword string
	VerifyReset    string
	ResetPassword  string
	ChangePassword string
	Me             string
	UpdateMe       string
}

var DefaultAuthRoutes = AuthRoutes{
	SignupManager:  "/signup/company-manager",
	SignupMember:   "/signup/team-member",
	Login:          "/login",
	Refresh:        "/refresh",
	Logout:         "/logout",
	ForgotPassword: "/forgot-password",
	VerifyReset:    "/reset-password/verify",
	ResetPassword:  "/reset-password",
	ChangePassword: "/change-password",
	Me:             "/me",
	UpdateMe:       "/me",
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return ValidateInput("invalid login payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
			validation.Field(&r.Password, validation.Required),
		)
	})
}

// RefreshRequest is the refresh payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return ValidateInput("invalid refresh payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.RefreshToken, validation.Required),
		)
	})
}

// MeResponse is the profile of the authenticated caller
type MeResponse struct {
	User    *User    `json:"user"`
	Company *Company `json:"company,omitempty"`
}

type AuthController struct {
	Routes *AuthRoutes
	Logger Logger

	repo     RepositoryManager
	auth     *Authenticator
	tokens   TokenService
	guard    *RouteAuthenticator
	notifier Notifier
	activity ActivitySink

	signupManager *SignupManagerHandler
	signupMember  *SignupMemberHandler
	resetInit     *InitializePasswordResetHandler
	resetVerify   *VerifyPasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	changePass    *ChangePasswordHandler
	profile       *UpdateProfileHandler
}

// AuthControllerOption customizes the controller
type AuthControllerOption func(*AuthController)

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) {
		ac.Logger = normalizeLogger(logger)
	}
}

// WithControllerRoutes overrides the route paths
func WithControllerRoutes(routes AuthRoutes) AuthControllerOption {
	return func(ac *AuthController) {
		ac.Routes = &routes
	}
}

// WithControllerNotifier sets the notifier used for password reset links
func WithControllerNotifier(n Notifier) AuthControllerOption {
	return func(ac *AuthController) {
		ac.notifier = normalizeNotifier(n)
	}
}

// WithControllerActivitySink sets the audit sink shared by the handlers
func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(ac *AuthController) {
		ac.activity = normalizeActivitySink(sink)
	}
}

// NewAuthController wires the command handlers behind the auth API.
func NewAuthController(repo RepositoryManager, authenticator *Authenticator, guard *RouteAuthenticator, cfg Config, opts ...AuthControllerOption) *AuthController {
	routes := DefaultAuthRoutes
	ac := &AuthController{
		Routes:   &routes,
		Logger:   defLogger{},
		repo:     repo,
		auth:     authenticator,
		tokens:   authenticator.TokenService(),
		guard:    guard,
		notifier: LogNotifier{},
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ac)
		}
	}

	ac.signupManager = NewSignupManagerHandler(repo).
		WithActivitySink(ac.activity).
		WithLogger(ac.Logger)

	ac.signupMember = NewSignupMemberHandler(repo).
		WithActivitySink(ac.activity).
		WithLogger(ac.Logger)

	ac.resetInit = NewInitializePasswordResetHandler(repo, cfg.GetResetTokenTTL()).
		WithNotifier(ac.notifier).
		WithActivitySink(ac.activity).
		WithLogger(ac.Logger)

	ac.resetVerify = NewVerifyPasswordResetHandler(repo)

	ac.resetFinalize = NewFinalizePasswordResetHandler(repo).
		WithActivitySink(ac.activity).
		WithLogger(ac.Logger)

	ac.profile = NewUpdateProfileHandler(repo).
		WithActivitySink(ac.activity).
		WithLogger(ac.Logger)

	ac.changePass = NewChangePasswordHandler(repo, ac.tokens).
		WithActivitySink(ac.activity).
		WithLogger(ac.Logger)

	return ac
}

// RegisterAuthRoutes mounts the auth API on app
func RegisterAuthRoutes(app RouteRegistrar, controller *AuthController) {
	protected := controller.guard.ProtectedRoute()

	app.Post(controller.Routes.SignupManager, controller.SignupCompanyManager).SetName("auth.signup.manager")
	app.Post(controller.Routes.SignupMember, controller.SignupTeamMember).SetName("auth.signup.member")
	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.Refresh, controller.Refresh).SetName("auth.refresh")
	app.Post(controller.Routes.Logout, controller.Logout, protected).SetName("auth.logout")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).SetName("auth.password.forgot")
	app.Get(controller.Routes.VerifyReset, controller.VerifyResetToken).SetName("auth.password.verify")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).SetName("auth.password.reset")
	app.Post(controller.Routes.ChangePassword, controller.ChangePassword, protected).SetName("auth.password.change")
	app.Get(controller.Routes.Me, controller.Me, protected).SetName("auth.me")
	app.Patch(controller.Routes.UpdateMe, controller.UpdateMe, protected).SetName("auth.me.update")
}

func (a *AuthController) SignupCompanyManager(c router.Context) error {
	msg := SignupManagerMessage{}
	if err := c.Bind(&msg); err != nil {
		return a.fail(c, errBadBody(err))
	}

	var result *SignupResult
	msg.OnResponse = func(res *SignupResult) { result = res }

	if err := a.signupManager.Execute(c.Context(), msg); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusCreated, result, "Registration received, awaiting administrator approval")
}

func (a *AuthController) SignupTeamMember(c router.Context) error {
	msg := SignupMemberMessage{}
	if err := c.Bind(&msg); err != nil {
		return a.fail(c, errBadBody(err))
	}

	var result *SignupResult
	msg.OnResponse = func(res *SignupResult) { result = res }

	if err := a.signupMember.Execute(c.Context(), msg); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusCreated, result, "Registration received, awaiting manager approval")
}

func (a *AuthController) Login(c router.Context) error {
	req := LoginRequest{}
	if err := c.Bind(&req); err != nil {
		return a.fail(c, errBadBody(err))
	}

	if err := req.Validate(); err != nil {
		return a.fail(c, err)
	}

	result, err := a.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, result, "Login successful")
}

func (a *AuthController) Refresh(c router.Context) error {
	req := RefreshRequest{}
	if err := c.Bind(&req); err != nil {
		return a.fail(c, errBadBody(err))
	}

	if err := req.Validate(); err != nil {
		return a.fail(c, err)
	}

	pair, err := a.tokens.Refresh(c.Context(), req.RefreshToken, BearerToken(c))
	if err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, pair, "Token refreshed")
}

func (a *AuthController) Logout(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.fail(c, err)
	}

	if err := a.tokens.Logout(c.Context(), principal.ID, a.guard.RawToken(c)); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, nil, "Logged out")
}

// ForgotPassword answers the same way whether or not the email is known.
func (a *AuthController) ForgotPassword(c router.Context) error {
	msg := InitializePasswordResetMessage{}
	if err := c.Bind(&msg); err != nil {
		return a.fail(c, errBadBody(err))
	}

	if err := msg.Validate(); err != nil {
		return a.fail(c, err)
	}

	if err := a.resetInit.Execute(c.Context(), msg); err != nil {
		a.Logger.Error("password reset request failed", "error", err)
	}

	return RespondData(c, http.StatusOK, nil, "If the email is registered, a reset link has been sent")
}

func (a *AuthController) VerifyResetToken(c router.Context) error {
	msg := VerifyPasswordResetMessage{Token: c.Query("token", "")}

	var result *VerifyPasswordResetResponse
	msg.OnResponse = func(resp *VerifyPasswordResetResponse) { result = resp }

	if err := a.resetVerify.Execute(c.Context(), msg); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, result, "")
}

func (a *AuthController) ResetPassword(c router.Context) error {
	msg := FinalizePasswordResetMessage{}
	if err := c.Bind(&msg); err != nil {
		return a.fail(c, errBadBody(err))
	}

	if err := a.resetFinalize.Execute(c.Context(), msg); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, nil, "Password has been reset, please log in")
}

func (a *AuthController) ChangePassword(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.fail(c, err)
	}

	msg := ChangePasswordMessage{}
	if err := c.Bind(&msg); err != nil {
		return a.fail(c, errBadBody(err))
	}
	msg.UserID = principal.ID
	msg.AccessToken = a.guard.RawToken(c)

	if err := a.changePass.Execute(c.Context(), msg); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, nil, "Password changed, please log in again")
}

// UpdateMe edits the caller's own name and phone
func (a *AuthController) UpdateMe(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.fail(c, err)
	}

	msg := UpdateProfileMessage{}
	if err := c.Bind(&msg); err != nil {
		return a.fail(c, errBadBody(err))
	}
	msg.Actor = principal
	msg.UserID = principal.ID

	var user *User
	msg.OnResponse = func(u *User) { user = u }

	if err := a.profile.Execute(c.Context(), msg); err != nil {
		return a.fail(c, err)
	}

	return RespondData(c, http.StatusOK, user, "Profile updated")
}

func (a *AuthController) Me(c router.Context) error {
	principal, err := a.guard.Principal(c)
	if err != nil {
		return a.fail(c, err)
	}

	out := &MeResponse{}
	err = a.repo.RunInTx(c.Context(), nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := a.repo.Users().GetByUUIDTx(ctx, tx, principal.ID)
		if err != nil {
			return err
		}
		out.User = user

		if user.CompanyID == nil {
			return nil
		}

		out.Company, err = a.repo.Companies().GetByUUIDTx(ctx, tx, *user.CompanyID)
		return err
	})
	if err != nil {
		return a.fail(c, asRichError(err, "failed to load profile"))
	}

	return RespondData(c, http.StatusOK, out, "")
}

func (a *AuthController) fail(c router.Context, err error) error {
	return a.guard.ErrorHandler(c, err)
}

func errBadBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "request body could not be parsed").
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)
}
