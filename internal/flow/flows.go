package flow

import (
	"context"
	"strings"

	"trid/internal/gateway"
	"trid/internal/identity"
)

// Kind names a form.
type Kind string

const (
	KindLogin          Kind = "login"
	KindSignup         Kind = "signup"
	KindForgotPassword Kind = "forgot-password"
	KindActivation     Kind = "activation"
	KindResetPassword  Kind = "reset-password"
)

// Success messages and landing routes.
const (
	MsgLoggedIn      = "Login successful. Redirecting..."
	MsgSignedUp      = "Your account has been created. Check your email for the activation code."
	MsgResetSent     = "If an account exists for that address, a reset code is on its way."
	MsgActivated     = "Your account has been successfully activated! You can now log in."
	MsgPasswordReset = "Your password has been successfully reset. You can now log in with your new password."
	MsgVerifying     = "Verifying your account..."
	MsgLoggingIn     = "Logging in..."
	MsgSessionFailed = "We could not start your session. Please try again."

	RouteLogin         = "/login"
	RouteHome          = "/home"
	RouteAdmin         = "/admin"
	RouteSeller        = "/seller-shop"
	RouteActivate      = "/activate-account"
	RouteResetPassword = "/reset-password"
)

// Backend is the subset of the auth gateway the forms use.
type Backend interface {
	Authenticate(ctx context.Context, creds gateway.Credentials) gateway.Result[identity.Identity]
	ActivateAccount(ctx context.Context, token string) gateway.Result[struct{}]
	ResetPassword(ctx context.Context, token, newPassword string) gateway.Result[struct{}]
	Register(ctx context.Context, reg gateway.Registration) gateway.Result[struct{}]
	ForgotPassword(ctx context.Context, email string) gateway.Result[struct{}]
}

// SessionWriter receives the identity of a successful login.
type SessionWriter interface {
	Login(ctx context.Context, id identity.Identity) error
}

// Login submits credentials and, on success, stores the identity in the session.
func Login(backend Backend, sess SessionWriter, creds gateway.Credentials) Submission {
	creds.Email = strings.TrimSpace(creds.Email)
	return Submission{
		Validate: func() error {
			return RequireFields(MsgCredentials, creds.Email, creds.Password)
		},
		Pending: MsgLoggingIn,
		Call: func(ctx context.Context) State {
			result := backend.Authenticate(ctx, creds)
			if f, failed := result.Err(); failed {
				return FromFailure(f)
			}
			id, _ := result.Data()
			if ctx.Err() != nil {
				return Failed(CauseTransport, "")
			}
			if err := sess.Login(ctx, id); err != nil {
				return Failed(CauseApplication, MsgSessionFailed)
			}
			return Succeeded(MsgLoggedIn, LandingRoute(id))
		},
	}
}

// LandingRoute picks where a freshly logged-in identity goes.
func LandingRoute(id identity.Identity) string {
	switch {
	case id.HasAnyRole(identity.RoleAdmin):
		return RouteAdmin
	case id.HasAnyRole(identity.RoleSeller):
		return RouteSeller
	default:
		return RouteHome
	}
}

// Signup registers a new account.
func Signup(backend Backend, reg gateway.Registration) Submission {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FullName = strings.TrimSpace(reg.FullName)
	return Submission{
		Validate: func() error {
			if err := RequireFields(MsgSignupFields, reg.FullName, reg.Email, reg.Password); err != nil {
				return err
			}
			if err := CheckEmail(reg.Email); err != nil {
				return err
			}
			return CheckPassword(reg.Password)
		},
		Call: func(ctx context.Context) State {
			return acknowledged(backend.Register(ctx, reg), MsgSignedUp, RouteActivate)
		},
	}
}

// ForgotPassword requests a reset code by email.
func ForgotPassword(backend Backend, email string) Submission {
	email = strings.TrimSpace(email)
	return Submission{
		Validate: func() error {
			return CheckEmail(email)
		},
		Call: func(ctx context.Context) State {
			return acknowledged(backend.ForgotPassword(ctx, email), MsgResetSent, RouteResetPassword)
		},
	}
}

// Activate confirms an account with its activation code.
func Activate(backend Backend, token string) Submission {
	token = strings.TrimSpace(token)
	return Submission{
		Validate: func() error {
			return RequireFields(MsgActivationCode, token)
		},
		Pending: MsgVerifying,
		Call: func(ctx context.Context) State {
			return acknowledged(backend.ActivateAccount(ctx, token), MsgActivated, RouteLogin)
		},
	}
}

// ResetPassword sets a new password. The password rule is checked before the token.
func ResetPassword(backend Backend, token, password string) Submission {
	token = strings.TrimSpace(token)
	return Submission{
		Validate: func() error {
			if err := CheckPassword(password); err != nil {
				return err
			}
			return RequireFields(MsgTokenRequired, token)
		},
		Call: func(ctx context.Context) State {
			return acknowledged(backend.ResetPassword(ctx, token, password), MsgPasswordReset, RouteLogin)
		},
	}
}

func acknowledged(result gateway.Result[struct{}], message, redirectTo string) State {
	if f, failed := result.Err(); failed {
		return FromFailure(f)
	}
	return Succeeded(message, redirectTo)
}
