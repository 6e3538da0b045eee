package bot

import (
	"time"
)

// AuthState represents the current state of the authentication flow.
type AuthState int

const (
	AuthStateNone AuthState = iota
	AuthStateAwaitingEmail
	AuthStateAwaitingPassword
	AuthStateAwaitingSignupEmail
	AuthStateAwaitingSignupPassword
	AuthStateAwaitingFullName
	AuthStateAwaitingPhone
)

// AuthFlowTimeout is how long we wait for user input before resetting the auth flow.
const AuthFlowTimeout = 15 * time.Minute

// AuthFlow tracks the state of an ongoing login or signup.
type AuthFlow struct {
	State           AuthState
	Email           string
	Password        string
	FullName        string
	LastInteraction time.Time
}

// NewAuthFlow creates a new auth flow in the initial state.
func NewAuthFlow() *AuthFlow {
	return &AuthFlow{
		State:           AuthStateNone,
		LastInteraction: time.Now(),
	}
}

// IsActive returns true if an auth flow is in progress.
func (f *AuthFlow) IsActive() bool {
	return f.State != AuthStateNone
}

// IsSignup returns true while collecting signup details.
func (f *AuthFlow) IsSignup() bool {
	switch f.State {
	case AuthStateAwaitingSignupEmail, AuthStateAwaitingSignupPassword,
		AuthStateAwaitingFullName, AuthStateAwaitingPhone:
		return true
	}
	return false
}

// IsTimedOut returns true if the auth flow has been inactive for too long.
func (f *AuthFlow) IsTimedOut() bool {
	if !f.IsActive() {
		return false
	}
	return time.Since(f.LastInteraction) > AuthFlowTimeout
}

// Reset clears the auth flow state, including the collected password.
func (f *AuthFlow) Reset() {
	f.State = AuthStateNone
	f.Email = ""
	f.Password = ""
	f.FullName = ""
	f.LastInteraction = time.Now()
}

// Touch updates the last interaction time.
func (f *AuthFlow) Touch() {
	f.LastInteraction = time.Now()
}

func (s AuthState) String() string {
	switch s {
	case AuthStateNone:
		return "None"
	case AuthStateAwaitingEmail:
		return "AwaitingEmail"
	case AuthStateAwaitingPassword:
		return "AwaitingPassword"
	case AuthStateAwaitingSignupEmail:
		return "AwaitingSignupEmail"
	case AuthStateAwaitingSignupPassword:
		return "AwaitingSignupPassword"
	case AuthStateAwaitingFullName:
		return "AwaitingFullName"
	case AuthStateAwaitingPhone:
		return "AwaitingPhone"
	default:
		return "Unknown"
	}
}
