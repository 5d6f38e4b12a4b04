package service

import (
	"context"

	"sitedash/internal/domain"
	"sitedash/internal/onboarding"
)

// Reason names the operation that produced a session change.
type Reason string

const (
	ReasonValidated        Reason = "session.validated"
	ReasonInvalidated      Reason = "session.invalidated"
	ReasonLogin            Reason = "session.login"
	ReasonRegistered       Reason = "session.registered"
	ReasonLogout           Reason = "session.logout"
	ReasonSocialLogin      Reason = "session.social_login"
	ReasonProfileCompleted Reason = "onboarding.profile_completed"
	ReasonCompanyCreated   Reason = "onboarding.company_created"
	ReasonPlanSelected     Reason = "onboarding.plan_selected"
	ReasonPlanSkipped      Reason = "onboarding.plan_skipped"
	ReasonSocialOnboarding Reason = "onboarding.social_completed"
	ReasonStepSet          Reason = "onboarding.step_set"
)

// Change describes one committed session mutation.
type Change struct {
	SessionID        string
	Reason           Reason
	Generation       uint64
	PreviousStep     onboarding.Step
	Snapshot         domain.SessionSnapshot
	TokenFingerprint string

	session *Session
}

// StepChanged reports whether the commit moved the onboarding step.
func (c Change) StepChanged() bool {
	return c.PreviousStep != c.Snapshot.OnboardingStep
}

// Observer is notified after every commit, outside the session lock.
// Implementations must not block for long.
type Observer interface {
	SessionChanged(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change)

func (f ObserverFunc) SessionChanged(ctx context.Context, change Change) { f(ctx, change) }
