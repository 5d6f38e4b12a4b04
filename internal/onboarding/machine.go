// Package onboarding holds the onboarding state machine that decides which
// screen a signed-in user is sent to.
package onboarding

import (
	"errors"
	"fmt"
)

// Step is a position in the onboarding flow.
type Step string

const (
	StepRegister           Step = "register"
	StepCompleteProfile    Step = "complete_profile"
	StepCreateCompany      Step = "create_company"
	StepSelectPlan         Step = "select_plan"
	StepSocialCompanySetup Step = "social_company_setup"
	StepCompleted          Step = "completed"
)

var (
	ErrInvalidTransition = errors.New("invalid onboarding transition")
	ErrUnknownStep       = errors.New("unknown onboarding step")
)

// Steps lists every known step in flow order.
var Steps = []Step{
	StepRegister,
	StepCompleteProfile,
	StepCreateCompany,
	StepSelectPlan,
	StepSocialCompanySetup,
	StepCompleted,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

func (s Step) String() string { return string(s) }

// ParseStep converts raw input into a Step.
func ParseStep(raw string) (Step, error) {
	s := Step(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, raw)
	}
	return s, nil
}

// Event is something that happened to the session and may move the step.
type Event string

const (
	EventRegistered                 Event = "registered"
	EventProfileCompletedCompany    Event = "profile_completed_company"
	EventProfileCompletedIndividual Event = "profile_completed_individual"
	EventCompanyCreated             Event = "company_created"
	EventPlanSelected               Event = "plan_selected"
	EventPlanSkipped                Event = "plan_skipped"
	EventLoggedIn                   Event = "logged_in"
	EventSessionValidated           Event = "session_validated"
	EventSocialSetupRequired        Event = "social_setup_required"
	EventSocialLoggedIn             Event = "social_logged_in"
	EventSocialOnboardingCompleted  Event = "social_onboarding_completed"
	EventLoggedOut                  Event = "logged_out"
)

type edge struct {
	from  Step
	event Event
}

var transitions = map[edge]Step{
	{StepRegister, EventRegistered}:                          StepCompleteProfile,
	{StepCompleteProfile, EventProfileCompletedCompany}:      StepCreateCompany,
	{StepCompleteProfile, EventProfileCompletedIndividual}:   StepCompleted,
	{StepCreateCompany, EventCompanyCreated}:                 StepSelectPlan,
	{StepSelectPlan, EventPlanSelected}:                      StepCompleted,
	{StepSelectPlan, EventPlanSkipped}:                       StepCompleted,
	{StepSocialCompanySetup, EventSocialOnboardingCompleted}: StepCompleted,
}

// Events accepted in every step.
var anyStep = map[Event]Step{
	EventLoggedIn:            StepCompleted,
	EventSessionValidated:    StepCompleted,
	EventSocialSetupRequired: StepSocialCompanySetup,
	EventSocialLoggedIn:      StepCompleted,
	EventLoggedOut:           StepRegister,
}

// Next returns the step reached by firing ev in from.
func Next(from Step, ev Event) (Step, error) {
	if to, ok := anyStep[ev]; ok {
		return to, nil
	}
	if to, ok := transitions[edge{from, ev}]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev, from)
}

// Accepts reports whether ev is valid in step s.
func Accepts(s Step, ev Event) bool {
	_, err := Next(s, ev)
	return err == nil
}

// ProfileCompleted picks the profile event for an account type. Anything
// other than "company" is treated as an individual account.
func ProfileCompleted(accountType string) Event {
	if accountType == "company" {
		return EventProfileCompletedCompany
	}
	return EventProfileCompletedIndividual
}

// Machine tracks the current step of one session. It is not safe for
// concurrent use; the owning session serializes access.
type Machine struct {
	step Step
}

// New returns a machine positioned at StepRegister.
func New() *Machine {
	return &Machine{step: StepRegister}
}

// Step returns the current step.
func (m *Machine) Step() Step { return m.step }

// Set assigns the step directly. No transition rules are checked.
func (m *Machine) Set(step Step) { m.step = step }

// Fire applies ev and returns the new step. An event that is not valid in the
// current step leaves the machine unchanged.
func (m *Machine) Fire(ev Event) (Step, error) {
	next, err := Next(m.step, ev)
	if err != nil {
		return m.step, err
	}
	m.step = next
	return next, nil
}

// Reset moves back to StepRegister.
func (m *Machine) Reset() { m.step = StepRegister }

// NeedsCompanySetup reports whether a social sign-in is waiting for company
// details.
func (m *Machine) NeedsCompanySetup() bool {
	return m.step == StepSocialCompanySetup
}

// Completed reports whether onboarding is finished.
func (m *Machine) Completed() bool {
	return m.step == StepCompleted
}
