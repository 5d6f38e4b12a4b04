package testutil

import (
	"fmt"
	"sync/atomic"

	"sitedash/internal/apiclient"
	"sitedash/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

func nextID() domain.ID {
	return domain.ID(fmt.Sprint(idCounter.Add(1)))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID          domain.ID
	Name        string
	Email       string
	AccountType string
	Company     *domain.Company
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{ID: nextID()}
	o.Name = fmt.Sprintf("Test User %s", o.ID)

	for _, opt := range opts {
		opt(o)
	}
	if o.Email == "" {
		o.Email = fmt.Sprintf("user%s@example.com", o.ID)
	}

	return &domain.User{
		ID:          o.ID,
		Name:        o.Name,
		Email:       o.Email,
		AccountType: o.AccountType,
		Company:     o.Company,
	}
}

func WithName(name string) func(*UserOptions) {
	return func(o *UserOptions) { o.Name = name }
}

func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) { o.Email = email }
}

func WithAccountType(accountType string) func(*UserOptions) {
	return func(o *UserOptions) { o.AccountType = accountType }
}

func WithCompany(name string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.AccountType = domain.AccountTypeCompany
		o.Company = &domain.Company{ID: nextID(), Name: name}
	}
}

// NewAuthResponse returns a login/registration response for user.
func NewAuthResponse(token string, user *domain.User) *apiclient.AuthResponse {
	return &apiclient.AuthResponse{Token: token, User: *user}
}

// NewTestPlan returns a monthly plan.
func NewTestPlan(name string, priceCents int64) domain.Plan {
	return domain.Plan{ID: nextID(), Name: name, PriceCents: priceCents, Interval: "month"}
}
