package mockbackend

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sitedash/internal/domain"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrPlanNotFound       = errors.New("plan not found")
)

type userRecord struct {
	user         domain.User
	passwordHash []byte
	plan         *domain.Plan
	social       bool
}

// Store keeps users, companies and plans in memory.
type Store struct {
	cost int

	mu      sync.RWMutex
	byID    map[string]*userRecord
	byEmail map[string]*userRecord
	plans   []domain.Plan
}

func NewStore(bcryptCost int) *Store {
	return &Store{
		cost:    bcryptCost,
		byID:    make(map[string]*userRecord),
		byEmail: make(map[string]*userRecord),
		plans: []domain.Plan{
			{ID: "starter", Name: "Starter", PriceCents: 0, Interval: "month"},
			{ID: "crew", Name: "Crew", PriceCents: 4900, Interval: "month"},
			{ID: "enterprise", Name: "Enterprise", PriceCents: 19900, Interval: "month"},
		},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a password account.
func (s *Store) CreateUser(name, email, password string) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := s.byEmail[key]; exists {
		return domain.User{}, ErrEmailTaken
	}
	rec := &userRecord{
		user: domain.User{
			ID:    domain.ID(uuid.NewString()),
			Name:  strings.TrimSpace(name),
			Email: key,
			Role:  "owner",
		},
		passwordHash: hash,
	}
	s.byID[string(rec.user.ID)] = rec
	s.byEmail[key] = rec
	return rec.user, nil
}

// Authenticate checks a password. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Store) Authenticate(email, password string) (domain.User, error) {
	s.mu.RLock()
	rec, ok := s.byEmail[normalizeEmail(email)]
	s.mu.RUnlock()
	if !ok || rec.passwordHash == nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return s.User(string(rec.user.ID))
}

// SocialUser finds or creates the account for a provider identity. created
// reports whether the account is new.
func (s *Store) SocialUser(email, name string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	if rec, ok := s.byEmail[key]; ok {
		return *rec.user.Clone(), false
	}
	rec := &userRecord{
		user: domain.User{
			ID:          domain.ID(uuid.NewString()),
			Name:        name,
			Email:       key,
			Role:        "owner",
			AccountType: domain.AccountTypeCompany,
		},
		social: true,
	}
	s.byID[string(rec.user.ID)] = rec
	s.byEmail[key] = rec
	return rec.user, true
}

func (s *Store) User(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return *rec.user.Clone(), nil
}

// Plan returns the user's selected plan, if any.
func (s *Store) Plan(userID string) *domain.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.byID[userID]; ok {
		return rec.plan.Clone()
	}
	return nil
}

// UpdateUser applies fn to the stored user and returns the result.
func (s *Store) UpdateUser(id string, fn func(u *domain.User)) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	fn(&rec.user)
	return *rec.user.Clone(), nil
}

// AttachCompany creates a company and makes it the user's.
func (s *Store) AttachCompany(userID string, c domain.Company) (domain.Company, domain.User, error) {
	c.ID = domain.ID(uuid.NewString())
	u, err := s.UpdateUser(userID, func(u *domain.User) {
		company := c
		u.Company = &company
		u.AccountType = domain.AccountTypeCompany
	})
	return c, u, err
}

func (s *Store) Plans() []domain.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Plan(nil), s.plans...)
}

func (s *Store) SelectPlan(userID, planID string) (domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[userID]
	if !ok {
		return domain.Plan{}, ErrUserNotFound
	}
	for _, p := range s.plans {
		if string(p.ID) == planID {
			rec.plan = p.Clone()
			return p, nil
		}
	}
	return domain.Plan{}, ErrPlanNotFound
}

// NeedsCompanySetup reports whether a social account still lacks a company.
func (s *Store) NeedsCompanySetup(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[userID]
	return ok && rec.social && rec.user.Company == nil
}
