package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a backend identifier. The backend may send ids as JSON numbers or
// strings; both decode into the same value.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int returns the id as an integer when it is numeric.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

const (
	AccountTypeIndividual = "individual"
	AccountTypeCompany    = "company"
)

// Company is the tenant a user belongs to.
type Company struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// User is the signed-in account as reported by the backend.
type User struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone,omitempty"`
	Position    string   `json:"position,omitempty"`
	AccountType string   `json:"account_type,omitempty"`
	Role        string   `json:"role,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Company     *Company `json:"company,omitempty"`
}

// Clone returns a deep copy so snapshots never share the company pointer.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Company != nil {
		company := *u.Company
		c.Company = &company
	}
	return &c
}

// Plan is a subscription plan.
type Plan struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents,omitempty"`
	Interval   string `json:"interval,omitempty"`
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
