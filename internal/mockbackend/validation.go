package mockbackend

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"
)

// Validator collects field errors in the backend's 422 shape.
type Validator struct {
	errors map[string][]string
}

func (v *Validator) add(field, msg string) {
	if v.errors == nil {
		v.errors = make(map[string][]string)
	}
	v.errors[field] = append(v.errors[field], msg)
}

func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, "The "+label(field)+" field is required.")
		return false
	}
	return true
}

func (v *Validator) Email(field, value string) {
	if !v.Required(field, value) {
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		v.add(field, "The "+label(field)+" field must be a valid email address.")
	}
}

func (v *Validator) MinLength(field, value string, n int) {
	if len(value) < n && value != "" {
		v.add(field, "The "+label(field)+" field must be at least "+strconv.Itoa(n)+" characters.")
	}
}

func (v *Validator) In(field, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.add(field, "The selected "+label(field)+" is invalid.")
}

func (v *Validator) Fail(field, msg string) { v.add(field, msg) }

func (v *Validator) Valid() bool { return len(v.errors) == 0 }

// Write answers 422 with the first error as the message.
func (v *Validator) Write(w http.ResponseWriter) {
	msg := "The given data was invalid."
	for _, field := range []string{"email", "password", "name", "position", "phone", "company_name", "plan_id"} {
		if errs := v.errors[field]; len(errs) > 0 {
			msg = errs[0]
			break
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": msg,
		"errors":  v.errors,
	})
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
