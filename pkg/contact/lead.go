package contact

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxMessageLength = 5000
	MaxFieldLength   = 200
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid submission")

// Lead is a stored contact request.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Service   string    `json:"service,omitempty"`
	Budget    string    `json:"budget,omitempty"`
	Message   string    `json:"message,omitempty"`
	Source    string    `json:"source,omitempty"`
	ClientIP  string    `json:"clientIp,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submission is the contact form payload.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Budget  string `json:"budget"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// ValidationError lists the rejected fields with a reason each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Normalize trims every field and lower-cases the e-mail address.
func (s Submission) Normalize() Submission {
	return Submission{
		Name:    strings.TrimSpace(s.Name),
		Email:   strings.ToLower(strings.TrimSpace(s.Email)),
		Company: strings.TrimSpace(s.Company),
		Phone:   strings.TrimSpace(s.Phone),
		Service: strings.TrimSpace(s.Service),
		Budget:  strings.TrimSpace(s.Budget),
		Message: strings.TrimSpace(s.Message),
		Source:  strings.TrimSpace(s.Source),
	}
}

// Validate checks a normalized submission.
func (s Submission) Validate() error {
	fields := map[string]string{}

	if s.Name == "" {
		fields["name"] = "required"
	}
	switch {
	case s.Email == "":
		fields["email"] = "required"
	case !validEmail(s.Email):
		fields["email"] = "invalid email address"
	}
	if utf8.RuneCountInString(s.Message) > MaxMessageLength {
		fields["message"] = fmt.Sprintf("must be at most %d characters", MaxMessageLength)
	}
	for name, v := range map[string]string{
		"name": s.Name, "email": s.Email, "company": s.Company, "phone": s.Phone,
		"service": s.Service, "budget": s.Budget, "source": s.Source,
	} {
		if _, set := fields[name]; !set && utf8.RuneCountInString(v) > MaxFieldLength {
			fields[name] = fmt.Sprintf("must be at most %d characters", MaxFieldLength)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// validEmail accepts a bare address only, no display name.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && addr.Name == ""
}
