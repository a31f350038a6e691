package dirauth

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Validate checks the login payload shape. Credential checks happen against
// the directory.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// RegistrationRules validates registration payloads against the set of
// groups new identities may join.
type RegistrationRules struct {
	AllowedGroups []string
}

// Validate returns a ValidationFailed error describing every bad field.
func (v RegistrationRules) Validate(r Registration) error {
	allowed := make([]any, 0, len(v.AllowedGroups))
	for _, g := range v.AllowedGroups {
		allowed = append(allowed, g)
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Username,
			validation.Required,
			validation.Length(3, 50),
			validation.Match(usernamePattern).Error("must contain only letters, numbers, and underscores"),
		),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(6, 0),
			validation.By(passwordStrength),
		),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.FirstName, validation.Required, validation.By(notBlank)),
		validation.Field(&r.LastName, validation.Required, validation.By(notBlank)),
		validation.Field(&r.Group, validation.Required, validation.In(allowed...)),
	)
	if err != nil {
		return ValidationFailed(err)
	}
	return nil
}

func passwordStrength(value any) error {
	password, _ := value.(string)
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return errors.New("must contain at least one letter and one number")
	}
	return nil
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// Normalize trims surrounding whitespace from the descriptive fields.
func (r Registration) Normalize() Registration {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Group = strings.TrimSpace(r.Group)
	return r
}
