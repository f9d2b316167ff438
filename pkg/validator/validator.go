package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

// ValidationErrors maps request fields to the first problem found with each.
type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add keeps the earliest message recorded for a field.
func (v ValidationErrors) Add(field, message string) {
	if _, ok := v[field]; !ok {
		v[field] = message
	}
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidateRegister(email, username, displayName, password string) ValidationErrors {
	errs := make(ValidationErrors)

	checkEmail(errs, email)

	username = checkLength(errs, "username", "Username", username, 3, 50)
	if username != "" && !handlePattern.MatchString(username) {
		errs.Add("username", "Username can only contain letters, numbers, _ and -")
	}

	checkLength(errs, "display_name", "Display name", displayName, 2, 100)
	checkPassword(errs, password)

	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	errs := make(ValidationErrors)

	checkEmail(errs, email)
	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}

// ValidateGroup checks a group conversation before creation. memberCount
// counts the invited members, not the creator.
func ValidateGroup(name string, memberCount int) ValidationErrors {
	errs := make(ValidationErrors)

	checkLength(errs, "name", "Group name", name, 2, 100)
	if memberCount < 1 {
		errs.Add("member_ids", "Add at least one other member")
	}

	return errs
}

func checkEmail(errs ValidationErrors, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}
}

// checkLength trims value and records a problem when it is empty or falls
// outside [min, max] bytes. The trimmed value is returned for follow-up
// checks.
func checkLength(errs ValidationErrors, field, label, value string, min, max int) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		errs.Add(field, label+" is required")
	case len(value) < min:
		errs.Add(field, fmt.Sprintf("%s must be at least %d characters", label, min))
	case len(value) > max:
		errs.Add(field, label+" is too long")
	}
	return value
}

var passwordClasses = []struct {
	has  func(rune) bool
	want string
}{
	{unicode.IsUpper, "one uppercase letter"},
	{unicode.IsLower, "one lowercase letter"},
	{unicode.IsDigit, "one number"},
}

func checkPassword(errs ValidationErrors, password string) {
	if len(password) < 8 {
		errs.Add("password", "Password must be at least 8 characters")
		return
	}

	var missing []string
	for _, class := range passwordClasses {
		if !strings.ContainsFunc(password, class.has) {
			missing = append(missing, class.want)
		}
	}
	if len(missing) > 0 {
		errs.Add("password", "Password must contain at least "+strings.Join(missing, ", "))
	}
}
