// Package validate provides the form and upload validators used by the web UI,
// the CLI and the PDF extractor. Every validator returns nil on success or a
// *model.APIError whose message can be shown to the user as is.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/me/bloodlens/pkg/model"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var namePattern = regexp.MustCompile(`^[a-zA-Z\s]*$`)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// Genders lists the accepted values of the gender form field.
var Genders = []string{"Male", "Female", "Other"}

// Required fails unless every value is non-blank.
func Required(values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return model.NewValidationError("Please fill in all required fields")
		}
	}
	return nil
}

// BloodPressure checks that both readings are numbers and returns them.
func BloodPressure(systolic, diastolic string) (float64, float64, error) {
	sys, errSys := strconv.ParseFloat(strings.TrimSpace(systolic), 64)
	dia, errDia := strconv.ParseFloat(strings.TrimSpace(diastolic), 64)
	if errSys != nil || errDia != nil || sys <= 0 || dia <= 0 {
		return 0, 0, model.NewValidationError("Please enter valid blood pressure values")
	}
	return sys, dia, nil
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Email fails if s is not a well-formed email address.
func Email(s string) error {
	if !IsEmail(s) {
		return model.NewValidationError("Please enter a valid email address",
			model.FieldError{Field: "email", Message: "invalid format"})
	}
	return nil
}

// Password enforces the password policy: at least 8 characters with an
// uppercase letter, a lowercase letter and a digit.
func Password(pw string) error {
	if len(pw) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		return model.NewValidationError("Password must contain at least one uppercase letter")
	}
	if !lower {
		return model.NewValidationError("Password must contain at least one lowercase letter")
	}
	if !digit {
		return model.NewValidationError("Password must contain at least one number")
	}
	return nil
}

// SignupForm is the data entered on the signup page.
type SignupForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Signup cross-validates the signup form: presence, email format,
// password confirmation and password policy, in that order.
func Signup(f SignupForm) error {
	if err := Required(f.Email, f.Password, f.ConfirmPassword); err != nil {
		return model.NewValidationError("Please fill in all fields")
	}
	if err := Email(f.Email); err != nil {
		return err
	}
	if f.Password != f.ConfirmPassword {
		return model.NewValidationError("Passwords do not match",
			model.FieldError{Field: "confirm_password", Message: "does not match"})
	}
	return Password(f.Password)
}

// Patient validates the patient metadata of an analysis and returns the parsed age.
func Patient(name, age, gender string) (int, error) {
	if err := Required(name, age, gender); err != nil {
		return 0, model.NewValidationError("Please fill in all patient information")
	}
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 50 {
		return 0, model.NewValidationError("Name must be between 2 and 50 characters",
			model.FieldError{Field: "patient_name", Message: "invalid length"})
	}
	if !namePattern.MatchString(name) {
		return 0, model.NewValidationError("Name can only contain letters and spaces",
			model.FieldError{Field: "patient_name", Message: "invalid characters"})
	}
	n, err := strconv.Atoi(strings.TrimSpace(age))
	if err != nil || n < 0 || n > 120 {
		return 0, model.NewValidationError("Age must be a whole number between 0 and 120",
			model.FieldError{Field: "age", Message: "out of range"})
	}
	for _, g := range Genders {
		if g == gender {
			return n, nil
		}
	}
	return 0, model.NewValidationError("Please select a gender",
		model.FieldError{Field: "gender", Message: "unknown value"})
}

// PDFFile checks the file extension and the upload size limit.
func PDFFile(name string, size int64, maxMB int) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return model.NewValidationError("Invalid file type. Please upload a PDF file.")
	}
	if size > int64(maxMB)*1024*1024 {
		return model.NewValidationError(fmt.Sprintf("File size exceeds %dMB limit", maxMB))
	}
	return nil
}

// MatchTerms returns the distinct terms that occur in text, case-insensitively.
func MatchTerms(text string, terms []string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool, len(terms))
	var matched []string
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if strings.Contains(lower, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

// PDFContent applies the medical-report heuristic: text must mention at least
// minMatches distinct terms from the list.
func PDFContent(text string, terms []string, minMatches int) error {
	if len(MatchTerms(text, terms)) < minMatches {
		return model.NewValidationError("The uploaded file doesn't appear to be a medical report. Please upload a valid blood test report.")
	}
	return nil
}
