package flow

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// MinPasswordLength is the provider's password floor; validating it locally
// saves a round trip for the common typo case.
const MinPasswordLength = 6

// CodeLength is the length of the one-time recovery code.
const CodeLength = 6

// InstitutionalEmail validates that the address belongs to the campus
// domain, e.g. cit.edu. Matching is case-insensitive.
func InstitutionalEmail(domain string) validation.Rule {
	suffix := "@" + strings.ToLower(domain)
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if !strings.HasSuffix(strings.ToLower(s), suffix) {
			return fmt.Errorf("must be a %s email address", domain)
		}
		return nil
	})
}

// ValidPhoneNumber validates the number parses for the given region.
func ValidPhoneNumber(region string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return fmt.Errorf("must be a valid phone number")
		}
		if !phonenumbers.IsValidNumber(num) {
			return fmt.Errorf("must be a valid phone number")
		}
		return nil
	})
}

// StringEquals validates the value matches str, for confirmation fields.
func StringEquals(str, errMessage string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			if errMessage == "" {
				errMessage = "value does not match"
			}
			return fmt.Errorf("%s", errMessage)
		}
		return nil
	})
}

// FormatValidationErrorToMap flattens ozzo field errors into a map the
// templates can render next to each input.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if errs, ok := err.(validation.Errors); ok {
		for field, ferr := range errs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["base"] = err.Error()
	}
	return out
}

// RequestCodePayload carries the email submitted on recovery step one.
type RequestCodePayload struct {
	Email  string `form:"email" json:"email"`
	Domain string `form:"-" json:"-"`
}

// Validate implements validation.Validatable.
func (p RequestCodePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email,
			validation.Required.Error("email is required"),
			is.Email.Error("must be a valid email address"),
			InstitutionalEmail(p.Domain),
		),
	)
}

// VerifyCodePayload carries the one-time code submitted on step two.
type VerifyCodePayload struct {
	Code string `form:"code" json:"code"`
}

// Validate implements validation.Validatable.
func (p VerifyCodePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Code,
			validation.Required.Error("code is required"),
			validation.Length(CodeLength, CodeLength).Error("code must be 6 digits"),
			is.Digit.Error("code must be 6 digits"),
		),
	)
}

// ResetPasswordPayload carries the new password pair from step three.
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate implements validation.Validatable.
func (p ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Password,
			validation.Required.Error("password is required"),
			validation.Length(MinPasswordLength, 100).Error("password must be at least 6 characters"),
		),
		validation.Field(&p.ConfirmPassword,
			validation.Required.Error("please confirm your password"),
			StringEquals(p.Password, "passwords do not match"),
		),
	)
}
