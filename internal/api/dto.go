package api

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// DeviceRequest is the payload for device create and update. The typed
// fields are the only ones the rule catalog's preconditions may reference;
// AdditionalProperties is an opaque JSON bag inspected solely by the
// conditional validation engine.
type DeviceRequest struct {
	Name                 string          `json:"name"`
	TypeID               int64           `json:"typeId"`
	IsEnabled            bool            `json:"isEnabled"`
	Mode                 string          `json:"mode"`
	AdditionalProperties json.RawMessage `json:"additionalProperties"`
}

type CreateAccountRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	EmployeeID int64  `json:"employeeId"`
	RoleID     int64  `json:"roleId"`
}

type UpdateAccountRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	EmployeeID int64  `json:"employeeId"`
	RoleID     int64  `json:"roleId"`
}

type CreatePersonRequest struct {
	PassportNumber string `json:"passportNumber"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	PhoneNumber    string `json:"phoneNumber"`
	Email          string `json:"email"`
}

type CreateEmployeeRequest struct {
	Person     CreatePersonRequest `json:"person"`
	Salary     float64             `json:"salary"`
	PositionID int64               `json:"positionId"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Field shape checks applied before business logic. Patterns mirror the
// HR policy: usernames must not start with a digit, passwords need 12+
// chars with mixed case, a digit and a symbol.
var (
	usernameRe = regexp.MustCompile(`^[^\d][\w\d_]{2,}$`)
	passwordRe = regexp.MustCompile(`^.{12,}$`)
	lowerRe    = regexp.MustCompile(`[a-z]`)
	upperRe    = regexp.MustCompile(`[A-Z]`)
	digitRe    = regexp.MustCompile(`\d`)
	symbolRe   = regexp.MustCompile(`[\W_]`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe    = regexp.MustCompile(`^\+\d{9,15}$`)
)

func checkUsername(details []ErrorDetail, username string) []ErrorDetail {
	if len(username) > 100 || !usernameRe.MatchString(username) {
		details = append(details, ErrorDetail{
			Field:   "username",
			Rule:    "pattern",
			Message: "The username is not valid. Usernames must not start with a number.",
		})
	}
	return details
}

// checkPassword reproduces the lookahead-style complexity rule with plain
// checks; Go's regexp has no lookahead.
func checkPassword(details []ErrorDetail, password string) []ErrorDetail {
	ok := len(password) <= 100 &&
		passwordRe.MatchString(password) &&
		lowerRe.MatchString(password) &&
		upperRe.MatchString(password) &&
		digitRe.MatchString(password) &&
		symbolRe.MatchString(password)
	if !ok {
		details = append(details, ErrorDetail{
			Field: "password",
			Rule:  "pattern",
			Message: "Password is invalid. It must be at least 12 characters and contain " +
				"a lowercase letter, an uppercase letter, a number and a symbol.",
		})
	}
	return details
}

func requiredString(details []ErrorDetail, field, value string, maxLen int) []ErrorDetail {
	if value == "" {
		details = append(details, ErrorDetail{Field: field, Rule: "required", Message: fmt.Sprintf("%s is required", field)})
	} else if maxLen > 0 && len(value) > maxLen {
		details = append(details, ErrorDetail{Field: field, Rule: "max_length", Message: fmt.Sprintf("%s must be at most %d characters", field, maxLen)})
	}
	return details
}

func (r *CreateAccountRequest) Validate() []ErrorDetail {
	var details []ErrorDetail
	details = checkUsername(details, r.Username)
	details = checkPassword(details, r.Password)
	return details
}

func (r *UpdateAccountRequest) Validate() []ErrorDetail {
	var details []ErrorDetail
	details = checkUsername(details, r.Username)
	details = checkPassword(details, r.Password)
	return details
}

func (r *CreateEmployeeRequest) Validate() []ErrorDetail {
	var details []ErrorDetail
	details = requiredString(details, "person.passportNumber", r.Person.PassportNumber, 10)
	details = requiredString(details, "person.firstName", r.Person.FirstName, 50)
	details = requiredString(details, "person.lastName", r.Person.LastName, 50)
	if len(r.Person.MiddleName) > 50 {
		details = append(details, ErrorDetail{Field: "person.middleName", Rule: "max_length", Message: "person.middleName must be at most 50 characters"})
	}
	if !phoneRe.MatchString(r.Person.PhoneNumber) {
		details = append(details, ErrorDetail{
			Field:   "person.phoneNumber",
			Rule:    "pattern",
			Message: "Phone number is invalid. It must start with '+' and contain 9 to 15 digits with no spaces or symbols.",
		})
	}
	if !emailRe.MatchString(r.Person.Email) {
		details = append(details, ErrorDetail{Field: "person.email", Rule: "pattern", Message: "The email address is not valid."})
	}
	if r.Salary < 0 {
		details = append(details, ErrorDetail{Field: "salary", Rule: "min", Message: "Salary cannot be negative."})
	}
	return details
}

func (r *DeviceRequest) Validate() []ErrorDetail {
	var details []ErrorDetail
	details = requiredString(details, "name", r.Name, 100)
	if r.TypeID <= 0 {
		details = append(details, ErrorDetail{Field: "typeId", Rule: "required", Message: "typeId is required"})
	}
	return details
}
