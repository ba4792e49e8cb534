package student

import (
	"time"

	"github.com/databayt/hogwarts-sub013/core"
)

type Student struct {
	ID             string     `json:"id"`
	SchoolID       string     `json:"school_id"`
	UserID         string     `json:"user_id,omitempty"`
	GuardianUserID string     `json:"guardian_user_id,omitempty"`
	AdmissionNo    string     `json:"admission_no"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	ClassName      string     `json:"class_name"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	GuardianName   string     `json:"guardian_name"`
	GuardianEmail  string     `json:"guardian_email"`
	GuardianPhone  string     `json:"guardian_phone"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"` // UTC
	UpdatedAt      time.Time  `json:"updated_at"` // UTC
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// NewStudent contains information needed to enrol a new Student.
type NewStudent struct {
	UserID         string `json:"user_id" validate:"omitempty,uuid"`
	GuardianUserID string `json:"guardian_user_id" validate:"omitempty,uuid"`
	AdmissionNo    string `json:"admission_no" validate:"required,max=32,alphanum_"`
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"required,max=100"`
	ClassName      string `json:"class_name" validate:"required,max=50"`
	DateOfBirth    string `json:"date_of_birth" validate:"omitempty,date"`
	GuardianName   string `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail  string `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone  string `json:"guardian_phone" validate:"omitempty,max=32"`
}

func (ns *NewStudent) Validate() error {
	ns.AdmissionNo = core.CleanString(ns.AdmissionNo)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.ClassName = core.CleanString(ns.ClassName)
	ns.DateOfBirth = core.CleanString(ns.DateOfBirth)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	return core.Validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Empty strings keep the current value.
type UpdateStudent struct {
	GuardianUserID *string `json:"guardian_user_id" validate:"omitempty,uuid"`
	AdmissionNo    string  `json:"admission_no" validate:"omitempty,max=32,alphanum_"`
	FirstName      string  `json:"first_name" validate:"omitempty,max=100"`
	LastName       string  `json:"last_name" validate:"omitempty,max=100"`
	ClassName      string  `json:"class_name" validate:"omitempty,max=50"`
	DateOfBirth    string  `json:"date_of_birth" validate:"omitempty,date"`
	GuardianName   string  `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail  string  `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone  string  `json:"guardian_phone" validate:"omitempty,max=32"`
	IsActive       *bool   `json:"is_active"`
}

func (us *UpdateStudent) Validate(orig Student) error {
	keep := func(val *string, origVal string, lower ...bool) {
		if v := core.CleanString(*val, lower...); v != "" {
			*val = v
		} else {
			*val = origVal
		}
	}
	keep(&us.AdmissionNo, orig.AdmissionNo)
	keep(&us.FirstName, orig.FirstName)
	keep(&us.LastName, orig.LastName)
	keep(&us.ClassName, orig.ClassName)
	keep(&us.GuardianName, orig.GuardianName)
	keep(&us.GuardianEmail, orig.GuardianEmail, true)
	keep(&us.GuardianPhone, orig.GuardianPhone)
	us.DateOfBirth = core.CleanString(us.DateOfBirth)
	if us.GuardianUserID != nil {
		id := core.CleanString(*us.GuardianUserID)
		us.GuardianUserID = &id
		if id == "" {
			// empty string unlinks the guardian account
			cp := *us
			cp.GuardianUserID = nil
			return core.Validate.Struct(cp)
		}
	}
	return core.Validate.Struct(us)
}

type QueryFilter struct {
	IDs            []string
	Search         string // first name, last name or admission number
	ClassName      string
	IsActive       *bool
	GuardianUserID string
	UserID         string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassName = core.CleanString(qf.ClassName)
}
