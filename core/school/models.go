package school

import (
	"time"

	"github.com/databayt/hogwarts-sub013/core"
)

type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewSchool contains information needed to register a new School (tenant).
type NewSchool struct {
	Name    string `json:"name" validate:"required,max=200"`
	Code    string `json:"code" validate:"required,min=2,max=32,slug"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address" validate:"omitempty,max=500"`
}

func (ns *NewSchool) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.Address = core.CleanString(ns.Address)
	return core.Validate.Struct(ns)
}

// UpdateSchool defines what information may be provided to modify the School.
// The code cannot be changed: it is used to log in and in generated numbers.
type UpdateSchool struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Address  string `json:"address" validate:"omitempty,max=500"`
	IsActive *bool  `json:"is_active"`
}

func (us *UpdateSchool) Validate(orig School) error {
	us.Name = core.CleanOr(us.Name, orig.Name)
	us.Email = core.CleanOr(us.Email, orig.Email, true /* lower */)
	us.Phone = core.CleanOr(us.Phone, orig.Phone)
	us.Address = core.CleanOr(us.Address, orig.Address)
	return core.Validate.Struct(us)
}

type QueryFilter struct {
	Search   string
	IsActive *bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single School; ID takes precedence over Code.
type GetFilter struct {
	ID   string
	Code string
}
