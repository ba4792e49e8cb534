package school

import (
	"context"
	"errors"

	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("school")
	ErrCodeExists  = errors.New("a school with this code already exists")
	ErrUnavailable = errors.New("school unavailable")
)

type (
	Repository interface {
		CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		GetSchool(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (School, error)
		QuerySchools(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]School, error)
		UpdateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	exists, err := svc.repo.CodeExists(ctx, ns.Code)
	if err != nil {
		return School{}, err
	}
	if exists {
		return School{}, core.NewValidationError(ErrCodeExists, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
	}

	now := core.NowFunc()
	return svc.repo.CreateSchool(ctx, School{
		Name:      ns.Name,
		Code:      ns.Code,
		Email:     ns.Email,
		Phone:     ns.Phone,
		Address:   ns.Address,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByCode(ctx context.Context, code string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{Code: core.CleanString(code, true /* lower */)})
}

// CheckAvailable returns ErrUnavailable unless the school exists and is active.
func (svc *Service) CheckAvailable(ctx context.Context, id string) error {
	sch, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnavailable
		}
		return err
	}
	if !sch.IsActive {
		return ErrUnavailable
	}
	return nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]School, error) {
	return svc.repo.QuerySchools(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, sch School, us UpdateSchool) (School, error) {
	sch.Name = us.Name
	sch.Email = us.Email
	sch.Phone = us.Phone
	sch.Address = us.Address
	if us.IsActive != nil {
		sch.IsActive = *us.IsActive
	}
	sch.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSchool(ctx, sch)
}
