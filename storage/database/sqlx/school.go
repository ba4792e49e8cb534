package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
)

const schoolTable = "school"

var schoolColumns = []string{"id", "name", "code", "email", "phone", "address", "is_active", "created_at", "updated_at"}

type schoolRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Code      string      `db:"code"`
	Email     null.String `db:"email"`
	Phone     null.String `db:"phone"`
	Address   null.String `db:"address"`
	IsActive  bool        `db:"is_active"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r schoolRow) unboil() school.School {
	return school.School{
		ID:        r.ID,
		Name:      r.Name,
		Code:      r.Code,
		Email:     r.Email.String,
		Phone:     r.Phone.String,
		Address:   r.Address.String,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type schoolRepository struct {
	repository
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{repository{exec: exec}}
}

func (repo schoolRepository) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	b := exists(psql.Select("1").From(schoolTable).Where("code = ?", code))
	if err := repo.get(ctx, exec, &found, b); err != nil {
		return false, errors.Wrap(err, "checking school code")
	}
	return found, nil
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	sch.ID = newID()
	b := psql.Insert(schoolTable).Columns(schoolColumns...).Values(
		sch.ID, sch.Name, sch.Code, nullString(sch.Email), nullString(sch.Phone), nullString(sch.Address),
		sch.IsActive, sch.CreatedAt.UTC(), sch.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, filter school.GetFilter, exec ...core.DBExecutor) (school.School, error) {
	b := psql.Select(schoolColumns...).From(schoolTable)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return school.School{}, school.ErrNotFound
		}
		b = b.Where("id = ?", filter.ID)
	case filter.Code != "":
		b = b.Where("code = ?", filter.Code)
	default:
		return school.School{}, school.ErrNotFound
	}

	var row schoolRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "finding school")
	}
	return row.unboil(), nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, filter *school.QueryFilter, exec ...core.DBExecutor) ([]school.School, error) {
	b := psql.Select(schoolColumns...).From(schoolTable).OrderBy("name ASC")
	if filter != nil {
		if filter.Search != "" {
			b = b.Where(ilike(filter.Search, "name", "code"))
		}
		if filter.IsActive != nil {
			b = b.Where("is_active = ?", *filter.IsActive)
		}
	}

	var rows []schoolRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, r := range rows {
		schools = append(schools, r.unboil())
	}
	return schools, nil
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	if !validID(sch.ID) {
		return school.School{}, school.ErrNotFound
	}
	b := psql.Update(schoolTable).SetMap(map[string]interface{}{
		"name":       sch.Name,
		"email":      nullString(sch.Email),
		"phone":      nullString(sch.Phone),
		"address":    nullString(sch.Address),
		"is_active":  sch.IsActive,
		"updated_at": sch.UpdatedAt.UTC(),
	}).Where("id = ?", sch.ID)
	if err := repo.mustAffect(ctx, exec, b, school.ErrNotFound, "updating school"); err != nil {
		return school.School{}, err
	}
	return sch, nil
}
