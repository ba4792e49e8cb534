package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
)

const studentTable = "student"

var (
	studentColumns = []string{
		"id", "school_id", "user_id", "guardian_user_id", "admission_no", "first_name", "last_name", "class_name",
		"date_of_birth", "guardian_name", "guardian_email", "guardian_phone", "is_active", "created_at", "updated_at",
	}
	studentOrderings = []string{"first_name", "last_name", "admission_no", "class_name", "created_at"}
)

type studentRow struct {
	ID             string      `db:"id"`
	SchoolID       string      `db:"school_id"`
	UserID         null.String `db:"user_id"`
	GuardianUserID null.String `db:"guardian_user_id"`
	AdmissionNo    string      `db:"admission_no"`
	FirstName      string      `db:"first_name"`
	LastName       string      `db:"last_name"`
	ClassName      string      `db:"class_name"`
	DateOfBirth    null.Time   `db:"date_of_birth"`
	GuardianName   string      `db:"guardian_name"`
	GuardianEmail  string      `db:"guardian_email"`
	GuardianPhone  string      `db:"guardian_phone"`
	IsActive       bool        `db:"is_active"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r studentRow) unboil() student.Student {
	return student.Student{
		ID:             r.ID,
		SchoolID:       r.SchoolID,
		UserID:         r.UserID.String,
		GuardianUserID: r.GuardianUserID.String,
		AdmissionNo:    r.AdmissionNo,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		ClassName:      r.ClassName,
		DateOfBirth:    timePtr(r.DateOfBirth),
		GuardianName:   r.GuardianName,
		GuardianEmail:  r.GuardianEmail,
		GuardianPhone:  r.GuardianPhone,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func studentValues(std student.Student) map[string]interface{} {
	return map[string]interface{}{
		"user_id":          nullString(std.UserID),
		"guardian_user_id": nullString(std.GuardianUserID),
		"admission_no":     std.AdmissionNo,
		"first_name":       std.FirstName,
		"last_name":        std.LastName,
		"class_name":       std.ClassName,
		"date_of_birth":    nullTimePtr(std.DateOfBirth),
		"guardian_name":    std.GuardianName,
		"guardian_email":   std.GuardianEmail,
		"guardian_phone":   std.GuardianPhone,
		"is_active":        std.IsActive,
		"updated_at":       std.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	repository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repository{exec: exec}}
}

func (repo studentRepository) AdmissionNoExists(ctx context.Context, schoolID, admissionNo, excludedID string, exec ...core.DBExecutor) (bool, error) {
	if !validID(schoolID) {
		return false, nil
	}
	sel := psql.Select("1").From(studentTable).Where(sq.Eq{"school_id": schoolID, "admission_no": admissionNo})
	if validID(excludedID) {
		sel = sel.Where("id <> ?", excludedID)
	}

	var found bool
	if err := repo.get(ctx, exec, &found, exists(sel)); err != nil {
		return false, errors.Wrap(err, "checking admission number")
	}
	return found, nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	std.ID = newID()
	values := studentValues(std)
	values["id"] = std.ID
	values["school_id"] = std.SchoolID
	values["created_at"] = std.CreatedAt.UTC()

	if _, err := repo.execute(ctx, exec, psql.Insert(studentTable).SetMap(values)); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, schoolID string, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	if !validID(schoolID) {
		return []student.Student{}, nil
	}
	b := psql.Select(studentColumns...).From(studentTable).
		Where("school_id = ?", schoolID).
		OrderBy(orderBy(ordering, studentOrderings, core.DBOrdering{Field: "last_name", Ascending: true}))

	if filter != nil {
		if filter.IDs != nil {
			b = b.Where(sq.Eq{"id": validIDs(filter.IDs)})
		}
		if filter.Search != "" {
			b = b.Where(ilike(filter.Search, "first_name", "last_name", "admission_no"))
		}
		if filter.ClassName != "" {
			b = b.Where("class_name = ?", filter.ClassName)
		}
		if filter.IsActive != nil {
			b = b.Where("is_active = ?", *filter.IsActive)
		}
		if filter.GuardianUserID != "" {
			b = b.Where("guardian_user_id::text = ?", filter.GuardianUserID)
		}
		if filter.UserID != "" {
			b = b.Where("user_id::text = ?", filter.UserID)
		}
	}

	var rows []studentRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.unboil())
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (student.Student, error) {
	if !validID(id) || !validID(schoolID) {
		return student.Student{}, student.ErrNotFound
	}
	b := psql.Select(studentColumns...).From(studentTable).Where(sq.Eq{"id": id, "school_id": schoolID})

	var row studentRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return row.unboil(), nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	if !validID(std.ID) || !validID(std.SchoolID) {
		return student.Student{}, student.ErrNotFound
	}
	b := psql.Update(studentTable).SetMap(studentValues(std)).Where(sq.Eq{"id": std.ID, "school_id": std.SchoolID})
	if err := repo.mustAffect(ctx, exec, b, student.ErrNotFound, "updating student"); err != nil {
		return student.Student{}, err
	}
	return std, nil
}

func (repo studentRepository) DeleteStudentsByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 || !validID(schoolID) {
		return 0, nil
	}
	n, err := repo.execute(ctx, exec, psql.Delete(studentTable).Where(sq.Eq{"school_id": schoolID, "id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting students")
	}
	return int(n), nil
}

func (repo studentRepository) CountActive(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	if !validID(schoolID) {
		return 0, nil
	}
	var n int
	b := psql.Select("COUNT(*)").From(studentTable).Where(sq.Eq{"school_id": schoolID, "is_active": true})
	if err := repo.get(ctx, exec, &n, b); err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return n, nil
}
