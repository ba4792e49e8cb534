package student

import (
	"context"
	"errors"
	"strings"

	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("student")
	ErrAdmissionNoExists = errors.New("a student with this admission number already exists")
)

// ExportHeaders are the columns of the student list export.
var ExportHeaders = []string{
	"Admission No", "First Name", "Last Name", "Class", "Date of Birth",
	"Guardian Name", "Guardian Email", "Guardian Phone", "Active",
}

type (
	Repository interface {
		AdmissionNoExists(ctx context.Context, schoolID, admissionNo, excludedID string, exec ...core.DBExecutor) (bool, error)
		CreateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudentsByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error)
		CountActive(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error)
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

func (svc *Service) checkAdmissionNo(ctx context.Context, schoolID, admissionNo, excludedID string) error {
	exists, err := svc.repo.AdmissionNoExists(ctx, schoolID, admissionNo, excludedID)
	if err != nil {
		return err
	}
	if exists {
		return core.NewValidationError(ErrAdmissionNoExists, core.FieldError{Field: "admission_no", Error: ErrAdmissionNoExists.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, schoolID string, ns NewStudent) (Student, error) {
	if err := svc.checkAdmissionNo(ctx, schoolID, ns.AdmissionNo, ""); err != nil {
		return Student{}, err
	}

	now := core.NowFunc()
	std := Student{
		SchoolID:       schoolID,
		UserID:         ns.UserID,
		GuardianUserID: ns.GuardianUserID,
		AdmissionNo:    ns.AdmissionNo,
		FirstName:      ns.FirstName,
		LastName:       ns.LastName,
		ClassName:      ns.ClassName,
		GuardianName:   ns.GuardianName,
		GuardianEmail:  ns.GuardianEmail,
		GuardianPhone:  ns.GuardianPhone,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ns.DateOfBirth != "" {
		dob, _ := core.ParseDate(ns.DateOfBirth) // validated
		std.DateOfBirth = &dob
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, schoolID, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, schoolID, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, schoolID, id)
}

func (svc *Service) Update(ctx context.Context, std Student, us UpdateStudent) (Student, error) {
	if us.AdmissionNo != std.AdmissionNo {
		if err := svc.checkAdmissionNo(ctx, std.SchoolID, us.AdmissionNo, std.ID); err != nil {
			return Student{}, err
		}
	}

	std.AdmissionNo = us.AdmissionNo
	std.FirstName = us.FirstName
	std.LastName = us.LastName
	std.ClassName = us.ClassName
	std.GuardianName = us.GuardianName
	std.GuardianEmail = us.GuardianEmail
	std.GuardianPhone = us.GuardianPhone
	if us.GuardianUserID != nil {
		std.GuardianUserID = *us.GuardianUserID
	}
	if us.DateOfBirth != "" {
		dob, _ := core.ParseDate(us.DateOfBirth) // validated
		std.DateOfBirth = &dob
	}
	if us.IsActive != nil {
		std.IsActive = *us.IsActive
	}
	std.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateStudent(ctx, std)
}

func (svc *Service) Delete(ctx context.Context, schoolID string, ids ...string) (int, error) {
	return svc.repo.DeleteStudentsByID(ctx, schoolID, ids)
}

func (svc *Service) CountActive(ctx context.Context, schoolID string) (int, error) {
	return svc.repo.CountActive(ctx, schoolID)
}

// ExportRows flattens students into rows matching ExportHeaders.
func ExportRows(students []Student) [][]string {
	rows := make([][]string, 0, len(students))
	for _, s := range students {
		var dob string
		if s.DateOfBirth != nil {
			dob = s.DateOfBirth.Format(core.DateLayout)
		}
		active := "no"
		if s.IsActive {
			active = "yes"
		}
		rows = append(rows, []string{
			s.AdmissionNo, s.FirstName, s.LastName, s.ClassName, dob,
			s.GuardianName, s.GuardianEmail, s.GuardianPhone, active,
		})
	}
	return rows
}

// MapByID indexes students by ID.
func MapByID(students []Student) map[string]Student {
	m := make(map[string]Student, len(students))
	for _, s := range students {
		m[s.ID] = s
	}
	return m
}

// MatchesSearch reports whether `s` matches a case-insensitive search keyword.
func MatchesSearch(s Student, keyword string) bool {
	keyword = strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(s.FirstName), keyword) ||
		strings.Contains(strings.ToLower(s.LastName), keyword) ||
		strings.Contains(strings.ToLower(s.AdmissionNo), keyword)
}
