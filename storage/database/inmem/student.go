package inmemdb

import (
	"context"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
)

type studentRepository struct {
	db *table[student.Student]
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db.student}
}

var studentOrderings = map[string]func(a, b student.Student) bool{
	"first_name":   func(a, b student.Student) bool { return a.FirstName < b.FirstName },
	"last_name":    func(a, b student.Student) bool { return a.LastName < b.LastName },
	"admission_no": func(a, b student.Student) bool { return a.AdmissionNo < b.AdmissionNo },
	"class_name":   func(a, b student.Student) bool { return a.ClassName < b.ClassName },
	"created_at":   func(a, b student.Student) bool { return a.CreatedAt.Before(b.CreatedAt) },
}

func (repo *studentRepository) AdmissionNoExists(_ context.Context, schoolID, admissionNo, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, std := range repo.db.rows {
		if std.SchoolID == schoolID && std.AdmissionNo == admissionNo && std.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	std.ID = newID()
	repo.db.rows[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, schoolID string, filter *student.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := repo.db.all(func(std student.Student) bool {
		if std.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		switch {
		case !inSet(filter.IDs, std.ID),
			filter.Search != "" && !student.MatchesSearch(std, filter.Search),
			filter.ClassName != "" && std.ClassName != filter.ClassName,
			filter.IsActive != nil && std.IsActive != *filter.IsActive,
			filter.GuardianUserID != "" && std.GuardianUserID != filter.GuardianUserID,
			filter.UserID != "" && std.UserID != filter.UserID:
			return false
		}
		return true
	})
	sortBy(students, ordering, studentOrderings, core.DBOrdering{Field: "last_name", Ascending: true})
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if std, ok := repo.db.rows[id]; ok && std.SchoolID == schoolID {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if orig, ok := repo.db.rows[std.ID]; !ok || orig.SchoolID != std.SchoolID {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.rows[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) DeleteStudentsByID(_ context.Context, schoolID string, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	n := 0
	for _, id := range ids {
		if std, ok := repo.db.rows[id]; ok && std.SchoolID == schoolID {
			delete(repo.db.rows, id)
			n++
		}
	}
	return n, nil
}

func (repo *studentRepository) CountActive(_ context.Context, schoolID string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	n := 0
	for _, std := range repo.db.rows {
		if std.SchoolID == schoolID && std.IsActive {
			n++
		}
	}
	return n, nil
}
