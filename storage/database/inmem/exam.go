package inmemdb

import (
	"context"
	"sort"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/exam"
)

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil)

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateExam(_ context.Context, e exam.Exam, _ ...core.DBExecutor) (exam.Exam, error) {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()
	e.ID = newID()
	repo.db.exam.rows[e.ID] = &e
	return e, nil
}

func (repo *examRepository) GetExam(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (exam.Exam, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()
	if e, ok := repo.db.exam.rows[id]; ok && e.SchoolID == schoolID {
		return *e, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) QueryExams(_ context.Context, schoolID string, filter *exam.ExamFilter, _ ...core.DBExecutor) ([]exam.Exam, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()
	exams := repo.db.exam.all(func(e exam.Exam) bool {
		if e.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		return (filter.ClassName == "" || e.ClassName == filter.ClassName) &&
			(filter.Subject == "" || e.Subject == filter.Subject) &&
			(filter.Status == "" || e.Status == filter.Status)
	})
	sort.Slice(exams, func(i, j int) bool { return exams[i].Date.After(exams[j].Date) })
	return exams, nil
}

func (repo *examRepository) UpdateExam(_ context.Context, e exam.Exam, _ ...core.DBExecutor) (exam.Exam, error) {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()
	if orig, ok := repo.db.exam.rows[e.ID]; !ok || orig.SchoolID != e.SchoolID {
		return exam.Exam{}, exam.ErrNotFound
	}
	repo.db.exam.rows[e.ID] = &e
	return e, nil
}

func (repo *examRepository) DeleteExam(_ context.Context, schoolID, id string, _ ...core.DBExecutor) error {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()
	if e, ok := repo.db.exam.rows[id]; !ok || e.SchoolID != schoolID {
		return exam.ErrNotFound
	}
	delete(repo.db.exam.rows, id)

	// ON DELETE CASCADE
	repo.db.question.Lock()
	defer repo.db.question.Unlock()
	for qid, q := range repo.db.question.rows {
		if q.ExamID == id {
			delete(repo.db.question.rows, qid)
		}
	}
	return nil
}

func (repo *examRepository) CountPublished(_ context.Context, schoolID string, _ ...core.DBExecutor) (int, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()
	n := 0
	for _, e := range repo.db.exam.rows {
		if e.SchoolID == schoolID && e.Status == exam.StatusPublished {
			n++
		}
	}
	return n, nil
}

func (repo *examRepository) CreateQuestion(_ context.Context, q exam.Question, _ ...core.DBExecutor) (exam.Question, error) {
	repo.db.question.Lock()
	defer repo.db.question.Unlock()
	q.ID = newID()
	q.Options = append([]string(nil), q.Options...)
	repo.db.question.rows[q.ID] = &q
	return q, nil
}

func (repo *examRepository) GetQuestion(_ context.Context, schoolID, examID, id string, _ ...core.DBExecutor) (exam.Question, error) {
	repo.db.question.RLock()
	defer repo.db.question.RUnlock()
	if q, ok := repo.db.question.rows[id]; ok && q.SchoolID == schoolID && q.ExamID == examID {
		return *q, nil
	}
	return exam.Question{}, exam.ErrQuestionNotFound
}

func (repo *examRepository) QueryQuestions(_ context.Context, schoolID, examID string, _ ...core.DBExecutor) ([]exam.Question, error) {
	repo.db.question.RLock()
	defer repo.db.question.RUnlock()
	questions := repo.db.question.all(func(q exam.Question) bool {
		return q.SchoolID == schoolID && q.ExamID == examID
	})
	sort.Slice(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	return questions, nil
}

func (repo *examRepository) UpdateQuestion(_ context.Context, q exam.Question, _ ...core.DBExecutor) (exam.Question, error) {
	repo.db.question.Lock()
	defer repo.db.question.Unlock()
	if orig, ok := repo.db.question.rows[q.ID]; !ok || orig.SchoolID != q.SchoolID || orig.ExamID != q.ExamID {
		return exam.Question{}, exam.ErrQuestionNotFound
	}
	q.Options = append([]string(nil), q.Options...)
	repo.db.question.rows[q.ID] = &q
	return q, nil
}

func (repo *examRepository) DeleteQuestion(_ context.Context, schoolID, examID, id string, _ ...core.DBExecutor) error {
	repo.db.question.Lock()
	defer repo.db.question.Unlock()
	if q, ok := repo.db.question.rows[id]; !ok || q.SchoolID != schoolID || q.ExamID != examID {
		return exam.ErrQuestionNotFound
	}
	delete(repo.db.question.rows, id)
	return nil
}

func (repo *examRepository) HasSubmitted(_ context.Context, schoolID, examID, studentID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.response.RLock()
	defer repo.db.response.RUnlock()
	for _, r := range repo.db.response.rows {
		if r.SchoolID == schoolID && r.ExamID == examID && r.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *examRepository) CreateResponses(_ context.Context, responses []exam.Response, _ ...core.DBExecutor) error {
	repo.db.response.Lock()
	defer repo.db.response.Unlock()
	for _, r := range responses {
		r := r
		r.ID = newID()
		repo.db.response.rows[r.ID] = &r
	}
	return nil
}

func (repo *examRepository) QueryResponses(_ context.Context, schoolID, examID, studentID string, _ ...core.DBExecutor) ([]exam.Response, error) {
	repo.db.response.RLock()
	defer repo.db.response.RUnlock()
	responses := repo.db.response.all(func(r exam.Response) bool {
		return r.SchoolID == schoolID && r.ExamID == examID && (studentID == "" || r.StudentID == studentID)
	})
	sort.Slice(responses, func(i, j int) bool {
		if responses[i].StudentID != responses[j].StudentID {
			return responses[i].StudentID < responses[j].StudentID
		}
		return responses[i].QuestionID < responses[j].QuestionID
	})
	return responses, nil
}
