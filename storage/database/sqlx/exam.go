package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/exam"
)

const (
	examTable     = "exam"
	questionTable = "question"
	responseTable = "exam_response"
)

var (
	examColumns     = []string{"id", "school_id", "title", "subject", "class_name", "date", "pass_mark", "status", "created_by", "created_at", "updated_at"}
	questionColumns = []string{"id", "school_id", "exam_id", "text", "options", "correct_option", "marks", "position"}
	responseColumns = []string{"id", "school_id", "exam_id", "question_id", "student_id", "selected_option", "is_correct", "created_at"}
)

type examRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	Title     string    `db:"title"`
	Subject   string    `db:"subject"`
	ClassName string    `db:"class_name"`
	Date      time.Time `db:"date"`
	PassMark  int       `db:"pass_mark"`
	Status    string    `db:"status"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r examRow) unboil() exam.Exam {
	return exam.Exam{
		ID:        r.ID,
		SchoolID:  r.SchoolID,
		Title:     r.Title,
		Subject:   r.Subject,
		ClassName: r.ClassName,
		Date:      core.TruncateDay(r.Date),
		PassMark:  r.PassMark,
		Status:    r.Status,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type questionRow struct {
	ID            string         `db:"id"`
	SchoolID      string         `db:"school_id"`
	ExamID        string         `db:"exam_id"`
	Text          string         `db:"text"`
	Options       pq.StringArray `db:"options"`
	CorrectOption int            `db:"correct_option"`
	Marks         int            `db:"marks"`
	Position      int            `db:"position"`
}

func (r questionRow) unboil() exam.Question {
	return exam.Question{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		ExamID:        r.ExamID,
		Text:          r.Text,
		Options:       []string(r.Options),
		CorrectOption: r.CorrectOption,
		Marks:         r.Marks,
		Position:      r.Position,
	}
}

type responseRow struct {
	ID             string    `db:"id"`
	SchoolID       string    `db:"school_id"`
	ExamID         string    `db:"exam_id"`
	QuestionID     string    `db:"question_id"`
	StudentID      string    `db:"student_id"`
	SelectedOption null.Int  `db:"selected_option"`
	IsCorrect      bool      `db:"is_correct"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r responseRow) unboil() exam.Response {
	resp := exam.Response{
		ID:         r.ID,
		SchoolID:   r.SchoolID,
		ExamID:     r.ExamID,
		QuestionID: r.QuestionID,
		StudentID:  r.StudentID,
		IsCorrect:  r.IsCorrect,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.SelectedOption.Valid {
		sel := r.SelectedOption.Int
		resp.SelectedOption = &sel
	}
	return resp
}

type examRepository struct {
	repository
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(exec core.DBExecutor) *examRepository {
	return &examRepository{repository{exec: exec}}
}

func (repo examRepository) CreateExam(ctx context.Context, e exam.Exam, exec ...core.DBExecutor) (exam.Exam, error) {
	e.ID = newID()
	b := psql.Insert(examTable).Columns(examColumns...).Values(
		e.ID, e.SchoolID, e.Title, e.Subject, e.ClassName, e.Date, e.PassMark, e.Status, e.CreatedBy,
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return e, nil
}

func (repo examRepository) GetExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (exam.Exam, error) {
	if !validID(schoolID) || !validID(id) {
		return exam.Exam{}, exam.ErrNotFound
	}
	var row examRow
	b := psql.Select(examColumns...).From(examTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return exam.Exam{}, trapNoRowsErr(err, exam.ErrNotFound, "finding exam")
	}
	return row.unboil(), nil
}

func (repo examRepository) QueryExams(ctx context.Context, schoolID string, filter *exam.ExamFilter, exec ...core.DBExecutor) ([]exam.Exam, error) {
	if !validID(schoolID) {
		return []exam.Exam{}, nil
	}
	b := psql.Select(examColumns...).From(examTable).Where("school_id = ?", schoolID).OrderBy("date DESC")
	if filter != nil {
		if filter.ClassName != "" {
			b = b.Where("class_name = ?", filter.ClassName)
		}
		if filter.Subject != "" {
			b = b.Where("subject = ?", filter.Subject)
		}
		if filter.Status != "" {
			b = b.Where("status = ?", filter.Status)
		}
	}

	var rows []examRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, r := range rows {
		exams = append(exams, r.unboil())
	}
	return exams, nil
}

func (repo examRepository) UpdateExam(ctx context.Context, e exam.Exam, exec ...core.DBExecutor) (exam.Exam, error) {
	if !validID(e.ID) || !validID(e.SchoolID) {
		return exam.Exam{}, exam.ErrNotFound
	}
	b := psql.Update(examTable).SetMap(map[string]interface{}{
		"title":      e.Title,
		"subject":    e.Subject,
		"class_name": e.ClassName,
		"date":       e.Date,
		"pass_mark":  e.PassMark,
		"status":     e.Status,
		"updated_at": e.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": e.ID, "school_id": e.SchoolID})
	if err := repo.mustAffect(ctx, exec, b, exam.ErrNotFound, "updating exam"); err != nil {
		return exam.Exam{}, err
	}
	return e, nil
}

// DeleteExam cascades to questions and responses.
func (repo examRepository) DeleteExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(id) {
		return exam.ErrNotFound
	}
	b := psql.Delete(examTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	return repo.mustAffect(ctx, exec, b, exam.ErrNotFound, "deleting exam")
}

func (repo examRepository) CountPublished(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	if !validID(schoolID) {
		return 0, nil
	}
	var n int
	b := psql.Select("COUNT(*)").From(examTable).Where(sq.Eq{"school_id": schoolID, "status": exam.StatusPublished})
	if err := repo.get(ctx, exec, &n, b); err != nil {
		return 0, errors.Wrap(err, "counting published exams")
	}
	return n, nil
}

func (repo examRepository) CreateQuestion(ctx context.Context, q exam.Question, exec ...core.DBExecutor) (exam.Question, error) {
	q.ID = newID()
	b := psql.Insert(questionTable).Columns(questionColumns...).Values(
		q.ID, q.SchoolID, q.ExamID, q.Text, pq.StringArray(q.Options), q.CorrectOption, q.Marks, q.Position,
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return exam.Question{}, errors.Wrap(err, "inserting question")
	}
	return q, nil
}

func (repo examRepository) GetQuestion(ctx context.Context, schoolID, examID, id string, exec ...core.DBExecutor) (exam.Question, error) {
	if !validID(schoolID) || !validID(examID) || !validID(id) {
		return exam.Question{}, exam.ErrQuestionNotFound
	}
	var row questionRow
	b := psql.Select(questionColumns...).From(questionTable).Where(sq.Eq{"id": id, "exam_id": examID, "school_id": schoolID})
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return exam.Question{}, trapNoRowsErr(err, exam.ErrQuestionNotFound, "finding question")
	}
	return row.unboil(), nil
}

func (repo examRepository) QueryQuestions(ctx context.Context, schoolID, examID string, exec ...core.DBExecutor) ([]exam.Question, error) {
	if !validID(schoolID) || !validID(examID) {
		return []exam.Question{}, nil
	}
	b := psql.Select(questionColumns...).From(questionTable).
		Where(sq.Eq{"school_id": schoolID, "exam_id": examID}).
		OrderBy("position ASC")

	var rows []questionRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]exam.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, r.unboil())
	}
	return questions, nil
}

func (repo examRepository) UpdateQuestion(ctx context.Context, q exam.Question, exec ...core.DBExecutor) (exam.Question, error) {
	if !validID(q.ID) || !validID(q.ExamID) || !validID(q.SchoolID) {
		return exam.Question{}, exam.ErrQuestionNotFound
	}
	b := psql.Update(questionTable).SetMap(map[string]interface{}{
		"text":           q.Text,
		"options":        pq.StringArray(q.Options),
		"correct_option": q.CorrectOption,
		"marks":          q.Marks,
		"position":       q.Position,
	}).Where(sq.Eq{"id": q.ID, "exam_id": q.ExamID, "school_id": q.SchoolID})
	if err := repo.mustAffect(ctx, exec, b, exam.ErrQuestionNotFound, "updating question"); err != nil {
		return exam.Question{}, err
	}
	return q, nil
}

func (repo examRepository) DeleteQuestion(ctx context.Context, schoolID, examID, id string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(examID) || !validID(id) {
		return exam.ErrQuestionNotFound
	}
	b := psql.Delete(questionTable).Where(sq.Eq{"id": id, "exam_id": examID, "school_id": schoolID})
	return repo.mustAffect(ctx, exec, b, exam.ErrQuestionNotFound, "deleting question")
}

func (repo examRepository) HasSubmitted(ctx context.Context, schoolID, examID, studentID string, exec ...core.DBExecutor) (bool, error) {
	if !validID(schoolID) || !validID(examID) || !validID(studentID) {
		return false, nil
	}
	sel := psql.Select("1").From(responseTable).Where(sq.Eq{"school_id": schoolID, "exam_id": examID, "student_id": studentID})

	var found bool
	if err := repo.get(ctx, exec, &found, exists(sel)); err != nil {
		return false, errors.Wrap(err, "checking submission")
	}
	return found, nil
}

// CreateResponses inserts a whole submission in one statement.
func (repo examRepository) CreateResponses(ctx context.Context, responses []exam.Response, exec ...core.DBExecutor) error {
	if len(responses) == 0 {
		return nil
	}
	b := psql.Insert(responseTable).Columns(responseColumns...)
	for _, r := range responses {
		var sel null.Int
		if r.SelectedOption != nil {
			sel = null.IntFrom(*r.SelectedOption)
		}
		b = b.Values(newID(), r.SchoolID, r.ExamID, r.QuestionID, r.StudentID, sel, r.IsCorrect, r.CreatedAt.UTC())
	}
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return trapUniqueErr(err, exam.ErrAlreadySubmitted, "inserting responses")
	}
	return nil
}

func (repo examRepository) QueryResponses(ctx context.Context, schoolID, examID, studentID string, exec ...core.DBExecutor) ([]exam.Response, error) {
	if !validID(schoolID) || !validID(examID) || (studentID != "" && !validID(studentID)) {
		return []exam.Response{}, nil
	}
	conds := sq.Eq{"school_id": schoolID, "exam_id": examID}
	if studentID != "" {
		conds["student_id"] = studentID
	}
	b := psql.Select(responseColumns...).From(responseTable).Where(conds).OrderBy("student_id ASC", "question_id ASC")

	var rows []responseRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying responses")
	}
	responses := make([]exam.Response, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, r.unboil())
	}
	return responses, nil
}
