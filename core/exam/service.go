package exam

import (
	"context"
	"errors"
	"sort"

	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("exam")
	ErrQuestionNotFound = core.NewNotFoundError("question")
	ErrNoSubmission     = core.NewNotFoundError("submission")

	errNotDraft           = errors.New("Only draft exams can be modified.")
	errNotPublished       = errors.New("Exam is not published.")
	errNoQuestions        = errors.New("An exam needs at least one question to be published.")
	errAlreadySubmitted   = errors.New("Answers have already been submitted for this exam.")
	errWrongClass         = errors.New("Student is not in this exam's class.")
	unknownQuestionText   = "question does not belong to this exam"
	optionOutOfRangeText  = "selected option does not exist"
	duplicateQuestionText = "question answered more than once"
	studentNotFoundText   = "student not found"

	// ErrAlreadySubmitted is also returned by the repository when a concurrent submission wins.
	ErrAlreadySubmitted = core.NewValidationError(errAlreadySubmitted)
)

var ResultExportHeaders = []string{"Rank", "Admission No", "Student", "Score", "Max Score", "Percentage", "Grade", "Passed"}

type (
	Repository interface {
		CreateExam(ctx context.Context, e Exam, exec ...core.DBExecutor) (Exam, error)
		GetExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Exam, error)
		QueryExams(ctx context.Context, schoolID string, filter *ExamFilter, exec ...core.DBExecutor) ([]Exam, error)
		UpdateExam(ctx context.Context, e Exam, exec ...core.DBExecutor) (Exam, error)
		DeleteExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		CountPublished(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error)

		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		GetQuestion(ctx context.Context, schoolID, examID, id string, exec ...core.DBExecutor) (Question, error)
		// QueryQuestions lists the questions of an exam by position.
		QueryQuestions(ctx context.Context, schoolID, examID string, exec ...core.DBExecutor) ([]Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		DeleteQuestion(ctx context.Context, schoolID, examID, id string, exec ...core.DBExecutor) error

		HasSubmitted(ctx context.Context, schoolID, examID, studentID string, exec ...core.DBExecutor) (bool, error)
		CreateResponses(ctx context.Context, responses []Response, exec ...core.DBExecutor) error
		// QueryResponses lists the responses of an exam (of one student if studentID != "").
		QueryResponses(ctx context.Context, schoolID, examID, studentID string, exec ...core.DBExecutor) ([]Response, error)
	}

	StudentQuerier interface {
		GetByID(ctx context.Context, schoolID, id string) (student.Student, error)
		Query(ctx context.Context, schoolID string, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error)
	}

	Service struct {
		repo     Repository
		students StudentQuerier
		tx       core.Transactor
		cache    core.Cache
		logger   core.Logger
	}
)

func NewService(repo Repository, students StudentQuerier, tx core.Transactor, cache core.Cache, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, students: students, tx: tx, cache: cache, logger: logger}
}

func analyticsCacheKey(schoolID, examID string) string {
	return core.CacheKey(schoolID, "exam", examID, "analytics")
}

func (svc *Service) revalidate(ctx context.Context, schoolID, examID string) {
	if err := svc.cache.Delete(ctx, analyticsCacheKey(schoolID, examID), core.DashboardCacheKey(schoolID)); err != nil {
		svc.logger.Warn("revalidating exam analytics cache", err, map[string]interface{}{"exam_id": examID})
	}
}

// Exams

func (svc *Service) CreateExam(ctx context.Context, schoolID, createdBy string, ne NewExam) (Exam, error) {
	date, _ := core.ParseDate(ne.Date) // validated
	passMark := DefaultPassMark
	if ne.PassMark != nil {
		passMark = *ne.PassMark
	}
	now := core.NowFunc()
	return svc.repo.CreateExam(ctx, Exam{
		SchoolID:  schoolID,
		Title:     ne.Title,
		Subject:   ne.Subject,
		ClassName: ne.ClassName,
		Date:      date,
		PassMark:  passMark,
		Status:    StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetExam(ctx context.Context, schoolID, id string) (Exam, error) {
	return svc.repo.GetExam(ctx, schoolID, id)
}

func (svc *Service) QueryExams(ctx context.Context, schoolID string, filter *ExamFilter) ([]Exam, error) {
	return svc.repo.QueryExams(ctx, schoolID, filter)
}

func (svc *Service) UpdateExam(ctx context.Context, e Exam, ue UpdateExam) (Exam, error) {
	if !e.IsDraft() {
		return Exam{}, core.NewValidationError(errNotDraft)
	}
	e.Title = ue.Title
	e.Subject = ue.Subject
	e.ClassName = ue.ClassName
	if ue.Date != "" {
		e.Date, _ = core.ParseDate(ue.Date) // validated
	}
	if ue.PassMark != nil {
		e.PassMark = *ue.PassMark
	}
	e.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateExam(ctx, e)
}

func (svc *Service) DeleteExam(ctx context.Context, e Exam) error {
	if !e.IsDraft() {
		return core.NewValidationError(errNotDraft)
	}
	if err := svc.repo.DeleteExam(ctx, e.SchoolID, e.ID); err != nil {
		return err
	}
	if err := svc.cache.DeletePrefix(ctx, core.CacheKey(e.SchoolID, "exam", e.ID)); err != nil {
		svc.logger.Warn("dropping exam cache", err, map[string]interface{}{"exam_id": e.ID})
	}
	return nil
}

// Publish opens a draft exam for submissions. Questions are frozen from then on.
func (svc *Service) Publish(ctx context.Context, e Exam) (Exam, error) {
	if !e.IsDraft() {
		return Exam{}, core.NewValidationError(errNotDraft)
	}
	questions, err := svc.repo.QueryQuestions(ctx, e.SchoolID, e.ID)
	if err != nil {
		return Exam{}, err
	}
	if len(questions) == 0 {
		return Exam{}, core.NewValidationError(errNoQuestions)
	}
	e.Status = StatusPublished
	e.UpdatedAt = core.NowFunc()
	e, err = svc.repo.UpdateExam(ctx, e)
	if err != nil {
		return Exam{}, err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, e.SchoolID)
	return e, nil
}

func (svc *Service) CountPublished(ctx context.Context, schoolID string) (int, error) {
	return svc.repo.CountPublished(ctx, schoolID)
}

// Questions

func (svc *Service) AddQuestion(ctx context.Context, e Exam, nq NewQuestion) (Question, error) {
	if !e.IsDraft() {
		return Question{}, core.NewValidationError(errNotDraft)
	}
	var q Question
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		questions, err := svc.repo.QueryQuestions(ctx, e.SchoolID, e.ID, exec)
		if err != nil {
			return err
		}
		position := 1
		for _, other := range questions {
			if other.Position >= position {
				position = other.Position + 1
			}
		}
		q, err = svc.repo.CreateQuestion(ctx, Question{
			SchoolID:      e.SchoolID,
			ExamID:        e.ID,
			Text:          nq.Text,
			Options:       nq.Options,
			CorrectOption: nq.CorrectOption,
			Marks:         nq.Marks,
			Position:      position,
		}, exec)
		return err
	})
	return q, err
}

func (svc *Service) GetQuestion(ctx context.Context, e Exam, id string) (Question, error) {
	return svc.repo.GetQuestion(ctx, e.SchoolID, e.ID, id)
}

func (svc *Service) Questions(ctx context.Context, e Exam) ([]Question, error) {
	return svc.repo.QueryQuestions(ctx, e.SchoolID, e.ID)
}

// UpdateQuestion replaces the content of a question, keeping its position.
func (svc *Service) UpdateQuestion(ctx context.Context, e Exam, q Question, nq NewQuestion) (Question, error) {
	if !e.IsDraft() {
		return Question{}, core.NewValidationError(errNotDraft)
	}
	q.Text = nq.Text
	q.Options = nq.Options
	q.CorrectOption = nq.CorrectOption
	q.Marks = nq.Marks
	return svc.repo.UpdateQuestion(ctx, q)
}

func (svc *Service) DeleteQuestion(ctx context.Context, e Exam, id string) error {
	if !e.IsDraft() {
		return core.NewValidationError(errNotDraft)
	}
	return svc.repo.DeleteQuestion(ctx, e.SchoolID, e.ID, id)
}

// Submissions

// SubmitAnswers records a student's answers to a published exam, once per student.
// Questions left out of the submission are recorded as omitted.
func (svc *Service) SubmitAnswers(ctx context.Context, e Exam, sa SubmitAnswers) (StudentResult, error) {
	if e.Status != StatusPublished {
		return StudentResult{}, core.NewValidationError(errNotPublished)
	}
	std, err := svc.students.GetByID(ctx, e.SchoolID, sa.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return StudentResult{}, core.NewFieldError("student_id", studentNotFoundText)
		}
		return StudentResult{}, err
	}
	if std.ClassName != e.ClassName {
		return StudentResult{}, core.NewFieldError("student_id", errWrongClass.Error())
	}

	questions, err := svc.repo.QueryQuestions(ctx, e.SchoolID, e.ID)
	if err != nil {
		return StudentResult{}, err
	}
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	selected := make(map[string]*int, len(sa.Answers))
	for _, a := range sa.Answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return StudentResult{}, core.NewFieldError("answers", unknownQuestionText)
		}
		if _, dup := selected[a.QuestionID]; dup {
			return StudentResult{}, core.NewFieldError("answers", duplicateQuestionText)
		}
		if a.SelectedOption != nil && *a.SelectedOption >= len(q.Options) {
			return StudentResult{}, core.NewFieldError("answers", optionOutOfRangeText)
		}
		selected[a.QuestionID] = a.SelectedOption
	}

	now := core.NowFunc()
	responses := make([]Response, 0, len(questions))
	for _, q := range questions {
		opt := selected[q.ID]
		responses = append(responses, Response{
			SchoolID:       e.SchoolID,
			ExamID:         e.ID,
			QuestionID:     q.ID,
			StudentID:      std.ID,
			SelectedOption: opt,
			IsCorrect:      opt != nil && *opt == q.CorrectOption,
			CreatedAt:      now,
		})
	}

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		submitted, err := svc.repo.HasSubmitted(ctx, e.SchoolID, e.ID, std.ID, exec)
		if err != nil {
			return err
		}
		if submitted {
			return ErrAlreadySubmitted
		}
		return svc.repo.CreateResponses(ctx, responses, exec)
	})
	if err != nil {
		return StudentResult{}, err
	}
	svc.revalidate(ctx, e.SchoolID, e.ID)

	res := scoreStudent(e, questions, responses)
	res.StudentName = std.FullName()
	res.AdmissionNo = std.AdmissionNo
	return res, nil
}

// Results

func scoreStudent(e Exam, questions []Question, responses []Response) StudentResult {
	marks := make(map[string]int, len(questions))
	var maxScore int
	for _, q := range questions {
		marks[q.ID] = q.Marks
		maxScore += q.Marks
	}

	var res StudentResult
	res.MaxScore = maxScore
	for _, r := range responses {
		res.StudentID = r.StudentID
		if r.SelectedOption != nil {
			res.Answered++
		}
		if r.IsCorrect {
			res.Correct++
			res.Score += marks[r.QuestionID]
		}
	}
	if maxScore > 0 {
		res.Percentage = Round2(float64(res.Score) / float64(maxScore) * 100)
	}
	res.Passed = res.Percentage >= float64(e.PassMark)
	res.Grade = Grade(res.Percentage)
	return res
}

// rankResults sorts by score (highest first) and assigns competition ranks (1, 2, 2, 4).
func rankResults(results []StudentResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].StudentName < results[j].StudentName
	})
	for i := range results {
		if i > 0 && results[i].Score == results[i-1].Score {
			results[i].Rank = results[i-1].Rank
		} else {
			results[i].Rank = i + 1
		}
	}
}

func groupByStudent(responses []Response) (map[string][]Response, []string) {
	grouped := make(map[string][]Response)
	var ids []string
	for _, r := range responses {
		if _, ok := grouped[r.StudentID]; !ok {
			ids = append(ids, r.StudentID)
		}
		grouped[r.StudentID] = append(grouped[r.StudentID], r)
	}
	return grouped, ids
}

// Results scores and ranks every participant of an exam.
func (svc *Service) Results(ctx context.Context, e Exam) ([]StudentResult, error) {
	questions, err := svc.repo.QueryQuestions(ctx, e.SchoolID, e.ID)
	if err != nil {
		return nil, err
	}
	responses, err := svc.repo.QueryResponses(ctx, e.SchoolID, e.ID, "")
	if err != nil {
		return nil, err
	}
	grouped, ids := groupByStudent(responses)
	if len(ids) == 0 {
		return []StudentResult{}, nil
	}

	students, err := svc.students.Query(ctx, e.SchoolID, &student.QueryFilter{IDs: ids}, nil)
	if err != nil {
		return nil, err
	}
	byID := student.MapByID(students)

	results := make([]StudentResult, 0, len(ids))
	for _, id := range ids {
		res := scoreStudent(e, questions, grouped[id])
		std := byID[id]
		res.StudentName = std.FullName()
		res.AdmissionNo = std.AdmissionNo
		results = append(results, res)
	}
	rankResults(results)
	return results, nil
}

// StudentResult returns the ranked result of one participant.
func (svc *Service) StudentResult(ctx context.Context, e Exam, studentID string) (StudentResult, error) {
	results, err := svc.Results(ctx, e)
	if err != nil {
		return StudentResult{}, err
	}
	for _, res := range results {
		if res.StudentID == studentID {
			return res, nil
		}
	}
	return StudentResult{}, ErrNoSubmission
}

func (svc *Service) StudentResponses(ctx context.Context, e Exam, studentID string) ([]Response, error) {
	return svc.repo.QueryResponses(ctx, e.SchoolID, e.ID, studentID)
}

// Analytics computes (or returns the cached) descriptive statistics and item analysis of an exam.
func (svc *Service) Analytics(ctx context.Context, e Exam) (Analytics, error) {
	key := analyticsCacheKey(e.SchoolID, e.ID)
	var cached Analytics
	if err := svc.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, core.ErrCacheMiss) {
		svc.logger.Warn("reading exam analytics cache", err)
	}

	questions, err := svc.repo.QueryQuestions(ctx, e.SchoolID, e.ID)
	if err != nil {
		return Analytics{}, err
	}
	responses, err := svc.repo.QueryResponses(ctx, e.SchoolID, e.ID, "")
	if err != nil {
		return Analytics{}, err
	}
	an := computeAnalytics(e, questions, responses)
	an.GeneratedAt = core.NowFunc()

	if err := svc.cache.SetJSON(ctx, key, an, core.Conf.Redis.CacheTTL); err != nil {
		svc.logger.Warn("writing exam analytics cache", err)
	}
	return an, nil
}

func computeAnalytics(e Exam, questions []Question, responses []Response) Analytics {
	grouped, ids := groupByStudent(responses)

	an := Analytics{ExamID: e.ID, Participants: len(ids), Items: make([]ItemAnalysis, 0, len(questions))}
	for _, q := range questions {
		an.MaxScore += q.Marks
	}

	totals := make(map[string]float64, len(ids))
	percentages := make([]float64, 0, len(ids))
	var passed int
	for _, id := range ids {
		res := scoreStudent(e, questions, grouped[id])
		totals[id] = float64(res.Score)
		percentages = append(percentages, res.Percentage)
		if res.Passed {
			passed++
		}
	}

	if len(percentages) > 0 {
		an.Mean = Round2(Mean(percentages))
		an.Median = Round2(Median(percentages))
		an.StdDev = Round2(StdDev(percentages))
		an.Highest, an.Lowest = percentages[0], percentages[0]
		for _, p := range percentages[1:] {
			if p > an.Highest {
				an.Highest = p
			}
			if p < an.Lowest {
				an.Lowest = p
			}
		}
		an.PassRate = Round2(float64(passed) / float64(len(percentages)) * 100)
	}

	byQuestion := make(map[string][]ItemResponse, len(questions))
	for _, r := range responses {
		sel := -1
		if r.SelectedOption != nil {
			sel = *r.SelectedOption
		}
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], ItemResponse{
			StudentID:  r.StudentID,
			Selected:   sel,
			Correct:    r.IsCorrect,
			TotalScore: totals[r.StudentID],
		})
	}
	for _, q := range questions {
		an.Items = append(an.Items, AnalyzeItem(q, byQuestion[q.ID]))
	}
	return an
}

// ResultExportRows flattens ranked results into rows matching ResultExportHeaders.
func ResultExportRows(results []StudentResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		passed := "no"
		if r.Passed {
			passed = "yes"
		}
		rows = append(rows, []string{
			itoa(r.Rank), r.AdmissionNo, r.StudentName, itoa(r.Score), itoa(r.MaxScore),
			ftoa(r.Percentage), r.Grade, passed,
		})
	}
	return rows
}
