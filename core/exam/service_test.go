package exam_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/student"
	inmemdb "github.com/databayt/hogwarts-sub013/storage/database/inmem"
	"github.com/databayt/hogwarts-sub013/testutil"
)

var today = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func opt(i int) *int { return &i }

type fixture struct {
	env       *testutil.Env
	schoolID  string
	exam      exam.Exam
	questions []exam.Question
	students  map[string]student.Student
}

func setup(t *testing.T) *fixture {
	t.Helper()
	testutil.FreezeTime(t, today)
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Hogwarts", "HOG")
	ctx := context.Background()

	f := &fixture{env: env, schoolID: sch.ID, students: map[string]student.Student{}}
	for _, s := range []struct{ no, first, last, class string }{
		{"H001", "Harry", "Potter", "Year 1"},
		{"H002", "Hermione", "Granger", "Year 1"},
		{"H003", "Ron", "Weasley", "Year 1"},
		{"H004", "Neville", "Longbottom", "Year 1"},
		{"H005", "Draco", "Malfoy", "Year 2"},
	} {
		f.students[s.first] = testutil.CreateStudent(t, env, sch.ID, s.no, s.first, s.last, s.class)
	}

	ne := exam.NewExam{Title: " Charms midterm ", Subject: "Charms", ClassName: "Year 1", Date: "2024-03-10"}
	require.NoError(t, ne.Validate())
	e, err := env.Exams.CreateExam(ctx, sch.ID, "teacher-1", ne)
	require.NoError(t, err)

	for _, nq := range []exam.NewQuestion{
		{Text: "Levitation charm?", Options: []string{"Lumos", "Wingardium Leviosa"}, CorrectOption: 1, Marks: 2},
		{Text: "Unlocking charm?", Options: []string{"Alohomora", "Accio", "Nox"}, CorrectOption: 0},
		{Text: "Summoning charm?", Options: []string{"Expelliarmus", "Reparo", "Accio"}, CorrectOption: 2},
	} {
		require.NoError(t, nq.Validate())
		q, err := env.Exams.AddQuestion(ctx, e, nq)
		require.NoError(t, err)
		f.questions = append(f.questions, q)
	}
	f.exam = e
	return f
}

func (f *fixture) publish(t *testing.T) {
	t.Helper()
	e, err := f.env.Exams.Publish(context.Background(), f.exam)
	require.NoError(t, err)
	f.exam = e
}

func (f *fixture) submit(t *testing.T, name string, selected ...*int) (exam.StudentResult, error) {
	t.Helper()
	sa := exam.SubmitAnswers{StudentID: f.students[name].ID}
	for i, sel := range selected {
		sa.Answers = append(sa.Answers, exam.Answer{QuestionID: f.questions[i].ID, SelectedOption: sel})
	}
	require.NoError(t, sa.Validate())
	return f.env.Exams.SubmitAnswers(context.Background(), f.exam, sa)
}

func TestCreateExam(t *testing.T) {
	f := setup(t)

	assert.Equal(t, "Charms midterm", f.exam.Title)
	assert.Equal(t, exam.StatusDraft, f.exam.Status)
	assert.Equal(t, exam.DefaultPassMark, f.exam.PassMark)
	assert.Equal(t, "teacher-1", f.exam.CreatedBy)

	for i, q := range f.questions {
		assert.Equal(t, i+1, q.Position)
	}
	assert.Equal(t, 1, f.questions[1].Marks, "marks default to 1")

	t.Run("correct option must exist", func(t *testing.T) {
		nq := exam.NewQuestion{Text: "?", Options: []string{"a", "b"}, CorrectOption: 2}
		err := nq.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "correct_option")

		nq = exam.NewQuestion{Text: "?", Options: []string{"a"}}
		assert.Error(t, nq.Validate())
	})

	t.Run("pass mark bounds", func(t *testing.T) {
		ne := exam.NewExam{Title: "x", Subject: "y", ClassName: "z", Date: "2024-03-10", PassMark: opt(101)}
		assert.Error(t, ne.Validate())
		ne.PassMark = opt(0)
		assert.NoError(t, ne.Validate())
	})
}

func TestQuestions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.env.Exams.DeleteQuestion(ctx, f.exam, f.questions[1].ID))
	nq := exam.NewQuestion{Text: "Disarming charm?", Options: []string{"Expelliarmus", "Lumos"}, CorrectOption: 0}
	require.NoError(t, nq.Validate())
	added, err := f.env.Exams.AddQuestion(ctx, f.exam, nq)
	require.NoError(t, err)
	assert.Equal(t, 4, added.Position, "positions are not reused")

	nq = exam.NewQuestion{Text: "Light charm?", Options: []string{"Lumos", "Nox"}, CorrectOption: 0, Marks: 3}
	require.NoError(t, nq.Validate())
	updated, err := f.env.Exams.UpdateQuestion(ctx, f.exam, f.questions[0], nq)
	require.NoError(t, err)
	assert.Equal(t, "Light charm?", updated.Text)
	assert.Equal(t, 1, updated.Position)

	questions, err := f.env.Exams.Questions(ctx, f.exam)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{questions[0].Position, questions[1].Position, questions[2].Position})

	_, err = f.env.Exams.GetQuestion(ctx, f.exam, f.questions[1].ID)
	assert.True(t, core.IsNotFound(err))
}

func TestPublish(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ne := exam.NewExam{Title: "Empty", Subject: "Potions", ClassName: "Year 1", Date: "2024-03-11"}
	require.NoError(t, ne.Validate())
	empty, err := f.env.Exams.CreateExam(ctx, f.schoolID, "teacher-1", ne)
	require.NoError(t, err)
	_, err = f.env.Exams.Publish(ctx, empty)
	assert.EqualError(t, err, "An exam needs at least one question to be published.")

	_, err = f.submit(t, "Harry", opt(1))
	assert.EqualError(t, err, "Exam is not published.")

	f.publish(t)
	assert.Equal(t, exam.StatusPublished, f.exam.Status)

	count, err := f.env.Exams.CountPublished(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	nq := exam.NewQuestion{Text: "Late question", Options: []string{"a", "b"}}
	require.NoError(t, nq.Validate())
	_, err = f.env.Exams.AddQuestion(ctx, f.exam, nq)
	assert.EqualError(t, err, "Only draft exams can be modified.")
	_, err = f.env.Exams.UpdateQuestion(ctx, f.exam, f.questions[0], nq)
	assert.EqualError(t, err, "Only draft exams can be modified.")
	assert.EqualError(t, f.env.Exams.DeleteQuestion(ctx, f.exam, f.questions[0].ID), "Only draft exams can be modified.")
	assert.EqualError(t, f.env.Exams.DeleteExam(ctx, f.exam), "Only draft exams can be modified.")
	_, err = f.env.Exams.Publish(ctx, f.exam)
	assert.EqualError(t, err, "Only draft exams can be modified.")

	ue := exam.UpdateExam{Title: "Renamed"}
	require.NoError(t, ue.Validate(f.exam))
	_, err = f.env.Exams.UpdateExam(ctx, f.exam, ue)
	assert.EqualError(t, err, "Only draft exams can be modified.")
}

func TestSubmitAnswers(t *testing.T) {
	f := setup(t)
	f.publish(t)

	res, err := f.submit(t, "Harry", opt(1), opt(1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 4, res.MaxScore)
	assert.Equal(t, 50.0, res.Percentage)
	assert.True(t, res.Passed)
	assert.Equal(t, "D", res.Grade)
	assert.Equal(t, 2, res.Answered)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, "Harry Potter", res.StudentName)

	responses, err := inmemdb.NewExamRepository(f.env.DB).QueryResponses(context.Background(), f.schoolID, f.exam.ID, f.students["Harry"].ID)
	require.NoError(t, err)
	require.Len(t, responses, 3, "omitted questions are recorded")
	for _, r := range responses {
		if r.QuestionID == f.questions[2].ID {
			assert.Nil(t, r.SelectedOption)
			assert.False(t, r.IsCorrect)
		}
	}

	_, err = f.submit(t, "Harry", opt(1))
	assert.EqualError(t, err, "Answers have already been submitted for this exam.")

	tests := []struct {
		name    string
		student string
		answers []exam.Answer
		field   string
	}{
		{"wrong class", "Draco", []exam.Answer{{QuestionID: f.questions[0].ID, SelectedOption: opt(1)}}, "student_id"},
		{"unknown question", "Ron", []exam.Answer{{QuestionID: "0b6b1c52-1d3c-4a55-9f3e-5f1d6a2f7c11"}}, "answers"},
		{"duplicate question", "Ron", []exam.Answer{{QuestionID: f.questions[0].ID}, {QuestionID: f.questions[0].ID}}, "answers"},
		{"option out of range", "Ron", []exam.Answer{{QuestionID: f.questions[0].ID, SelectedOption: opt(2)}}, "answers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sa := exam.SubmitAnswers{StudentID: f.students[tc.student].ID, Answers: tc.answers}
			require.NoError(t, sa.Validate())
			_, err := f.env.Exams.SubmitAnswers(context.Background(), f.exam, sa)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Fields[0].Field)
		})
	}
}

func TestResultsAndAnalytics(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.publish(t)

	_, err := f.submit(t, "Harry", opt(1), opt(1))
	require.NoError(t, err)
	_, err = f.submit(t, "Hermione", opt(1), opt(0), opt(2))
	require.NoError(t, err)
	_, err = f.submit(t, "Ron", opt(0), opt(0), nil)
	require.NoError(t, err)

	results, err := f.env.Exams.Results(ctx, f.exam)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Hermione Granger", results[0].StudentName)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "A", results[0].Grade)
	assert.Equal(t, "Harry Potter", results[1].StudentName)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, "Ron Weasley", results[2].StudentName)
	assert.Equal(t, 25.0, results[2].Percentage)
	assert.False(t, results[2].Passed)

	res, err := f.env.Exams.StudentResult(ctx, f.exam, f.students["Ron"].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rank)
	_, err = f.env.Exams.StudentResult(ctx, f.exam, f.students["Neville"].ID)
	assert.ErrorIs(t, err, exam.ErrNoSubmission)

	rows := exam.ResultExportRows(results)
	assert.Equal(t, []string{"1", "H002", "Hermione Granger", "4", "4", "100.00", "A", "yes"}, rows[0])

	an, err := f.env.Exams.Analytics(ctx, f.exam)
	require.NoError(t, err)
	assert.Equal(t, 3, an.Participants)
	assert.Equal(t, 4, an.MaxScore)
	assert.Equal(t, 58.33, an.Mean)
	assert.Equal(t, 50.0, an.Median)
	assert.Equal(t, 100.0, an.Highest)
	assert.Equal(t, 25.0, an.Lowest)
	assert.Equal(t, 66.67, an.PassRate)
	require.Len(t, an.Items, 3)
	assert.InDelta(t, 0.6667, an.Items[0].Difficulty, 0.0001)
	assert.Equal(t, exam.RecommendNeedsReview, an.Items[0].Quality.Recommendation)

	key := core.CacheKey(f.schoolID, "exam", f.exam.ID, "analytics")
	assert.True(t, f.env.Redis.Exists(key), "analytics are cached")

	_, err = f.submit(t, "Neville", opt(1), opt(0), opt(2))
	require.NoError(t, err)
	assert.False(t, f.env.Redis.Exists(key), "a submission drops the cached analytics")

	an, err = f.env.Exams.Analytics(ctx, f.exam)
	require.NoError(t, err)
	assert.Equal(t, 4, an.Participants)
}

func TestDeleteExam(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	key := core.CacheKey(f.schoolID, "exam", f.exam.ID, "analytics")
	require.NoError(t, f.env.Cache.SetJSON(ctx, key, exam.Analytics{ExamID: f.exam.ID}, time.Minute))

	require.NoError(t, f.env.Exams.DeleteExam(ctx, f.exam))
	assert.False(t, f.env.Redis.Exists(key))

	_, err := f.env.Exams.GetExam(ctx, f.schoolID, f.exam.ID)
	assert.ErrorIs(t, err, exam.ErrNotFound)
	_, err = f.env.Exams.GetQuestion(ctx, f.exam, f.questions[0].ID)
	assert.True(t, core.IsNotFound(err))
}
