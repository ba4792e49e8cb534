package pdfsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
)

func intPtr(i int) *int { return &i }

func resultData() ResultData {
	questions := []exam.Question{
		{ID: "q1", Text: "Which house values bravery?", Options: []string{"Gryffindor", "Slytherin"}, CorrectOption: 0, Marks: 1},
		{ID: "q2", Text: "Who teaches Potions?", Options: []string{"Snape", "Sprout", "Flitwick"}, CorrectOption: 0, Marks: 2},
	}
	return ResultData{
		School:    school.School{Name: "Hogwarts School of Witchcraft & Wizardry"},
		Student:   student.Student{FirstName: "Hermione", LastName: "Granger", AdmissionNo: "HG-002", ClassName: "Year 1"},
		Exam:      exam.Exam{Title: "Midterm", Subject: "Général", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		Result:    exam.StudentResult{Score: 1, MaxScore: 3, Percentage: 33.33, Grade: "F", Rank: 2},
		Questions: questions,
		Responses: []exam.Response{
			{QuestionID: "q1", SelectedOption: intPtr(0), IsCorrect: true},
			{QuestionID: "q2", SelectedOption: nil},
		},
		Analytics: &exam.Analytics{Participants: 2, Mean: 50, Median: 50, PassRate: 50},
		Metadata:  Metadata{GeneratedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), GeneratedBy: "Minerva"},
	}
}

func TestRender(t *testing.T) {
	for _, tmpl := range Templates() {
		t.Run(tmpl, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, tmpl, resultData()))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
			assert.Greater(t, buf.Len(), 500)
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, "fancy", resultData())
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	assert.Zero(t, buf.Len())
}

func TestAnswerRows(t *testing.T) {
	rows := answerRows(resultData())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Q1", "Which house values bravery?", "Gryffindor", "Gryffindor", "1"}, rows[0])
	assert.Equal(t, []string{"Q2", "Who teaches Potions?", "-", "Snape", "0"}, rows[1])
}
