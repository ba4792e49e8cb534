package exam

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/databayt/hogwarts-sub013/core"
)

// Exam statuses
const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
)

const (
	MinOptions      = 2
	MaxOptions      = 6
	DefaultPassMark = 50
)

var (
	correctOptionTag  = "correctoption"
	correctOptionText = "correct_option must be the index of one of the options"
)

func init() {
	core.Validate.RegisterStructValidation(questionStructValidation, NewQuestion{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, correctOptionTag, correctOptionText)
}

type Exam struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	ClassName string    `json:"class_name"`
	Date      time.Time `json:"date"`
	PassMark  int       `json:"pass_mark"` // percent
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Exam) IsDraft() bool { return e.Status == StatusDraft }

type NewExam struct {
	Title     string `json:"title" validate:"required,max=200"`
	Subject   string `json:"subject" validate:"required,max=100"`
	ClassName string `json:"class_name" validate:"required,max=50"`
	Date      string `json:"date" validate:"required,date"`
	PassMark  *int   `json:"pass_mark" validate:"omitempty,min=0,max=100"`
}

func (ne *NewExam) Validate() error {
	ne.Title = core.CleanString(ne.Title)
	ne.Subject = core.CleanString(ne.Subject)
	ne.ClassName = core.CleanString(ne.ClassName)
	ne.Date = core.CleanString(ne.Date)
	return core.Validate.Struct(ne)
}

type UpdateExam struct {
	Title     string `json:"title" validate:"omitempty,max=200"`
	Subject   string `json:"subject" validate:"omitempty,max=100"`
	ClassName string `json:"class_name" validate:"omitempty,max=50"`
	Date      string `json:"date" validate:"omitempty,date"`
	PassMark  *int   `json:"pass_mark" validate:"omitempty,min=0,max=100"`
}

func (ue *UpdateExam) Validate(orig Exam) error {
	keep := func(val *string, origVal string) {
		if v := core.CleanString(*val); v != "" {
			*val = v
		} else {
			*val = origVal
		}
	}
	keep(&ue.Title, orig.Title)
	keep(&ue.Subject, orig.Subject)
	keep(&ue.ClassName, orig.ClassName)
	ue.Date = core.CleanString(ue.Date)
	return core.Validate.Struct(ue)
}

type ExamFilter struct {
	ClassName string
	Subject   string
	Status    string
}

type Question struct {
	ID            string   `json:"id"`
	SchoolID      string   `json:"school_id"`
	ExamID        string   `json:"exam_id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Marks         int      `json:"marks"`
	Position      int      `json:"position"`
}

type NewQuestion struct {
	Text          string   `json:"text" validate:"required,max=2000"`
	Options       []string `json:"options" validate:"required,min=2,max=6,dive,required,max=500"`
	CorrectOption int      `json:"correct_option" validate:"min=0"`
	Marks         int      `json:"marks" validate:"omitempty,min=1,max=100"`
}

func (nq *NewQuestion) Validate() error {
	nq.Text = core.CleanString(nq.Text)
	for i := range nq.Options {
		nq.Options[i] = core.CleanString(nq.Options[i])
	}
	if nq.Marks == 0 {
		nq.Marks = 1
	}
	return core.Validate.Struct(nq)
}

// questionStructValidation checks that the correct option points into the options.
func questionStructValidation(sl validator.StructLevel) {
	nq := sl.Current().Interface().(NewQuestion)
	if len(nq.Options) > 0 && nq.CorrectOption >= len(nq.Options) {
		sl.ReportError(nq.CorrectOption, "correct_option", "CorrectOption", correctOptionTag, "")
	}
}

// Answer is a student's choice for one question; a nil SelectedOption is an omission.
type Answer struct {
	QuestionID     string `json:"question_id" validate:"required,uuid"`
	SelectedOption *int   `json:"selected_option" validate:"omitempty,min=0"`
}

type SubmitAnswers struct {
	StudentID string   `json:"student_id" validate:"required,uuid"`
	Answers   []Answer `json:"answers" validate:"required,min=1,dive"`
}

func (sa *SubmitAnswers) Validate() error {
	sa.StudentID = core.CleanString(sa.StudentID)
	for i := range sa.Answers {
		sa.Answers[i].QuestionID = core.CleanString(sa.Answers[i].QuestionID)
	}
	return core.Validate.Struct(sa)
}

type Response struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	ExamID         string    `json:"exam_id"`
	QuestionID     string    `json:"question_id"`
	StudentID      string    `json:"student_id"`
	SelectedOption *int      `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	CreatedAt      time.Time `json:"created_at"`
}

type StudentResult struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	AdmissionNo string  `json:"admission_no"`
	Score       int     `json:"score"`
	MaxScore    int     `json:"max_score"`
	Percentage  float64 `json:"percentage"`
	Passed      bool    `json:"passed"`
	Grade       string  `json:"grade"`
	Rank        int     `json:"rank"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
}

type Analytics struct {
	ExamID       string         `json:"exam_id"`
	Participants int            `json:"participants"`
	MaxScore     int            `json:"max_score"`
	Mean         float64        `json:"mean"`
	Median       float64        `json:"median"`
	StdDev       float64        `json:"std_dev"`
	Highest      float64        `json:"highest"`
	Lowest       float64        `json:"lowest"`
	PassRate     float64        `json:"pass_rate"`
	Items        []ItemAnalysis `json:"items"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Grade maps a percentage to a letter grade.
func Grade(percentage float64) string {
	switch {
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 50:
		return "D"
	case percentage >= 40:
		return "E"
	default:
		return "F"
	}
}
