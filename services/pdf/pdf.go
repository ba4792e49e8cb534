package pdfsvc

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
)

const (
	TemplateModern  = "modern"
	TemplateMinimal = "minimal"
)

var ErrUnknownTemplate = errors.New("unknown report template")

type (
	// ResultData is shared by every template.
	ResultData struct {
		School    school.School
		Student   student.Student
		Exam      exam.Exam
		Result    exam.StudentResult
		Questions []exam.Question
		Responses []exam.Response // of Student
		Analytics *exam.Analytics // class statistics; optional
		Metadata  Metadata
	}

	Metadata struct {
		GeneratedAt time.Time
		GeneratedBy string
		Title       string // defaults to "<exam title> - Result"
	}

	renderFunc func(doc *document, data ResultData)

	// document bundles the pdf with its UTF-8 -> cp1252 translator.
	document struct {
		*fpdf.Fpdf
		tr func(string) string
	}
)

var templates = map[string]renderFunc{
	TemplateModern:  renderModern,
	TemplateMinimal: renderMinimal,
}

func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render writes the result report of data.Student using the named template.
func Render(w io.Writer, template string, data ResultData) error {
	render, ok := templates[template]
	if !ok {
		return errors.Wrap(ErrUnknownTemplate, template)
	}
	if data.Metadata.GeneratedAt.IsZero() {
		data.Metadata.GeneratedAt = core.NowFunc()
	}
	if data.Metadata.Title == "" {
		data.Metadata.Title = data.Exam.Title + " - Result"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	doc := &document{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	doc.SetTitle(data.Metadata.Title, true)
	doc.SetAuthor(data.School.Name, true)
	doc.SetCreator(core.Conf.AppName, true)
	doc.SetCreationDate(data.Metadata.GeneratedAt)
	doc.SetMargins(15, 15, 15)
	doc.SetAutoPageBreak(true, 20)
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont("Helvetica", "I", 8)
		doc.SetTextColor(128, 128, 128)
		footer := fmt.Sprintf("Generated %s", data.Metadata.GeneratedAt.Format("2006-01-02 15:04 MST"))
		if data.Metadata.GeneratedBy != "" {
			footer += " by " + data.Metadata.GeneratedBy
		}
		doc.CellFormat(0, 10, doc.tr(footer), "", 0, "L", false, 0, "")
		doc.CellFormat(0, 10, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "R", false, 0, "")
	})
	doc.AddPage()

	render(doc, data)

	if err := doc.Error(); err != nil {
		return errors.Wrap(err, "building pdf")
	}
	return errors.Wrap(doc.Output(w), "writing pdf")
}

func (doc *document) text(w, h float64, s, border, align string, ln int) {
	doc.CellFormat(w, h, doc.tr(s), border, ln, align, false, 0, "")
}

// answerRows lists "Q1", the selected and the correct option of every question.
func answerRows(data ResultData) [][]string {
	selected := make(map[string]*int, len(data.Responses))
	for _, r := range data.Responses {
		selected[r.QuestionID] = r.SelectedOption
	}

	rows := make([][]string, 0, len(data.Questions))
	for i, q := range data.Questions {
		answer, mark := "-", "0"
		if sel := selected[q.ID]; sel != nil && *sel < len(q.Options) {
			answer = q.Options[*sel]
			if *sel == q.CorrectOption {
				mark = fmt.Sprintf("%d", q.Marks)
			}
		}
		rows = append(rows, []string{fmt.Sprintf("Q%d", i+1), q.Text, answer, q.Options[q.CorrectOption], mark})
	}
	return rows
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func passLabel(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
