package pdfsvc

import (
	"fmt"

	"github.com/databayt/hogwarts-sub013/core"
)

// renderModern draws a coloured banner, a score card, the class statistics and the answer sheet.
func renderModern(doc *document, data ResultData) {
	// banner
	doc.SetFillColor(31, 78, 121)
	doc.Rect(0, 0, 210, 38, "F")
	doc.SetTextColor(255, 255, 255)
	doc.SetXY(15, 10)
	doc.SetFont("Helvetica", "B", 18)
	doc.text(0, 9, data.School.Name, "", "L", 1)
	doc.SetFont("Helvetica", "", 11)
	doc.text(0, 6, data.Metadata.Title, "", "L", 1)
	doc.SetY(45)

	// student and exam
	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "B", 12)
	doc.text(90, 7, data.Student.FullName(), "", "L", 0)
	doc.text(0, 7, data.Exam.Subject, "", "R", 1)
	doc.SetFont("Helvetica", "", 10)
	doc.text(90, 6, "Admission No: "+data.Student.AdmissionNo+"   Class: "+data.Student.ClassName, "", "L", 0)
	doc.text(0, 6, "Date: "+data.Exam.Date.Format(core.DateLayout), "", "R", 1)
	doc.Ln(6)

	// score card
	card := []struct{ label, value string }{
		{"Score", fmt.Sprintf("%d / %d", data.Result.Score, data.Result.MaxScore)},
		{"Percentage", percent(data.Result.Percentage)},
		{"Grade", data.Result.Grade},
		{"Rank", fmt.Sprintf("%d", data.Result.Rank)},
		{"Result", passLabel(data.Result.Passed)},
	}
	w := 180.0 / float64(len(card))
	doc.SetFillColor(230, 238, 246)
	doc.SetFont("Helvetica", "", 9)
	for _, c := range card {
		doc.CellFormat(w, 7, doc.tr(c.label), "", 0, "C", true, 0, "")
	}
	doc.Ln(7)
	doc.SetFont("Helvetica", "B", 14)
	for _, c := range card {
		doc.CellFormat(w, 11, doc.tr(c.value), "", 0, "C", true, 0, "")
	}
	doc.Ln(16)

	if an := data.Analytics; an != nil {
		doc.SetFont("Helvetica", "B", 11)
		doc.text(0, 7, "Class statistics", "B", "L", 1)
		doc.SetFont("Helvetica", "", 10)
		stats := [][2]string{
			{"Participants", fmt.Sprintf("%d", an.Participants)},
			{"Mean", percent(an.Mean)},
			{"Median", percent(an.Median)},
			{"Std. deviation", fmt.Sprintf("%.2f", an.StdDev)},
			{"Highest / Lowest", percent(an.Highest) + " / " + percent(an.Lowest)},
			{"Pass rate", percent(an.PassRate)},
		}
		for _, s := range stats {
			doc.text(50, 6, s[0], "", "L", 0)
			doc.text(0, 6, s[1], "", "L", 1)
		}
		doc.Ln(6)
	}

	rows := answerRows(data)
	if len(rows) == 0 {
		return
	}
	doc.SetFont("Helvetica", "B", 11)
	doc.text(0, 7, "Answers", "B", "L", 1)
	doc.Ln(2)

	widths := []float64{12, 88, 35, 35, 10}
	doc.SetFillColor(31, 78, 121)
	doc.SetTextColor(255, 255, 255)
	doc.SetFont("Helvetica", "B", 9)
	for i, h := range []string{"#", "Question", "Answer", "Correct", "Mark"} {
		doc.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "", 9)
	for n, row := range rows {
		fill := n%2 == 1
		doc.SetFillColor(242, 242, 242)
		for i, cell := range row {
			doc.CellFormat(widths[i], 6, doc.tr(truncate(cell, widths[i])), "1", 0, "L", fill, 0, "")
		}
		doc.Ln(-1)
	}
}

// renderMinimal is a black and white single column report.
func renderMinimal(doc *document, data ResultData) {
	doc.SetFont("Times", "B", 16)
	doc.text(0, 8, data.School.Name, "", "C", 1)
	doc.SetFont("Times", "", 12)
	doc.text(0, 6, data.Metadata.Title, "", "C", 1)
	doc.Ln(8)

	lines := [][2]string{
		{"Student", data.Student.FullName() + " (" + data.Student.AdmissionNo + ")"},
		{"Class", data.Student.ClassName},
		{"Exam", data.Exam.Title + " - " + data.Exam.Subject},
		{"Date", data.Exam.Date.Format(core.DateLayout)},
		{"Score", fmt.Sprintf("%d / %d (%s)", data.Result.Score, data.Result.MaxScore, percent(data.Result.Percentage))},
		{"Grade", data.Result.Grade},
		{"Rank", fmt.Sprintf("%d", data.Result.Rank)},
		{"Result", passLabel(data.Result.Passed)},
	}
	if an := data.Analytics; an != nil {
		lines = append(lines,
			[2]string{"Class mean", percent(an.Mean)},
			[2]string{"Pass rate", percent(an.PassRate)},
		)
	}
	for _, l := range lines {
		doc.SetFont("Times", "B", 11)
		doc.text(40, 7, l[0], "", "L", 0)
		doc.SetFont("Times", "", 11)
		doc.text(0, 7, l[1], "", "L", 1)
	}

	rows := answerRows(data)
	if len(rows) == 0 {
		return
	}
	doc.Ln(6)
	doc.SetFont("Times", "B", 11)
	doc.text(0, 7, "Answers", "T", "L", 1)
	doc.SetFont("Times", "", 10)
	for _, row := range rows {
		doc.MultiCell(0, 5, doc.tr(fmt.Sprintf("%s. %s\n    answered: %s    correct: %s    mark: %s", row[0], row[1], row[2], row[3], row[4])), "", "L", false)
		doc.Ln(1)
	}
}

// truncate shortens s to roughly fit a cell of width w mm at 9pt.
func truncate(s string, w float64) string {
	n := int(w / 1.9)
	runes := []rune(s)
	if len(runes) <= n || n < 4 {
		return s
	}
	return string(runes[:n-3]) + "..."
}
