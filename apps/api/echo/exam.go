package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
	exportsvc "github.com/databayt/hogwarts-sub013/services/export"
	pdfsvc "github.com/databayt/hogwarts-sub013/services/pdf"
)

var errExamNotFoundInCtx = errors.New("exam object not found in echo.Context")

type (
	examApi struct {
		svc      *exam.Service
		students *student.Service
		schools  *school.Service
	}

	// QuestionView is a question as shown to students: without the answer.
	QuestionView struct {
		ID       string   `json:"id"`
		ExamID   string   `json:"exam_id"`
		Text     string   `json:"text"`
		Options  []string `json:"options"`
		Marks    int      `json:"marks"`
		Position int      `json:"position"`
	}
)

func registerExamAPI(
	g *echo.Group,
	jwt, auth echo.MiddlewareFunc,
	svc *exam.Service,
	students *student.Service,
	schools *school.Service,
) {
	api := examApi{svc: svc, students: students, schools: schools}
	staff := staffMiddleware()

	eg := g.Group("/exams", jwt, auth)
	eg.GET("", api.query)
	eg.POST("", api.create, staff)

	dg := eg.Group("/:id", examObjectMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staff)
	dg.DELETE("", api.destroy, staff)
	dg.POST("/publish", api.publish, staff)

	dg.GET("/questions", api.queryQuestions)
	dg.POST("/questions", api.addQuestion, staff)
	dg.PUT("/questions/:question_id", api.updateQuestion, staff)
	dg.DELETE("/questions/:question_id", api.destroyQuestion, staff)

	dg.POST("/submit", api.submit)
	dg.GET("/results", api.results, staff)
	dg.GET("/results/export", api.exportResults, staff)
	dg.GET("/results/:student_id", api.studentResult, studentObjectMiddleware(students, "student_id"))
	dg.GET("/results/:student_id/pdf", api.resultPDF, studentObjectMiddleware(students, "student_id"))
	dg.GET("/analytics", api.analytics, staff)
}

// Exams

func (api *examApi) create(ctx echo.Context) error {
	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr := contextUser(ctx)
	e, err := api.svc.CreateExam(ctx.Request().Context(), usr.SchoolID, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return created(ctx, e)
}

// query lists exams; students and guardians only see published ones.
func (api *examApi) query(ctx echo.Context) error {
	filter := bindExamFilter(ctx)
	usr := contextUser(ctx)
	if !usr.IsStaff() {
		filter.Status = exam.StatusPublished
	}

	exams, err := api.svc.QueryExams(ctx.Request().Context(), usr.SchoolID, filter)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return ok(ctx, exams)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	return ok(ctx, e)
}

func (api *examApi) update(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	var data exam.UpdateExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}
	if err := data.Validate(e); err != nil {
		return err
	}

	e, err = api.svc.UpdateExam(ctx.Request().Context(), e, data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ok(ctx, e)
}

func (api *examApi) destroy(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteExam(ctx.Request().Context(), e); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) publish(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	e, err = api.svc.Publish(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "publishing exam")
	}
	return ok(ctx, e)
}

// Questions

func (api *examApi) queryQuestions(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	questions, err := api.svc.Questions(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []exam.Question{}
	}

	if usr := contextUser(ctx); usr.IsStaff() {
		return ok(ctx, questions)
	}
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, QuestionView{
			ID:       q.ID,
			ExamID:   q.ExamID,
			Text:     q.Text,
			Options:  q.Options,
			Marks:    q.Marks,
			Position: q.Position,
		})
	}
	return ok(ctx, views)
}

func (api *examApi) addQuestion(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	var data exam.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	q, err := api.svc.AddQuestion(ctx.Request().Context(), e, data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return created(ctx, q)
}

func (api *examApi) updateQuestion(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	q, err := api.svc.GetQuestion(reqCtx, e, ctx.Param("question_id"))
	if err != nil {
		return errors.Wrap(err, "finding question")
	}

	var data exam.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	q, err = api.svc.UpdateQuestion(reqCtx, e, q, data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ok(ctx, q)
}

func (api *examApi) destroyQuestion(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteQuestion(ctx.Request().Context(), e, ctx.Param("question_id")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Submissions & results

// submit records the answers of a student. Students submit their own; staff may submit on their behalf.
func (api *examApi) submit(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	var data exam.SubmitAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswers")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	if !usr.IsStaff() {
		if !usr.IsStudent() {
			return errHttpForbidden
		}
		scope, err := resolveStudentScope(reqCtx, api.students, usr)
		if err != nil {
			return err
		}
		if !scope.allows(data.StudentID) {
			return errHttpForbidden
		}
	}

	res, err := api.svc.SubmitAnswers(reqCtx, e, data)
	if err != nil {
		return errors.Wrap(err, "submitting answers")
	}
	return created(ctx, res)
}

func (api *examApi) results(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.Results(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "computing results")
	}
	if results == nil {
		results = []exam.StudentResult{}
	}
	return ok(ctx, results)
}

func (api *examApi) exportResults(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.Results(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "computing results")
	}
	return sendExport(ctx, exportsvc.Table{
		Name:    "results-" + slugify(e.Title),
		Headers: exam.ResultExportHeaders,
		Rows:    exam.ResultExportRows(results),
	})
}

func (api *examApi) studentResult(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}
	res, err := api.svc.StudentResult(ctx.Request().Context(), e, std.ID)
	if err != nil {
		return errors.Wrap(err, "finding student result")
	}
	return ok(ctx, res)
}

// resultPDF renders the result report of a student with the template picked by ?template= (modern by default).
// Staff reports include the class analytics.
func (api *examApi) resultPDF(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}

	tmpl := strings.ToLower(strings.TrimSpace(ctx.QueryParam("template")))
	if tmpl == "" {
		tmpl = pdfsvc.TemplateModern
	}
	if !core.ContainsString(pdfsvc.Templates(), tmpl) {
		return core.NewFieldError("template", "template must be one of "+strings.Join(pdfsvc.Templates(), ", "))
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	data := pdfsvc.ResultData{
		Student:  std,
		Exam:     e,
		Metadata: pdfsvc.Metadata{GeneratedAt: core.NowFunc(), GeneratedBy: usr.Name},
	}
	if data.School, err = api.schools.GetByID(reqCtx, usr.SchoolID); err != nil {
		return errors.Wrap(err, "finding school")
	}
	if data.Result, err = api.svc.StudentResult(reqCtx, e, std.ID); err != nil {
		return errors.Wrap(err, "finding student result")
	}
	if data.Questions, err = api.svc.Questions(reqCtx, e); err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if data.Responses, err = api.svc.StudentResponses(reqCtx, e, std.ID); err != nil {
		return errors.Wrap(err, "querying responses")
	}
	if usr.IsStaff() {
		an, err := api.svc.Analytics(reqCtx, e)
		if err != nil {
			return errors.Wrap(err, "computing analytics")
		}
		data.Analytics = &an
	}

	var buf bytes.Buffer
	if err := pdfsvc.Render(&buf, tmpl, data); err != nil {
		return errors.Wrap(err, "rendering result pdf")
	}
	name := fmt.Sprintf("%s-%s.pdf", slugify(e.Title), slugify(std.AdmissionNo))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return ctx.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func (api *examApi) analytics(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	an, err := api.svc.Analytics(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "computing analytics")
	}
	return ok(ctx, an)
}

// examObjectMiddleware loads the exam of path param "id" into the context.
// Draft exams are hidden from students and guardians.
func examObjectMiddleware(svc *exam.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr := contextUser(ctx)
			e, err := svc.GetExam(ctx.Request().Context(), usr.SchoolID, ctx.Param("id"))
			if err != nil {
				if errors.Is(err, exam.ErrNotFound) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding exam by ID")
			}
			if e.IsDraft() && !usr.IsStaff() {
				return errHttpNotFound
			}
			ctx.Set("exam", e)
			return next(ctx)
		}
	}
}

func ctxExam(ctx echo.Context) (exam.Exam, error) {
	e, found := ctx.Get("exam").(exam.Exam)
	if !found {
		return exam.Exam{}, errors.Wrap(errExamNotFoundInCtx, "retrieving exam from context")
	}
	return e, nil
}

// slugify keeps file names header safe, eg. "Potions Mid-Term" -> "potions-mid-term".
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
