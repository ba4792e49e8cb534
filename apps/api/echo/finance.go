package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core/finance"
	"github.com/databayt/hogwarts-sub013/core/student"
	exportsvc "github.com/databayt/hogwarts-sub013/services/export"
)

type financeApi struct {
	svc      *finance.Service
	students *student.Service
}

func registerFinanceAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, svc *finance.Service, students *student.Service) {
	api := financeApi{svc: svc, students: students}
	money := financeMiddleware()

	fg := g.Group("/finance", jwt, auth)

	feeg := fg.Group("/fees", staffMiddleware())
	feeg.GET("", api.queryFees)
	feeg.POST("", api.createFee, money)
	feeg.GET("/:id", api.retrieveFee)
	feeg.PUT("/:id", api.updateFee, money)
	feeg.DELETE("/:id", api.destroyFee, money)
	feeg.POST("/:id/invoices", api.generateInvoices, money)

	ig := fg.Group("/invoices")
	ig.GET("", api.queryInvoices)
	ig.POST("", api.createInvoice, money)
	ig.GET("/export", api.exportInvoices, money)
	ig.GET("/:id", api.retrieveInvoice)
	ig.POST("/:id/cancel", api.cancelInvoice, money)

	pg := fg.Group("/payments", money)
	pg.GET("", api.queryPayments)
	pg.POST("", api.recordPayment)
	pg.GET("/export", api.exportPayments)

	wg := fg.Group("/wallets/:student_id", studentObjectMiddleware(students, "student_id"))
	wg.GET("", api.retrieveWallet)
	wg.GET("/ledger", api.ledger)
	wg.POST("/top-up", api.topUp, money)

	fg.GET("/summary", api.summary, money)
}

// Fee structures

func (api *financeApi) createFee(ctx echo.Context) error {
	var data finance.NewFeeStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeStructure")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	fee, err := api.svc.CreateFee(ctx.Request().Context(), contextUser(ctx).SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating fee structure")
	}
	return created(ctx, fee)
}

func (api *financeApi) queryFees(ctx echo.Context) error {
	filter, err := bindFeeFilter(ctx)
	if err != nil {
		return err
	}
	fees, err := api.svc.QueryFees(ctx.Request().Context(), contextUser(ctx).SchoolID, filter)
	if err != nil {
		return errors.Wrap(err, "querying fee structures")
	}
	if fees == nil {
		fees = []finance.FeeStructure{}
	}
	return ok(ctx, fees)
}

func (api *financeApi) retrieveFee(ctx echo.Context) error {
	fee, err := api.svc.GetFee(ctx.Request().Context(), contextUser(ctx).SchoolID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee structure")
	}
	return ok(ctx, fee)
}

func (api *financeApi) updateFee(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	fee, err := api.svc.GetFee(reqCtx, contextUser(ctx).SchoolID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee structure")
	}

	var data finance.UpdateFeeStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeStructure")
	}
	if err := data.Validate(fee); err != nil {
		return err
	}

	fee, err = api.svc.UpdateFee(reqCtx, fee, data)
	if err != nil {
		return errors.Wrap(err, "updating fee structure")
	}
	return ok(ctx, fee)
}

func (api *financeApi) destroyFee(ctx echo.Context) error {
	if err := api.svc.DeleteFee(ctx.Request().Context(), contextUser(ctx).SchoolID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee structure")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// generateInvoices bills the fee to every active student of its class.
func (api *financeApi) generateInvoices(ctx echo.Context) error {
	invoices, err := api.svc.GenerateInvoices(ctx.Request().Context(), contextUser(ctx).SchoolID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "generating invoices")
	}
	return created(ctx, invoices)
}

// Invoices

func (api *financeApi) createInvoice(ctx echo.Context) error {
	var data finance.NewInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvoice")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	inv, err := api.svc.CreateInvoice(ctx.Request().Context(), contextUser(ctx).SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	return created(ctx, inv)
}

// queryInvoices lists the school's invoices to staff; guardians and students see their own.
func (api *financeApi) queryInvoices(ctx echo.Context) error {
	invoices, err := api.listInvoices(ctx)
	if err != nil {
		return err
	}
	return ok(ctx, invoices)
}

func (api *financeApi) exportInvoices(ctx echo.Context) error {
	invoices, err := api.listInvoices(ctx)
	if err != nil {
		return err
	}
	students, err := api.allStudents(ctx)
	if err != nil {
		return err
	}
	return sendExport(ctx, exportsvc.Table{
		Name:    "invoices",
		Headers: finance.InvoiceExportHeaders,
		Rows:    finance.InvoiceExportRows(invoices, students),
	})
}

func (api *financeApi) listInvoices(ctx echo.Context) ([]finance.Invoice, error) {
	filter, err := bindInvoiceFilter(ctx)
	if err != nil {
		return nil, err
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return nil, err
	}
	var found bool
	if filter.StudentIDs, found = scope.narrow(filter.StudentIDs); !found {
		return []finance.Invoice{}, nil
	}

	invoices, err := api.svc.QueryInvoices(reqCtx, usr.SchoolID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	if invoices == nil {
		invoices = []finance.Invoice{}
	}
	return invoices, nil
}

func (api *financeApi) retrieveInvoice(ctx echo.Context) error {
	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	inv, err := api.svc.GetInvoice(reqCtx, usr.SchoolID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding invoice")
	}
	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return err
	}
	if !scope.allows(inv.StudentID) {
		return errHttpForbidden
	}
	return ok(ctx, inv)
}

func (api *financeApi) cancelInvoice(ctx echo.Context) error {
	inv, err := api.svc.CancelInvoice(ctx.Request().Context(), contextUser(ctx).SchoolID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling invoice")
	}
	return ok(ctx, inv)
}

// Payments

func (api *financeApi) recordPayment(ctx echo.Context) error {
	var data finance.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	data.Method = strings.ToUpper(data.Method)
	if err := data.Validate(); err != nil {
		return err
	}

	usr := contextUser(ctx)
	p, err := api.svc.RecordPayment(ctx.Request().Context(), usr.SchoolID, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return created(ctx, p)
}

func (api *financeApi) queryPayments(ctx echo.Context) error {
	payments, err := api.listPayments(ctx)
	if err != nil {
		return err
	}
	return ok(ctx, payments)
}

func (api *financeApi) exportPayments(ctx echo.Context) error {
	payments, err := api.listPayments(ctx)
	if err != nil {
		return err
	}
	students, err := api.allStudents(ctx)
	if err != nil {
		return err
	}
	all, err := api.svc.QueryInvoices(ctx.Request().Context(), contextUser(ctx).SchoolID, &finance.InvoiceFilter{})
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	invoices := make(map[string]finance.Invoice, len(all))
	for _, inv := range all {
		invoices[inv.ID] = inv
	}
	return sendExport(ctx, exportsvc.Table{
		Name:    "payments",
		Headers: finance.PaymentExportHeaders,
		Rows:    finance.PaymentExportRows(payments, invoices, students),
	})
}

func (api *financeApi) listPayments(ctx echo.Context) ([]finance.Payment, error) {
	filter := &finance.PaymentFilter{
		InvoiceID: strings.TrimSpace(ctx.QueryParam("invoice_id")),
		StudentID: strings.TrimSpace(ctx.QueryParam("student_id")),
	}
	payments, err := api.svc.QueryPayments(ctx.Request().Context(), contextUser(ctx).SchoolID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []finance.Payment{}
	}
	return payments, nil
}

// Wallets

func (api *financeApi) retrieveWallet(ctx echo.Context) error {
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}
	w, err := api.svc.GetOrCreateWallet(ctx.Request().Context(), std.SchoolID, std.ID)
	if err != nil {
		return errors.Wrap(err, "getting wallet")
	}
	return ok(ctx, w)
}

func (api *financeApi) ledger(ctx echo.Context) error {
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}
	txs, err := api.svc.Ledger(ctx.Request().Context(), std.SchoolID, std.ID)
	if err != nil {
		return errors.Wrap(err, "querying wallet ledger")
	}
	if txs == nil {
		txs = []finance.WalletTransaction{}
	}
	return ok(ctx, txs)
}

func (api *financeApi) topUp(ctx echo.Context) error {
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}

	var data finance.TopUp
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TopUp")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	wt, err := api.svc.TopUp(ctx.Request().Context(), std.SchoolID, std.ID, contextUser(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "topping up wallet")
	}
	return created(ctx, wt)
}

// summary is the school's financial position, or a student's with ?student_id=.
func (api *financeApi) summary(ctx echo.Context) error {
	filter, err := bindInvoiceFilter(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), contextUser(ctx).SchoolID, filter)
	if err != nil {
		return errors.Wrap(err, "summarizing finances")
	}
	return ok(ctx, sum)
}

func (api *financeApi) allStudents(ctx echo.Context) (map[string]student.Student, error) {
	students, err := api.students.Query(ctx.Request().Context(), contextUser(ctx).SchoolID, &student.QueryFilter{}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return student.MapByID(students), nil
}
