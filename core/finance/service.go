package finance

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
)

var (
	// errors
	ErrFeeNotFound     = core.NewNotFoundError("fee structure")
	ErrInvoiceNotFound = core.NewNotFoundError("invoice")
	ErrWalletNotFound  = core.NewNotFoundError("wallet")

	errFeeInactive         = errors.New("Fee structure is not active.")
	errInvoiceCancelled    = errors.New("Invoice has been cancelled.")
	errInvoicePaid         = errors.New("Invoice is already paid.")
	errCancelWithPayments  = errors.New("Only invoices without payments can be cancelled.")
	errAmountExceeds       = errors.New("Amount exceeds the outstanding balance.")
	errInsufficientBalance = errors.New("Insufficient wallet balance.")
	errCurrencyMismatch    = errors.New("Wallet currency does not match the invoice currency.")
	errStudentInactive     = errors.New("Student is not active.")
	studentNotFoundText    = "student not found"

	ErrAlreadyInvoiced = core.NewValidationError(errors.New("Student has already been invoiced for this fee."))
)

var (
	InvoiceExportHeaders = []string{"Number", "Admission No", "Student", "Description", "Amount", "Paid", "Outstanding", "Currency", "Status", "Due Date"}
	PaymentExportHeaders = []string{"Paid At", "Invoice", "Admission No", "Student", "Amount", "Currency", "Method", "Reference"}
)

type (
	Repository interface {
		CreateFee(ctx context.Context, fee FeeStructure, exec ...core.DBExecutor) (FeeStructure, error)
		GetFee(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (FeeStructure, error)
		// GetFeeForUpdate locks the fee structure row until the end of the transaction.
		GetFeeForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (FeeStructure, error)
		QueryFees(ctx context.Context, schoolID string, filter *FeeFilter, exec ...core.DBExecutor) ([]FeeStructure, error)
		UpdateFee(ctx context.Context, fee FeeStructure, exec ...core.DBExecutor) (FeeStructure, error)
		DeleteFee(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error

		// NextInvoiceNumber returns the next sequential number of a school, eg. "INV-000042".
		NextInvoiceNumber(ctx context.Context, schoolID string, exec ...core.DBExecutor) (string, error)
		CreateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		GetInvoice(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Invoice, error)
		// GetInvoiceForUpdate locks the invoice row until the end of the transaction.
		GetInvoiceForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Invoice, error)
		QueryInvoices(ctx context.Context, schoolID string, filter *InvoiceFilter, exec ...core.DBExecutor) ([]Invoice, error)
		UpdateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)

		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, schoolID string, filter *PaymentFilter, exec ...core.DBExecutor) ([]Payment, error)

		CreateWallet(ctx context.Context, w Wallet, exec ...core.DBExecutor) (Wallet, error)
		// GetWalletForUpdate locks the student's wallet row until the end of the transaction.
		GetWalletForUpdate(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) (Wallet, error)
		GetWallet(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) (Wallet, error)
		UpdateWalletBalance(ctx context.Context, w Wallet, exec ...core.DBExecutor) (Wallet, error)
		CreateWalletTransaction(ctx context.Context, wt WalletTransaction, exec ...core.DBExecutor) (WalletTransaction, error)
		QueryWalletTransactions(ctx context.Context, schoolID, walletID string, exec ...core.DBExecutor) ([]WalletTransaction, error)

		// Summarize totals the non-cancelled invoices of a school; overdue is relative to `today`.
		Summarize(ctx context.Context, schoolID string, filter *InvoiceFilter, today time.Time, exec ...core.DBExecutor) (Summary, error)
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
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	students StudentQuerier,
	tx core.Transactor,
	cache core.Cache,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, students: students, tx: tx, cache: cache, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) getStudent(ctx context.Context, schoolID, studentID string) (student.Student, error) {
	std, err := svc.students.GetByID(ctx, schoolID, studentID)
	if err != nil {
		if core.IsNotFound(err) {
			return student.Student{}, core.NewFieldError("student_id", studentNotFoundText)
		}
		return student.Student{}, err
	}
	return std, nil
}

// Fees

func (svc *Service) CreateFee(ctx context.Context, schoolID string, nf NewFeeStructure) (FeeStructure, error) {
	due, _ := core.ParseDate(nf.DueDate) // validated
	now := core.NowFunc()
	return svc.repo.CreateFee(ctx, FeeStructure{
		SchoolID:  schoolID,
		Name:      nf.Name,
		ClassName: nf.ClassName,
		Term:      nf.Term,
		Amount:    nf.Amount,
		Currency:  nf.Currency,
		DueDate:   due,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetFee(ctx context.Context, schoolID, id string) (FeeStructure, error) {
	return svc.repo.GetFee(ctx, schoolID, id)
}

func (svc *Service) QueryFees(ctx context.Context, schoolID string, filter *FeeFilter) ([]FeeStructure, error) {
	return svc.repo.QueryFees(ctx, schoolID, filter)
}

// UpdateFee changes a fee structure. Invoices already generated keep their amount.
func (svc *Service) UpdateFee(ctx context.Context, fee FeeStructure, uf UpdateFeeStructure) (FeeStructure, error) {
	fee.Name = uf.Name
	fee.Term = uf.Term
	fee.Amount = uf.Amount
	if uf.DueDate != "" {
		fee.DueDate, _ = core.ParseDate(uf.DueDate) // validated
	}
	if uf.IsActive != nil {
		fee.IsActive = *uf.IsActive
	}
	fee.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateFee(ctx, fee)
}

func (svc *Service) DeleteFee(ctx context.Context, schoolID, id string) error {
	return svc.repo.DeleteFee(ctx, schoolID, id)
}

// Invoices

// GenerateInvoices bills every active student of the fee's class, skipping students already invoiced for it.
func (svc *Service) GenerateInvoices(ctx context.Context, schoolID, feeID string) ([]Invoice, error) {
	fee, err := svc.repo.GetFee(ctx, schoolID, feeID)
	if err != nil {
		return nil, err
	}
	if !fee.IsActive {
		return nil, core.NewValidationError(errFeeInactive)
	}

	active := true
	students, err := svc.students.Query(ctx, schoolID, &student.QueryFilter{ClassName: fee.ClassName, IsActive: &active}, nil)
	if err != nil {
		return nil, err
	}

	invoices := make([]Invoice, 0, len(students))
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		// concurrent runs for the same fee wait here, then see each other's invoices
		if _, err := svc.repo.GetFeeForUpdate(ctx, schoolID, fee.ID, exec); err != nil {
			return err
		}
		existing, err := svc.repo.QueryInvoices(ctx, schoolID, &InvoiceFilter{FeeStructureID: fee.ID}, exec)
		if err != nil {
			return err
		}
		invoiced := make(map[string]bool, len(existing))
		for _, inv := range existing {
			if inv.Status != InvoiceCancelled {
				invoiced[inv.StudentID] = true
			}
		}

		now := core.NowFunc()
		for _, std := range students {
			if invoiced[std.ID] {
				continue
			}
			number, err := svc.repo.NextInvoiceNumber(ctx, schoolID, exec)
			if err != nil {
				return err
			}
			description := fee.Name
			if fee.Term != "" {
				description += " (" + fee.Term + ")"
			}
			inv, err := svc.repo.CreateInvoice(ctx, Invoice{
				SchoolID:       schoolID,
				StudentID:      std.ID,
				FeeStructureID: fee.ID,
				Number:         number,
				Description:    description,
				Amount:         fee.Amount,
				Currency:       fee.Currency,
				Status:         InvoiceUnpaid,
				DueDate:        fee.DueDate,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, exec)
			if err != nil {
				return err
			}
			invoices = append(invoices, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(invoices) > 0 {
		core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	}
	return invoices, nil
}

func (svc *Service) CreateInvoice(ctx context.Context, schoolID string, ni NewInvoice) (Invoice, error) {
	std, err := svc.getStudent(ctx, schoolID, ni.StudentID)
	if err != nil {
		return Invoice{}, err
	}
	if !std.IsActive {
		return Invoice{}, core.NewFieldError("student_id", errStudentInactive.Error())
	}

	due, _ := core.ParseDate(ni.DueDate) // validated
	var inv Invoice
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		number, err := svc.repo.NextInvoiceNumber(ctx, schoolID, exec)
		if err != nil {
			return err
		}
		now := core.NowFunc()
		inv, err = svc.repo.CreateInvoice(ctx, Invoice{
			SchoolID:    schoolID,
			StudentID:   std.ID,
			Number:      number,
			Description: ni.Description,
			Amount:      ni.Amount,
			Currency:    ni.Currency,
			Status:      InvoiceUnpaid,
			DueDate:     due,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, exec)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	return inv, nil
}

func (svc *Service) GetInvoice(ctx context.Context, schoolID, id string) (Invoice, error) {
	return svc.repo.GetInvoice(ctx, schoolID, id)
}

func (svc *Service) QueryInvoices(ctx context.Context, schoolID string, filter *InvoiceFilter) ([]Invoice, error) {
	return svc.repo.QueryInvoices(ctx, schoolID, filter)
}

// CancelInvoice voids an invoice that has not received any payment.
func (svc *Service) CancelInvoice(ctx context.Context, schoolID, id string) (Invoice, error) {
	var inv Invoice
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		inv, err = svc.repo.GetInvoiceForUpdate(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return core.NewValidationError(errInvoiceCancelled)
		}
		if inv.AmountPaid > 0 {
			return core.NewValidationError(errCancelWithPayments)
		}
		inv.Status = InvoiceCancelled
		inv.UpdatedAt = core.NowFunc()
		inv, err = svc.repo.UpdateInvoice(ctx, inv, exec)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	return inv, nil
}

// Payments

// RecordPayment applies a payment to an invoice. The payment row, the invoice update and (for WALLET payments)
// the wallet debit with its ledger entry are written in one transaction.
func (svc *Service) RecordPayment(ctx context.Context, schoolID, recordedBy string, np NewPayment) (Payment, error) {
	var (
		payment Payment
		inv     Invoice
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		inv, err = svc.repo.GetInvoiceForUpdate(ctx, schoolID, np.InvoiceID, exec)
		if err != nil {
			if errors.Is(err, ErrInvoiceNotFound) {
				return core.NewFieldError("invoice_id", ErrInvoiceNotFound.Error())
			}
			return err
		}
		switch {
		case inv.Status == InvoiceCancelled:
			return core.NewValidationError(errInvoiceCancelled)
		case inv.Status == InvoicePaid:
			return core.NewValidationError(errInvoicePaid)
		case np.Amount > inv.Outstanding():
			return core.NewFieldError("amount", errAmountExceeds.Error())
		}

		now := core.NowFunc()
		if np.Method == MethodWallet {
			if err := svc.debitWallet(ctx, exec, inv, np, recordedBy, now); err != nil {
				return err
			}
		}

		payment, err = svc.repo.CreatePayment(ctx, Payment{
			SchoolID:   schoolID,
			InvoiceID:  inv.ID,
			StudentID:  inv.StudentID,
			Amount:     np.Amount,
			Method:     np.Method,
			Reference:  np.Reference,
			RecordedBy: recordedBy,
			PaidAt:     now,
		}, exec)
		if err != nil {
			return err
		}

		inv.applyPayment(np.Amount)
		inv.UpdatedAt = now
		inv, err = svc.repo.UpdateInvoice(ctx, inv, exec)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	svc.sendReceipt(ctx, inv, payment)
	return payment, nil
}

func (svc *Service) debitWallet(ctx context.Context, exec core.DBExecutor, inv Invoice, np NewPayment, by string, now time.Time) error {
	w, err := svc.repo.GetWalletForUpdate(ctx, inv.SchoolID, inv.StudentID, exec)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return core.NewFieldError("method", errInsufficientBalance.Error())
		}
		return err
	}
	if w.Currency != inv.Currency {
		return core.NewFieldError("method", errCurrencyMismatch.Error())
	}
	if w.Balance < np.Amount {
		return core.NewFieldError("amount", errInsufficientBalance.Error())
	}

	w.Balance -= np.Amount
	w.UpdatedAt = now
	if _, err := svc.repo.UpdateWalletBalance(ctx, w, exec); err != nil {
		return err
	}
	_, err = svc.repo.CreateWalletTransaction(ctx, WalletTransaction{
		SchoolID:     inv.SchoolID,
		WalletID:     w.ID,
		Type:         TxDebit,
		Amount:       np.Amount,
		BalanceAfter: w.Balance,
		Reference:    inv.Number,
		Description:  "Payment of invoice " + inv.Number,
		CreatedBy:    by,
		CreatedAt:    now,
	}, exec)
	return err
}

// sendReceipt emails the student's guardian. Failures are logged by the email service.
func (svc *Service) sendReceipt(ctx context.Context, inv Invoice, p Payment) {
	std, err := svc.students.GetByID(ctx, inv.SchoolID, inv.StudentID)
	if err != nil {
		svc.logger.Warn("finding student for payment receipt", err)
		return
	}
	if std.GuardianEmail == "" {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: std.GuardianName, Address: std.GuardianEmail}},
		Subject:      fmt.Sprintf("Payment receipt for invoice %s", inv.Number),
		TemplateName: "payment_receipt",
		TemplateData: map[string]string{
			"GuardianName":  std.GuardianName,
			"StudentName":   std.FullName(),
			"Amount":        FormatMoney(p.Amount, inv.Currency),
			"InvoiceNumber": inv.Number,
			"Outstanding":   FormatMoney(inv.Outstanding(), inv.Currency),
			"Reference":     p.Reference,
		},
	})
}

func (svc *Service) QueryPayments(ctx context.Context, schoolID string, filter *PaymentFilter) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, schoolID, filter)
}

// Wallets

// GetOrCreateWallet returns the student's wallet, opening an empty one on first use.
func (svc *Service) GetOrCreateWallet(ctx context.Context, schoolID, studentID string) (Wallet, error) {
	if _, err := svc.getStudent(ctx, schoolID, studentID); err != nil {
		return Wallet{}, err
	}
	var w Wallet
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		w, err = svc.getOrCreateWallet(ctx, exec, schoolID, studentID)
		return err
	})
	return w, err
}

func (svc *Service) getOrCreateWallet(ctx context.Context, exec core.DBExecutor, schoolID, studentID string) (Wallet, error) {
	w, err := svc.repo.GetWalletForUpdate(ctx, schoolID, studentID, exec)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, err
	}
	now := core.NowFunc()
	return svc.repo.CreateWallet(ctx, Wallet{
		SchoolID:  schoolID,
		StudentID: studentID,
		Currency:  core.Conf.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}, exec)
}

// TopUp credits the student's wallet. The balance update and the ledger entry are written in one transaction.
func (svc *Service) TopUp(ctx context.Context, schoolID, studentID, createdBy string, tu TopUp) (WalletTransaction, error) {
	if _, err := svc.getStudent(ctx, schoolID, studentID); err != nil {
		return WalletTransaction{}, err
	}

	var wt WalletTransaction
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		w, err := svc.getOrCreateWallet(ctx, exec, schoolID, studentID)
		if err != nil {
			return err
		}

		now := core.NowFunc()
		w.Balance += tu.Amount
		w.UpdatedAt = now
		if _, err = svc.repo.UpdateWalletBalance(ctx, w, exec); err != nil {
			return err
		}
		description := tu.Description
		if description == "" {
			description = "Wallet top-up"
		}
		wt, err = svc.repo.CreateWalletTransaction(ctx, WalletTransaction{
			SchoolID:     schoolID,
			WalletID:     w.ID,
			Type:         TxCredit,
			Amount:       tu.Amount,
			BalanceAfter: w.Balance,
			Reference:    tu.Reference,
			Description:  description,
			CreatedBy:    createdBy,
			CreatedAt:    now,
		}, exec)
		return err
	})
	return wt, err
}

// Ledger lists the wallet transactions of a student, oldest first.
func (svc *Service) Ledger(ctx context.Context, schoolID, studentID string) ([]WalletTransaction, error) {
	w, err := svc.repo.GetWallet(ctx, schoolID, studentID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return []WalletTransaction{}, nil
		}
		return nil, err
	}
	return svc.repo.QueryWalletTransactions(ctx, schoolID, w.ID)
}

func (svc *Service) Summary(ctx context.Context, schoolID string, filter *InvoiceFilter) (Summary, error) {
	sum, err := svc.repo.Summarize(ctx, schoolID, filter, core.Today())
	if err != nil {
		return Summary{}, err
	}
	if sum.Currency == "" {
		sum.Currency = core.Conf.Currency
	}
	return sum, nil
}

// InvoiceExportRows flattens invoices into rows matching InvoiceExportHeaders.
func InvoiceExportRows(invoices []Invoice, students map[string]student.Student) [][]string {
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		std := students[inv.StudentID]
		rows = append(rows, []string{
			inv.Number, std.AdmissionNo, std.FullName(), inv.Description,
			FormatMoney(inv.Amount, ""), FormatMoney(inv.AmountPaid, ""), FormatMoney(inv.Outstanding(), ""),
			inv.Currency, inv.Status, inv.DueDate.Format(core.DateLayout),
		})
	}
	return rows
}

// PaymentExportRows flattens payments into rows matching PaymentExportHeaders.
func PaymentExportRows(payments []Payment, invoices map[string]Invoice, students map[string]student.Student) [][]string {
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		inv := invoices[p.InvoiceID]
		std := students[p.StudentID]
		rows = append(rows, []string{
			p.PaidAt.Format("2006-01-02 15:04"), inv.Number, std.AdmissionNo, std.FullName(),
			FormatMoney(p.Amount, ""), inv.Currency, p.Method, p.Reference,
		})
	}
	return rows
}
