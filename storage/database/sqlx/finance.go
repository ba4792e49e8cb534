package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/finance"
)

const (
	feeTable      = "fee_structure"
	invoiceTable  = "invoice"
	paymentTable  = "payment"
	walletTable   = "wallet"
	walletTxTable = "wallet_transaction"
	counterTable  = "invoice_counter"
)

var (
	feeColumns     = []string{"id", "school_id", "name", "class_name", "term", "amount", "currency", "due_date", "is_active", "created_at", "updated_at"}
	invoiceColumns = []string{
		"id", "school_id", "student_id", "fee_structure_id", "number", "description", "amount", "amount_paid",
		"currency", "status", "due_date", "created_at", "updated_at",
	}
	paymentColumns  = []string{"id", "school_id", "invoice_id", "student_id", "amount", "method", "reference", "recorded_by", "paid_at"}
	walletColumns   = []string{"id", "school_id", "student_id", "balance", "currency", "created_at", "updated_at"}
	walletTxColumns = []string{
		"id", "school_id", "wallet_id", "type", "amount", "balance_after", "reference", "description", "created_by", "created_at",
	}
)

type feeRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	Name      string    `db:"name"`
	ClassName string    `db:"class_name"`
	Term      string    `db:"term"`
	Amount    int64     `db:"amount"`
	Currency  string    `db:"currency"`
	DueDate   time.Time `db:"due_date"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r feeRow) unboil() finance.FeeStructure {
	return finance.FeeStructure{
		ID:        r.ID,
		SchoolID:  r.SchoolID,
		Name:      r.Name,
		ClassName: r.ClassName,
		Term:      r.Term,
		Amount:    r.Amount,
		Currency:  r.Currency,
		DueDate:   core.TruncateDay(r.DueDate),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type invoiceRow struct {
	ID             string      `db:"id"`
	SchoolID       string      `db:"school_id"`
	StudentID      string      `db:"student_id"`
	FeeStructureID null.String `db:"fee_structure_id"`
	Number         string      `db:"number"`
	Description    string      `db:"description"`
	Amount         int64       `db:"amount"`
	AmountPaid     int64       `db:"amount_paid"`
	Currency       string      `db:"currency"`
	Status         string      `db:"status"`
	DueDate        time.Time   `db:"due_date"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r invoiceRow) unboil() finance.Invoice {
	return finance.Invoice{
		ID:             r.ID,
		SchoolID:       r.SchoolID,
		StudentID:      r.StudentID,
		FeeStructureID: r.FeeStructureID.String,
		Number:         r.Number,
		Description:    r.Description,
		Amount:         r.Amount,
		AmountPaid:     r.AmountPaid,
		Currency:       r.Currency,
		Status:         r.Status,
		DueDate:        core.TruncateDay(r.DueDate),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type paymentRow struct {
	ID         string    `db:"id"`
	SchoolID   string    `db:"school_id"`
	InvoiceID  string    `db:"invoice_id"`
	StudentID  string    `db:"student_id"`
	Amount     int64     `db:"amount"`
	Method     string    `db:"method"`
	Reference  string    `db:"reference"`
	RecordedBy string    `db:"recorded_by"`
	PaidAt     time.Time `db:"paid_at"`
}

func (r paymentRow) unboil() finance.Payment {
	return finance.Payment{
		ID:         r.ID,
		SchoolID:   r.SchoolID,
		InvoiceID:  r.InvoiceID,
		StudentID:  r.StudentID,
		Amount:     r.Amount,
		Method:     r.Method,
		Reference:  r.Reference,
		RecordedBy: r.RecordedBy,
		PaidAt:     r.PaidAt.UTC(),
	}
}

type walletRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	StudentID string    `db:"student_id"`
	Balance   int64     `db:"balance"`
	Currency  string    `db:"currency"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r walletRow) unboil() finance.Wallet {
	return finance.Wallet{
		ID:        r.ID,
		SchoolID:  r.SchoolID,
		StudentID: r.StudentID,
		Balance:   r.Balance,
		Currency:  r.Currency,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type walletTxRow struct {
	ID           string    `db:"id"`
	SchoolID     string    `db:"school_id"`
	WalletID     string    `db:"wallet_id"`
	Type         string    `db:"type"`
	Amount       int64     `db:"amount"`
	BalanceAfter int64     `db:"balance_after"`
	Reference    string    `db:"reference"`
	Description  string    `db:"description"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r walletTxRow) unboil() finance.WalletTransaction {
	return finance.WalletTransaction{
		ID:           r.ID,
		SchoolID:     r.SchoolID,
		WalletID:     r.WalletID,
		Type:         r.Type,
		Amount:       r.Amount,
		BalanceAfter: r.BalanceAfter,
		Reference:    r.Reference,
		Description:  r.Description,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type financeRepository struct {
	repository
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(exec core.DBExecutor) *financeRepository {
	return &financeRepository{repository{exec: exec}}
}

func (repo financeRepository) CreateFee(ctx context.Context, fee finance.FeeStructure, exec ...core.DBExecutor) (finance.FeeStructure, error) {
	fee.ID = newID()
	b := psql.Insert(feeTable).Columns(feeColumns...).Values(
		fee.ID, fee.SchoolID, fee.Name, fee.ClassName, fee.Term, fee.Amount, fee.Currency, fee.DueDate,
		fee.IsActive, fee.CreatedAt.UTC(), fee.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return finance.FeeStructure{}, errors.Wrap(err, "inserting fee structure")
	}
	return fee, nil
}

func (repo financeRepository) getFee(ctx context.Context, schoolID, id string, forUpdate bool, exec []core.DBExecutor) (finance.FeeStructure, error) {
	if !validID(schoolID) || !validID(id) {
		return finance.FeeStructure{}, finance.ErrFeeNotFound
	}
	var row feeRow
	b := psql.Select(feeColumns...).From(feeTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return finance.FeeStructure{}, trapNoRowsErr(err, finance.ErrFeeNotFound, "finding fee structure")
	}
	return row.unboil(), nil
}

func (repo financeRepository) GetFee(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (finance.FeeStructure, error) {
	return repo.getFee(ctx, schoolID, id, false, exec)
}

func (repo financeRepository) GetFeeForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (finance.FeeStructure, error) {
	return repo.getFee(ctx, schoolID, id, true, exec)
}

func (repo financeRepository) QueryFees(ctx context.Context, schoolID string, filter *finance.FeeFilter, exec ...core.DBExecutor) ([]finance.FeeStructure, error) {
	if !validID(schoolID) {
		return []finance.FeeStructure{}, nil
	}
	b := psql.Select(feeColumns...).From(feeTable).Where("school_id = ?", schoolID).OrderBy("due_date ASC")
	if filter != nil {
		if filter.ClassName != "" {
			b = b.Where("class_name = ?", filter.ClassName)
		}
		if filter.IsActive != nil {
			b = b.Where("is_active = ?", *filter.IsActive)
		}
	}

	var rows []feeRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	fees := make([]finance.FeeStructure, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, r.unboil())
	}
	return fees, nil
}

func (repo financeRepository) UpdateFee(ctx context.Context, fee finance.FeeStructure, exec ...core.DBExecutor) (finance.FeeStructure, error) {
	if !validID(fee.ID) || !validID(fee.SchoolID) {
		return finance.FeeStructure{}, finance.ErrFeeNotFound
	}
	b := psql.Update(feeTable).SetMap(map[string]interface{}{
		"name":       fee.Name,
		"term":       fee.Term,
		"amount":     fee.Amount,
		"due_date":   fee.DueDate,
		"is_active":  fee.IsActive,
		"updated_at": fee.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": fee.ID, "school_id": fee.SchoolID})
	if err := repo.mustAffect(ctx, exec, b, finance.ErrFeeNotFound, "updating fee structure"); err != nil {
		return finance.FeeStructure{}, err
	}
	return fee, nil
}

func (repo financeRepository) DeleteFee(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(id) {
		return finance.ErrFeeNotFound
	}
	b := psql.Delete(feeTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	return repo.mustAffect(ctx, exec, b, finance.ErrFeeNotFound, "deleting fee structure")
}

// NextInvoiceNumber bumps the school's counter row, which stays locked until the transaction ends.
func (repo financeRepository) NextInvoiceNumber(ctx context.Context, schoolID string, exec ...core.DBExecutor) (string, error) {
	b := psql.Insert(counterTable).Columns("school_id", "last_value").Values(schoolID, 1).
		Suffix("ON CONFLICT (school_id) DO UPDATE SET last_value = " + counterTable + ".last_value + 1 RETURNING last_value")

	var n int64
	if err := repo.get(ctx, exec, &n, b); err != nil {
		return "", errors.Wrap(err, "generating invoice number")
	}
	return finance.InvoiceNumber(n), nil
}

func (repo financeRepository) CreateInvoice(ctx context.Context, inv finance.Invoice, exec ...core.DBExecutor) (finance.Invoice, error) {
	inv.ID = newID()
	b := psql.Insert(invoiceTable).Columns(invoiceColumns...).Values(
		inv.ID, inv.SchoolID, inv.StudentID, nullString(inv.FeeStructureID), inv.Number, inv.Description, inv.Amount,
		inv.AmountPaid, inv.Currency, inv.Status, inv.DueDate, inv.CreatedAt.UTC(), inv.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return finance.Invoice{}, trapUniqueErr(err, finance.ErrAlreadyInvoiced, "inserting invoice")
	}
	return inv, nil
}

func (repo financeRepository) getInvoice(ctx context.Context, schoolID, id string, forUpdate bool, exec []core.DBExecutor) (finance.Invoice, error) {
	if !validID(schoolID) || !validID(id) {
		return finance.Invoice{}, finance.ErrInvoiceNotFound
	}
	b := psql.Select(invoiceColumns...).From(invoiceTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}

	var row invoiceRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return finance.Invoice{}, trapNoRowsErr(err, finance.ErrInvoiceNotFound, "finding invoice")
	}
	return row.unboil(), nil
}

func (repo financeRepository) GetInvoice(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (finance.Invoice, error) {
	return repo.getInvoice(ctx, schoolID, id, false, exec)
}

func (repo financeRepository) GetInvoiceForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (finance.Invoice, error) {
	return repo.getInvoice(ctx, schoolID, id, true, exec)
}

// overdueCond mirrors Invoice.IsOverdue.
func overdueCond(today time.Time) sq.Sqlizer {
	return sq.Expr("(status <> ? AND amount > amount_paid AND due_date < ?)", finance.InvoiceCancelled, core.TruncateDay(today))
}

func invoiceConds(schoolID string, filter *finance.InvoiceFilter, today time.Time) sq.And {
	conds := sq.And{sq.Eq{"school_id": schoolID}}
	if filter == nil {
		return conds
	}
	if len(filter.StudentIDs) > 0 {
		conds = append(conds, sq.Eq{"student_id": validIDs(filter.StudentIDs)})
	}
	if filter.FeeStructureID != "" {
		conds = append(conds, sq.Expr("fee_structure_id::text = ?", filter.FeeStructureID))
	}
	if filter.Status != "" {
		conds = append(conds, sq.Eq{"status": filter.Status})
	}
	if filter.Overdue {
		conds = append(conds, overdueCond(today))
	}
	return conds
}

func (repo financeRepository) QueryInvoices(ctx context.Context, schoolID string, filter *finance.InvoiceFilter, exec ...core.DBExecutor) ([]finance.Invoice, error) {
	if !validID(schoolID) {
		return []finance.Invoice{}, nil
	}
	b := psql.Select(invoiceColumns...).From(invoiceTable).
		Where(invoiceConds(schoolID, filter, core.Today())).
		OrderBy("number DESC")

	var rows []invoiceRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	invoices := make([]finance.Invoice, 0, len(rows))
	for _, r := range rows {
		invoices = append(invoices, r.unboil())
	}
	return invoices, nil
}

func (repo financeRepository) UpdateInvoice(ctx context.Context, inv finance.Invoice, exec ...core.DBExecutor) (finance.Invoice, error) {
	if !validID(inv.ID) || !validID(inv.SchoolID) {
		return finance.Invoice{}, finance.ErrInvoiceNotFound
	}
	b := psql.Update(invoiceTable).SetMap(map[string]interface{}{
		"description": inv.Description,
		"amount":      inv.Amount,
		"amount_paid": inv.AmountPaid,
		"status":      inv.Status,
		"due_date":    inv.DueDate,
		"updated_at":  inv.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": inv.ID, "school_id": inv.SchoolID})
	if err := repo.mustAffect(ctx, exec, b, finance.ErrInvoiceNotFound, "updating invoice"); err != nil {
		return finance.Invoice{}, err
	}
	return inv, nil
}

func (repo financeRepository) CreatePayment(ctx context.Context, p finance.Payment, exec ...core.DBExecutor) (finance.Payment, error) {
	p.ID = newID()
	b := psql.Insert(paymentTable).Columns(paymentColumns...).Values(
		p.ID, p.SchoolID, p.InvoiceID, p.StudentID, p.Amount, p.Method, p.Reference, p.RecordedBy, p.PaidAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return finance.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo financeRepository) QueryPayments(ctx context.Context, schoolID string, filter *finance.PaymentFilter, exec ...core.DBExecutor) ([]finance.Payment, error) {
	if !validID(schoolID) {
		return []finance.Payment{}, nil
	}
	b := psql.Select(paymentColumns...).From(paymentTable).Where("school_id = ?", schoolID).OrderBy("paid_at DESC")
	if filter != nil {
		if filter.InvoiceID != "" {
			b = b.Where("invoice_id::text = ?", filter.InvoiceID)
		}
		if filter.StudentID != "" {
			b = b.Where("student_id::text = ?", filter.StudentID)
		}
	}

	var rows []paymentRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]finance.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.unboil())
	}
	return payments, nil
}

// CreateWallet returns the student's existing wallet instead of failing on the unique student_id.
func (repo financeRepository) CreateWallet(ctx context.Context, w finance.Wallet, exec ...core.DBExecutor) (finance.Wallet, error) {
	b := psql.Insert(walletTable).Columns(walletColumns...).Values(
		newID(), w.SchoolID, w.StudentID, w.Balance, w.Currency, w.CreatedAt.UTC(), w.UpdatedAt.UTC(),
	).Suffix("ON CONFLICT (student_id) DO UPDATE SET student_id = EXCLUDED.student_id RETURNING " + joinColumns(walletColumns))

	var row walletRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return finance.Wallet{}, errors.Wrap(err, "inserting wallet")
	}
	return row.unboil(), nil
}

func (repo financeRepository) getWallet(ctx context.Context, schoolID, studentID string, forUpdate bool, exec []core.DBExecutor) (finance.Wallet, error) {
	if !validID(schoolID) || !validID(studentID) {
		return finance.Wallet{}, finance.ErrWalletNotFound
	}
	b := psql.Select(walletColumns...).From(walletTable).Where(sq.Eq{"school_id": schoolID, "student_id": studentID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}

	var row walletRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return finance.Wallet{}, trapNoRowsErr(err, finance.ErrWalletNotFound, "finding wallet")
	}
	return row.unboil(), nil
}

func (repo financeRepository) GetWallet(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) (finance.Wallet, error) {
	return repo.getWallet(ctx, schoolID, studentID, false, exec)
}

func (repo financeRepository) GetWalletForUpdate(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) (finance.Wallet, error) {
	return repo.getWallet(ctx, schoolID, studentID, true, exec)
}

func (repo financeRepository) UpdateWalletBalance(ctx context.Context, w finance.Wallet, exec ...core.DBExecutor) (finance.Wallet, error) {
	if !validID(w.ID) || !validID(w.SchoolID) {
		return finance.Wallet{}, finance.ErrWalletNotFound
	}
	b := psql.Update(walletTable).
		Set("balance", w.Balance).
		Set("updated_at", w.UpdatedAt.UTC()).
		Where(sq.Eq{"id": w.ID, "school_id": w.SchoolID}).
		Suffix("RETURNING " + joinColumns(walletColumns))

	var row walletRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return finance.Wallet{}, trapNoRowsErr(err, finance.ErrWalletNotFound, "updating wallet")
	}
	return row.unboil(), nil
}

func (repo financeRepository) CreateWalletTransaction(ctx context.Context, wt finance.WalletTransaction, exec ...core.DBExecutor) (finance.WalletTransaction, error) {
	wt.ID = newID()
	b := psql.Insert(walletTxTable).Columns(walletTxColumns...).Values(
		wt.ID, wt.SchoolID, wt.WalletID, wt.Type, wt.Amount, wt.BalanceAfter, wt.Reference, wt.Description,
		wt.CreatedBy, wt.CreatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return finance.WalletTransaction{}, errors.Wrap(err, "inserting wallet transaction")
	}
	return wt, nil
}

func (repo financeRepository) QueryWalletTransactions(ctx context.Context, schoolID, walletID string, exec ...core.DBExecutor) ([]finance.WalletTransaction, error) {
	if !validID(schoolID) || !validID(walletID) {
		return []finance.WalletTransaction{}, nil
	}
	b := psql.Select(walletTxColumns...).From(walletTxTable).
		Where(sq.Eq{"school_id": schoolID, "wallet_id": walletID}).
		OrderBy("created_at ASC")

	var rows []walletTxRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying wallet transactions")
	}
	txs := make([]finance.WalletTransaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.unboil())
	}
	return txs, nil
}

type invoiceTotals struct {
	Currency        string `boil:"currency"`
	Billed          int64  `boil:"billed"`
	Collected       int64  `boil:"collected"`
	Outstanding     int64  `boil:"outstanding"`
	OverdueInvoices int    `boil:"overdue_invoices"`
	OverdueAmount   int64  `boil:"overdue_amount"`
}

func (repo financeRepository) Summarize(ctx context.Context, schoolID string, filter *finance.InvoiceFilter, today time.Time, exec ...core.DBExecutor) (finance.Summary, error) {
	if !validID(schoolID) {
		return finance.Summary{}, nil
	}
	day := core.TruncateDay(today)
	b := psql.Select(
		"COALESCE(MIN(currency), '') AS currency",
		"COALESCE(SUM(amount), 0) AS billed",
		"COALESCE(SUM(amount_paid), 0) AS collected",
		"COALESCE(SUM(amount - amount_paid), 0) AS outstanding",
	).
		Column(sq.Expr("COUNT(*) FILTER (WHERE amount > amount_paid AND due_date < ?) AS overdue_invoices", day)).
		Column(sq.Expr("COALESCE(SUM(amount - amount_paid) FILTER (WHERE amount > amount_paid AND due_date < ?), 0) AS overdue_amount", day)).
		From(invoiceTable).
		Where(invoiceConds(schoolID, filter, today)).
		Where(sq.NotEq{"status": finance.InvoiceCancelled})

	var totals invoiceTotals
	if err := repo.bind(ctx, exec, &totals, b); err != nil {
		return finance.Summary{}, errors.Wrap(err, "summarizing invoices")
	}
	return finance.Summary(totals), nil
}
