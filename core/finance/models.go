package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/databayt/hogwarts-sub013/core"
)

// Invoice statuses
const (
	InvoiceUnpaid    = "UNPAID"
	InvoicePartial   = "PARTIAL"
	InvoicePaid      = "PAID"
	InvoiceCancelled = "CANCELLED"
)

// Payment methods
const (
	MethodCash   = "CASH"
	MethodBank   = "BANK"
	MethodMobile = "MOBILE"
	MethodWallet = "WALLET"
)

// Wallet transaction types
const (
	TxCredit = "CREDIT"
	TxDebit  = "DEBIT"
)

type FeeStructure struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	ClassName string    `json:"class_name"`
	Term      string    `json:"term"`
	Amount    int64     `json:"amount"` // minor units
	Currency  string    `json:"currency"`
	DueDate   time.Time `json:"due_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewFeeStructure struct {
	Name      string `json:"name" validate:"required,max=200"`
	ClassName string `json:"class_name" validate:"required,max=50"`
	Term      string `json:"term" validate:"omitempty,max=50"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Currency  string `json:"currency" validate:"omitempty,len=3,alpha"`
	DueDate   string `json:"due_date" validate:"required,date"`
}

func (nf *NewFeeStructure) Validate() error {
	nf.Name = core.CleanString(nf.Name)
	nf.ClassName = core.CleanString(nf.ClassName)
	nf.Term = core.CleanString(nf.Term)
	nf.Currency = normalizeCurrency(nf.Currency)
	nf.DueDate = core.CleanString(nf.DueDate)
	return core.Validate.Struct(nf)
}

type UpdateFeeStructure struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Term     string `json:"term" validate:"omitempty,max=50"`
	Amount   int64  `json:"amount" validate:"omitempty,gt=0"`
	DueDate  string `json:"due_date" validate:"omitempty,date"`
	IsActive *bool  `json:"is_active"`
}

func (uf *UpdateFeeStructure) Validate(orig FeeStructure) error {
	if name := core.CleanString(uf.Name); name != "" {
		uf.Name = name
	} else {
		uf.Name = orig.Name
	}
	if term := core.CleanString(uf.Term); term != "" {
		uf.Term = term
	} else {
		uf.Term = orig.Term
	}
	if uf.Amount == 0 {
		uf.Amount = orig.Amount
	}
	uf.DueDate = core.CleanString(uf.DueDate)
	return core.Validate.Struct(uf)
}

type FeeFilter struct {
	ClassName string
	IsActive  *bool
}

type Invoice struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	StudentID      string    `json:"student_id"`
	FeeStructureID string    `json:"fee_structure_id,omitempty"`
	Number         string    `json:"number"`
	Description    string    `json:"description"`
	Amount         int64     `json:"amount"`
	AmountPaid     int64     `json:"amount_paid"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	DueDate        time.Time `json:"due_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InvoiceNumber formats the n-th invoice number of a school.
func InvoiceNumber(n int64) string {
	return fmt.Sprintf("INV-%06d", n)
}

func (inv Invoice) Outstanding() int64 {
	if inv.Status == InvoiceCancelled {
		return 0
	}
	return inv.Amount - inv.AmountPaid
}

// IsOverdue reports whether the invoice still has a balance after its due date.
func (inv Invoice) IsOverdue(today time.Time) bool {
	return inv.Outstanding() > 0 && inv.DueDate.Before(core.TruncateDay(today))
}

// applyPayment adds `amount` to the paid amount and moves the status along UNPAID -> PARTIAL -> PAID.
func (inv *Invoice) applyPayment(amount int64) {
	inv.AmountPaid += amount
	switch {
	case inv.AmountPaid >= inv.Amount:
		inv.Status = InvoicePaid
	case inv.AmountPaid > 0:
		inv.Status = InvoicePartial
	default:
		inv.Status = InvoiceUnpaid
	}
}

type NewInvoice struct {
	StudentID   string `json:"student_id" validate:"required,uuid"`
	Description string `json:"description" validate:"required,max=500"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
	DueDate     string `json:"due_date" validate:"required,date"`
}

func (ni *NewInvoice) Validate() error {
	ni.StudentID = core.CleanString(ni.StudentID)
	ni.Description = core.CleanString(ni.Description)
	ni.Currency = normalizeCurrency(ni.Currency)
	ni.DueDate = core.CleanString(ni.DueDate)
	return core.Validate.Struct(ni)
}

type InvoiceFilter struct {
	StudentIDs     []string
	FeeStructureID string
	Status         string
	Overdue        bool
}

type Payment struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"school_id"`
	InvoiceID  string    `json:"invoice_id"`
	StudentID  string    `json:"student_id"`
	Amount     int64     `json:"amount"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference"`
	RecordedBy string    `json:"recorded_by"`
	PaidAt     time.Time `json:"paid_at"`
}

type NewPayment struct {
	InvoiceID string `json:"invoice_id" validate:"required,uuid"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Method    string `json:"method" validate:"required,oneof=CASH BANK MOBILE WALLET"`
	Reference string `json:"reference" validate:"omitempty,max=100"`
}

func (np *NewPayment) Validate() error {
	np.InvoiceID = core.CleanString(np.InvoiceID)
	np.Method = core.CleanString(np.Method)
	np.Reference = core.CleanString(np.Reference)
	return core.Validate.Struct(np)
}

type PaymentFilter struct {
	InvoiceID string
	StudentID string
}

type Wallet struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	StudentID string    `json:"student_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WalletTransaction struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"school_id"`
	WalletID     string    `json:"wallet_id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference"`
	Description  string    `json:"description"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type TopUp struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Reference   string `json:"reference" validate:"omitempty,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

func (tu *TopUp) Validate() error {
	tu.Reference = core.CleanString(tu.Reference)
	tu.Description = core.CleanString(tu.Description)
	return core.Validate.Struct(tu)
}

// Summary is the financial position of a school (or one student).
type Summary struct {
	Currency        string `json:"currency"`
	Billed          int64  `json:"billed"`
	Collected       int64  `json:"collected"`
	Outstanding     int64  `json:"outstanding"`
	OverdueInvoices int    `json:"overdue_invoices"`
	OverdueAmount   int64  `json:"overdue_amount"`
}

// FormatMoney renders minor units with two decimals, eg. "USD 1,250.50" (no prefix without a currency).
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	major, minor := amount/100, amount%100

	digits := fmt.Sprintf("%d", major)
	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, d)
	}
	if currency == "" {
		return fmt.Sprintf("%s%s.%02d", sign, grouped, minor)
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, grouped, minor)
}

func normalizeCurrency(c string) string {
	c = core.CleanString(c)
	if c == "" {
		c = core.Conf.Currency
	}
	return strings.ToUpper(c)
}
