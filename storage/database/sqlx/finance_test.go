package sqlxrepos

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/finance"
)

func TestFinanceRepository_NextInvoiceNumber(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`INSERT INTO invoice_counter (school_id,last_value) VALUES ($1,$2) ON CONFLICT (school_id) DO UPDATE SET last_value = invoice_counter.last_value + 1 RETURNING last_value`)).
		WithArgs(schoolID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(42))

	number, err := NewFinanceRepository(db).NextInvoiceNumber(context.Background(), schoolID)
	require.NoError(t, err)
	assert.Equal(t, "INV-000042", number)
}

func TestFinanceRepository_GetInvoiceForUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFinanceRepository(db)
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`FROM invoice WHERE id = $1 AND school_id = $2 FOR UPDATE`)).
		WithArgs(otherID, schoolID).
		WillReturnRows(sqlmock.NewRows(invoiceColumns).AddRow(
			otherID, schoolID, studentID, nil, "INV-000001", "Term 1", 50000, 20000, "USD", finance.InvoicePartial, due, now, now,
		))
	inv, err := repo.GetInvoiceForUpdate(context.Background(), schoolID, otherID)
	require.NoError(t, err)
	assert.Equal(t, finance.Invoice{
		ID: otherID, SchoolID: schoolID, StudentID: studentID, Number: "INV-000001", Description: "Term 1",
		Amount: 50000, AmountPaid: 20000, Currency: "USD", Status: finance.InvoicePartial, DueDate: due,
		CreatedAt: now, UpdatedAt: now,
	}, inv)

	mock.ExpectQuery(q(`FROM invoice WHERE id = $1 AND school_id = $2`)).
		WithArgs(otherID, schoolID).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetInvoice(context.Background(), schoolID, otherID)
	assert.ErrorIs(t, err, finance.ErrInvoiceNotFound)
}

func TestFinanceRepository_QueryInvoices(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`FROM invoice WHERE (school_id = $1 AND student_id IN ($2) AND status = $3) ORDER BY number DESC`)).
		WithArgs(schoolID, studentID, finance.InvoiceUnpaid).
		WillReturnRows(sqlmock.NewRows(invoiceColumns))

	invoices, err := NewFinanceRepository(db).QueryInvoices(context.Background(), schoolID, &finance.InvoiceFilter{
		StudentIDs: []string{studentID}, Status: finance.InvoiceUnpaid,
	})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestFinanceRepository_UpdateWalletBalance(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFinanceRepository(db)
	w := finance.Wallet{ID: otherID, SchoolID: schoolID, StudentID: studentID, Balance: 1500, Currency: "USD", UpdatedAt: now}

	mock.ExpectQuery(q(`UPDATE wallet SET balance = $1, updated_at = $2 WHERE id = $3 AND school_id = $4 RETURNING id, school_id, student_id, balance, currency, created_at, updated_at`)).
		WithArgs(int64(1500), now, otherID, schoolID).
		WillReturnRows(sqlmock.NewRows(walletColumns).AddRow(otherID, schoolID, studentID, 1500, "USD", now, now))
	updated, err := repo.UpdateWalletBalance(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.Balance)
	assert.Equal(t, now, updated.CreatedAt)

	mock.ExpectQuery(q(`UPDATE wallet SET`)).WillReturnError(sql.ErrNoRows)
	_, err = repo.UpdateWalletBalance(context.Background(), w)
	assert.ErrorIs(t, err, finance.ErrWalletNotFound)
}

func TestFinanceRepository_Summarize(t *testing.T) {
	db, mock := newMock(t)
	today := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`COUNT(*) FILTER (WHERE amount > amount_paid AND due_date < $1) AS overdue_invoices, COALESCE(SUM(amount - amount_paid) FILTER (WHERE amount > amount_paid AND due_date < $2), 0) AS overdue_amount FROM invoice WHERE (school_id = $3) AND status <> $4`)).
		WithArgs(day, day, schoolID, finance.InvoiceCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"currency", "billed", "collected", "outstanding", "overdue_invoices", "overdue_amount"}).
			AddRow("USD", 150000, 90000, 60000, 2, 45000))

	sum, err := NewFinanceRepository(db).Summarize(context.Background(), schoolID, nil, today)
	require.NoError(t, err)
	assert.Equal(t, finance.Summary{
		Currency: "USD", Billed: 150000, Collected: 90000, Outstanding: 60000, OverdueInvoices: 2, OverdueAmount: 45000,
	}, sum)
}

func TestFinanceRepository_GetFeeForUpdate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`FROM fee_structure WHERE id = $1 AND school_id = $2 FOR UPDATE`)).
		WithArgs(otherID, schoolID).
		WillReturnError(sql.ErrNoRows)
	_, err := NewFinanceRepository(db).GetFeeForUpdate(context.Background(), schoolID, otherID)
	assert.ErrorIs(t, err, finance.ErrFeeNotFound)
}

func TestFinanceRepository_CreateInvoice_alreadyInvoiced(t *testing.T) {
	fixedIDs(t)
	db, mock := newMock(t)

	mock.ExpectExec(q(`INSERT INTO invoice`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "invoice_fee_student_uniq"})
	_, err := NewFinanceRepository(db).CreateInvoice(context.Background(), finance.Invoice{
		SchoolID: schoolID, StudentID: studentID, FeeStructureID: otherID, Number: "INV-000001",
		Amount: 50000, Currency: "USD", Status: finance.InvoiceUnpaid, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, finance.ErrAlreadyInvoiced)
}
