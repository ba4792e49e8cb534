package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/finance"
)

type financeRepository struct {
	db *DB
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db *DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo *financeRepository) CreateFee(_ context.Context, fee finance.FeeStructure, _ ...core.DBExecutor) (finance.FeeStructure, error) {
	repo.db.fee.Lock()
	defer repo.db.fee.Unlock()
	fee.ID = newID()
	repo.db.fee.rows[fee.ID] = &fee
	return fee, nil
}

func (repo *financeRepository) GetFee(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (finance.FeeStructure, error) {
	repo.db.fee.RLock()
	defer repo.db.fee.RUnlock()
	if fee, ok := repo.db.fee.rows[id]; ok && fee.SchoolID == schoolID {
		return *fee, nil
	}
	return finance.FeeStructure{}, finance.ErrFeeNotFound
}

func (repo *financeRepository) GetFeeForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (finance.FeeStructure, error) {
	return repo.GetFee(ctx, schoolID, id, exec...)
}

func (repo *financeRepository) QueryFees(_ context.Context, schoolID string, filter *finance.FeeFilter, _ ...core.DBExecutor) ([]finance.FeeStructure, error) {
	repo.db.fee.RLock()
	defer repo.db.fee.RUnlock()
	fees := repo.db.fee.all(func(fee finance.FeeStructure) bool {
		if fee.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		return (filter.ClassName == "" || fee.ClassName == filter.ClassName) &&
			(filter.IsActive == nil || fee.IsActive == *filter.IsActive)
	})
	sort.Slice(fees, func(i, j int) bool { return fees[i].DueDate.Before(fees[j].DueDate) })
	return fees, nil
}

func (repo *financeRepository) UpdateFee(_ context.Context, fee finance.FeeStructure, _ ...core.DBExecutor) (finance.FeeStructure, error) {
	repo.db.fee.Lock()
	defer repo.db.fee.Unlock()
	if orig, ok := repo.db.fee.rows[fee.ID]; !ok || orig.SchoolID != fee.SchoolID {
		return finance.FeeStructure{}, finance.ErrFeeNotFound
	}
	repo.db.fee.rows[fee.ID] = &fee
	return fee, nil
}

func (repo *financeRepository) DeleteFee(_ context.Context, schoolID, id string, _ ...core.DBExecutor) error {
	repo.db.fee.Lock()
	defer repo.db.fee.Unlock()
	if fee, ok := repo.db.fee.rows[id]; !ok || fee.SchoolID != schoolID {
		return finance.ErrFeeNotFound
	}
	delete(repo.db.fee.rows, id)

	// ON DELETE SET NULL
	repo.db.invoice.Lock()
	defer repo.db.invoice.Unlock()
	for _, inv := range repo.db.invoice.rows {
		if inv.FeeStructureID == id {
			inv.FeeStructureID = ""
		}
	}
	return nil
}

func (repo *financeRepository) NextInvoiceNumber(_ context.Context, schoolID string, _ ...core.DBExecutor) (string, error) {
	repo.db.invoice.Lock()
	defer repo.db.invoice.Unlock()
	repo.db.invoiceSeq[schoolID]++
	return finance.InvoiceNumber(int64(repo.db.invoiceSeq[schoolID])), nil
}

func (repo *financeRepository) CreateInvoice(_ context.Context, inv finance.Invoice, _ ...core.DBExecutor) (finance.Invoice, error) {
	repo.db.invoice.Lock()
	defer repo.db.invoice.Unlock()
	inv.ID = newID()
	repo.db.invoice.rows[inv.ID] = &inv
	return inv, nil
}

func (repo *financeRepository) GetInvoice(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (finance.Invoice, error) {
	repo.db.invoice.RLock()
	defer repo.db.invoice.RUnlock()
	if inv, ok := repo.db.invoice.rows[id]; ok && inv.SchoolID == schoolID {
		return *inv, nil
	}
	return finance.Invoice{}, finance.ErrInvoiceNotFound
}

// GetInvoiceForUpdate relies on the transactor running one transaction at a time.
func (repo *financeRepository) GetInvoiceForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (finance.Invoice, error) {
	return repo.GetInvoice(ctx, schoolID, id, exec...)
}

func (repo *financeRepository) queryInvoices(schoolID string, filter *finance.InvoiceFilter, today time.Time) []finance.Invoice {
	return repo.db.invoice.all(func(inv finance.Invoice) bool {
		if inv.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		switch {
		case !inSet(filter.StudentIDs, inv.StudentID),
			filter.FeeStructureID != "" && inv.FeeStructureID != filter.FeeStructureID,
			filter.Status != "" && inv.Status != filter.Status,
			filter.Overdue && !inv.IsOverdue(today):
			return false
		}
		return true
	})
}

func (repo *financeRepository) QueryInvoices(_ context.Context, schoolID string, filter *finance.InvoiceFilter, _ ...core.DBExecutor) ([]finance.Invoice, error) {
	repo.db.invoice.RLock()
	defer repo.db.invoice.RUnlock()
	invoices := repo.queryInvoices(schoolID, filter, core.Today())
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].Number > invoices[j].Number })
	return invoices, nil
}

func (repo *financeRepository) UpdateInvoice(_ context.Context, inv finance.Invoice, _ ...core.DBExecutor) (finance.Invoice, error) {
	repo.db.invoice.Lock()
	defer repo.db.invoice.Unlock()
	if orig, ok := repo.db.invoice.rows[inv.ID]; !ok || orig.SchoolID != inv.SchoolID {
		return finance.Invoice{}, finance.ErrInvoiceNotFound
	}
	repo.db.invoice.rows[inv.ID] = &inv
	return inv, nil
}

func (repo *financeRepository) CreatePayment(_ context.Context, p finance.Payment, _ ...core.DBExecutor) (finance.Payment, error) {
	repo.db.payment.Lock()
	defer repo.db.payment.Unlock()
	p.ID = newID()
	repo.db.payment.rows[p.ID] = &p
	return p, nil
}

func (repo *financeRepository) QueryPayments(_ context.Context, schoolID string, filter *finance.PaymentFilter, _ ...core.DBExecutor) ([]finance.Payment, error) {
	repo.db.payment.RLock()
	defer repo.db.payment.RUnlock()
	payments := repo.db.payment.all(func(p finance.Payment) bool {
		if p.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		return (filter.InvoiceID == "" || p.InvoiceID == filter.InvoiceID) &&
			(filter.StudentID == "" || p.StudentID == filter.StudentID)
	})
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaidAt.After(payments[j].PaidAt) })
	return payments, nil
}

func (repo *financeRepository) CreateWallet(_ context.Context, w finance.Wallet, _ ...core.DBExecutor) (finance.Wallet, error) {
	repo.db.wallet.Lock()
	defer repo.db.wallet.Unlock()
	for _, existing := range repo.db.wallet.rows {
		if existing.StudentID == w.StudentID {
			return *existing, nil
		}
	}
	w.ID = newID()
	repo.db.wallet.rows[w.ID] = &w
	return w, nil
}

func (repo *financeRepository) GetWallet(_ context.Context, schoolID, studentID string, _ ...core.DBExecutor) (finance.Wallet, error) {
	repo.db.wallet.RLock()
	defer repo.db.wallet.RUnlock()
	for _, w := range repo.db.wallet.rows {
		if w.SchoolID == schoolID && w.StudentID == studentID {
			return *w, nil
		}
	}
	return finance.Wallet{}, finance.ErrWalletNotFound
}

func (repo *financeRepository) GetWalletForUpdate(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) (finance.Wallet, error) {
	return repo.GetWallet(ctx, schoolID, studentID, exec...)
}

func (repo *financeRepository) UpdateWalletBalance(_ context.Context, w finance.Wallet, _ ...core.DBExecutor) (finance.Wallet, error) {
	repo.db.wallet.Lock()
	defer repo.db.wallet.Unlock()
	orig, ok := repo.db.wallet.rows[w.ID]
	if !ok || orig.SchoolID != w.SchoolID {
		return finance.Wallet{}, finance.ErrWalletNotFound
	}
	orig.Balance = w.Balance
	orig.UpdatedAt = w.UpdatedAt
	return *orig, nil
}

func (repo *financeRepository) CreateWalletTransaction(_ context.Context, wt finance.WalletTransaction, _ ...core.DBExecutor) (finance.WalletTransaction, error) {
	repo.db.walletTx.Lock()
	defer repo.db.walletTx.Unlock()
	wt.ID = newID()
	repo.db.walletTx.rows[wt.ID] = &wt
	return wt, nil
}

func (repo *financeRepository) QueryWalletTransactions(_ context.Context, schoolID, walletID string, _ ...core.DBExecutor) ([]finance.WalletTransaction, error) {
	repo.db.walletTx.RLock()
	defer repo.db.walletTx.RUnlock()
	txs := repo.db.walletTx.all(func(wt finance.WalletTransaction) bool {
		return wt.SchoolID == schoolID && wt.WalletID == walletID
	})
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	return txs, nil
}

func (repo *financeRepository) Summarize(_ context.Context, schoolID string, filter *finance.InvoiceFilter, today time.Time, _ ...core.DBExecutor) (finance.Summary, error) {
	repo.db.invoice.RLock()
	defer repo.db.invoice.RUnlock()

	var sum finance.Summary
	for _, inv := range repo.queryInvoices(schoolID, filter, today) {
		if inv.Status == finance.InvoiceCancelled {
			continue
		}
		if sum.Currency == "" {
			sum.Currency = inv.Currency
		}
		sum.Billed += inv.Amount
		sum.Collected += inv.AmountPaid
		sum.Outstanding += inv.Outstanding()
		if inv.IsOverdue(today) {
			sum.OverdueInvoices++
			sum.OverdueAmount += inv.Outstanding()
		}
	}
	return sum, nil
}
