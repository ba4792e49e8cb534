package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/finance"
	"github.com/databayt/hogwarts-sub013/core/messaging"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
	"github.com/databayt/hogwarts-sub013/core/user"
)

type (
	// DB is a map backed store used by tests and by the API when ENV=TEST.
	DB struct {
		tx sync.Mutex // serializes WithinTx calls

		school     *table[school.School]
		user       *table[user.User]
		student    *table[student.Student]
		intention  *table[attendance.AbsenceIntention]
		record     *table[attendance.Record]
		fee        *table[finance.FeeStructure]
		invoice    *table[finance.Invoice]
		payment    *table[finance.Payment]
		wallet     *table[finance.Wallet]
		walletTx   *table[finance.WalletTransaction]
		exam       *table[exam.Exam]
		question   *table[exam.Question]
		response   *table[exam.Response]
		convo      *table[messaging.Conversation] // without participants
		message    *table[messaging.Message]
		members    *table[member]
		invoiceSeq map[string]int // {schoolID: last number}
	}

	table[T any] struct {
		sync.RWMutex
		rows map[string]*T
	}

	member struct {
		ConversationID string
		messaging.Participant
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

// all returns copies of the rows matching `keep` (every row when nil). Callers hold the lock.
func (t *table[T]) all(keep func(T) bool) []T {
	rows := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		if keep == nil || keep(*r) {
			rows = append(rows, *r)
		}
	}
	return rows
}

func Open() *DB {
	return &DB{
		school:     newTable[school.School](),
		user:       newTable[user.User](),
		student:    newTable[student.Student](),
		intention:  newTable[attendance.AbsenceIntention](),
		record:     newTable[attendance.Record](),
		fee:        newTable[finance.FeeStructure](),
		invoice:    newTable[finance.Invoice](),
		payment:    newTable[finance.Payment](),
		wallet:     newTable[finance.Wallet](),
		walletTx:   newTable[finance.WalletTransaction](),
		exam:       newTable[exam.Exam](),
		question:   newTable[exam.Question](),
		response:   newTable[exam.Response](),
		convo:      newTable[messaging.Conversation](),
		message:    newTable[messaging.Message](),
		members:    newTable[member](),
		invoiceSeq: make(map[string]int),
	}
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil)

// NewTransactor returns a Transactor that runs transactions one at a time.
// There is no rollback: services validate before writing.
func NewTransactor(db *DB) *transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	t.db.tx.Lock()
	defer t.db.tx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}

func newID() string {
	return uuid.NewString()
}

func containsFold(s, keyword string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(keyword))
}

func inSet(ids []string, id string) bool {
	return len(ids) == 0 || core.ContainsString(ids, id)
}

// sortBy sorts rows by the first ordering whose field is known to `fields`, falling back to `dflt`.
func sortBy[T any](rows []T, ordering []core.DBOrdering, fields map[string]func(a, b T) bool, dflt core.DBOrdering) {
	ord := dflt
	for _, o := range ordering {
		if _, ok := fields[o.Field]; ok {
			ord = o
			break
		}
	}
	less := fields[ord.Field]
	sort.SliceStable(rows, func(i, j int) bool {
		if ord.Ascending {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
}
