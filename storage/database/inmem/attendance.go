package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/student"
)

type attendanceRepository struct {
	intentions *table[attendance.AbsenceIntention]
	records    *table[attendance.Record]
	students   *table[student.Student]
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{intentions: db.intention, records: db.record, students: db.student}
}

// LockStudent only checks the student exists: the transactor runs one transaction at a time.
func (repo *attendanceRepository) LockStudent(_ context.Context, schoolID, studentID string, _ ...core.DBExecutor) error {
	repo.students.RLock()
	defer repo.students.RUnlock()
	if std, ok := repo.students.rows[studentID]; ok && std.SchoolID == schoolID {
		return nil
	}
	return attendance.ErrStudentNotFound
}

func (repo *attendanceRepository) HasOverlappingIntention(_ context.Context, schoolID, studentID string, from, to time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.intentions.RLock()
	defer repo.intentions.RUnlock()
	for _, ai := range repo.intentions.rows {
		if ai.SchoolID == schoolID && ai.StudentID == studentID &&
			ai.Status != attendance.StatusRejected && ai.Overlaps(from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *attendanceRepository) CreateIntention(_ context.Context, ai attendance.AbsenceIntention, _ ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	repo.intentions.Lock()
	defer repo.intentions.Unlock()
	ai.ID = newID()
	repo.intentions.rows[ai.ID] = &ai
	return ai, nil
}

func (repo *attendanceRepository) GetIntention(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	repo.intentions.RLock()
	defer repo.intentions.RUnlock()
	if ai, ok := repo.intentions.rows[id]; ok && ai.SchoolID == schoolID {
		return *ai, nil
	}
	return attendance.AbsenceIntention{}, attendance.ErrIntentionNotFound
}

func (repo *attendanceRepository) GetIntentionForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	return repo.GetIntention(ctx, schoolID, id, exec...)
}

func (repo *attendanceRepository) QueryIntentions(_ context.Context, schoolID string, filter *attendance.IntentionFilter, _ ...core.DBExecutor) ([]attendance.AbsenceIntention, error) {
	repo.intentions.RLock()
	defer repo.intentions.RUnlock()

	intentions := repo.intentions.all(func(ai attendance.AbsenceIntention) bool {
		if ai.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		switch {
		case !inSet(filter.StudentIDs, ai.StudentID),
			filter.Status != "" && ai.Status != filter.Status,
			!filter.From.IsZero() && ai.DateTo.Before(filter.From),
			!filter.To.IsZero() && ai.DateFrom.After(filter.To):
			return false
		}
		return true
	})
	sort.Slice(intentions, func(i, j int) bool {
		if !intentions[i].DateFrom.Equal(intentions[j].DateFrom) {
			return intentions[i].DateFrom.After(intentions[j].DateFrom)
		}
		return intentions[i].CreatedAt.After(intentions[j].CreatedAt)
	})
	return intentions, nil
}

func (repo *attendanceRepository) UpdateIntention(_ context.Context, ai attendance.AbsenceIntention, _ ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	repo.intentions.Lock()
	defer repo.intentions.Unlock()
	if orig, ok := repo.intentions.rows[ai.ID]; !ok || orig.SchoolID != ai.SchoolID {
		return attendance.AbsenceIntention{}, attendance.ErrIntentionNotFound
	}
	repo.intentions.rows[ai.ID] = &ai
	return ai, nil
}

func (repo *attendanceRepository) DeleteIntention(_ context.Context, schoolID, id string, _ ...core.DBExecutor) error {
	repo.intentions.Lock()
	defer repo.intentions.Unlock()
	if ai, ok := repo.intentions.rows[id]; !ok || ai.SchoolID != schoolID {
		return attendance.ErrIntentionNotFound
	}
	delete(repo.intentions.rows, id)
	return nil
}

func (repo *attendanceRepository) CountPendingIntentions(_ context.Context, schoolID string, _ ...core.DBExecutor) (int, error) {
	repo.intentions.RLock()
	defer repo.intentions.RUnlock()
	n := 0
	for _, ai := range repo.intentions.rows {
		if ai.SchoolID == schoolID && ai.Status == attendance.StatusPending {
			n++
		}
	}
	return n, nil
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.records.Lock()
	defer repo.records.Unlock()
	for _, existing := range repo.records.rows {
		if existing.StudentID == rec.StudentID && existing.Date.Equal(rec.Date) {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			repo.records.rows[rec.ID] = &rec
			return rec, nil
		}
	}
	rec.ID = newID()
	repo.records.rows[rec.ID] = &rec
	return rec, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, schoolID string, filter *attendance.RecordFilter, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.records.RLock()
	defer repo.records.RUnlock()

	records := repo.records.all(func(rec attendance.Record) bool {
		if rec.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		switch {
		case !inSet(filter.StudentIDs, rec.StudentID),
			filter.Status != "" && rec.Status != filter.Status,
			!filter.From.IsZero() && rec.Date.Before(filter.From),
			!filter.To.IsZero() && rec.Date.After(filter.To):
			return false
		}
		return true
	})
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.After(records[j].Date)
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}

func (repo *attendanceRepository) CountRecordsByStatus(_ context.Context, schoolID, studentID string, from, to time.Time, _ ...core.DBExecutor) (map[string]int, error) {
	repo.records.RLock()
	defer repo.records.RUnlock()
	counts := make(map[string]int)
	for _, rec := range repo.records.rows {
		if rec.SchoolID != schoolID || (studentID != "" && rec.StudentID != studentID) {
			continue
		}
		if (!from.IsZero() && rec.Date.Before(from)) || (!to.IsZero() && rec.Date.After(to)) {
			continue
		}
		counts[rec.Status]++
	}
	return counts, nil
}
