package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
)

const (
	intentionTable = "absence_intention"
	recordTable    = "attendance_record"
)

var (
	intentionColumns = []string{
		"id", "school_id", "student_id", "date_from", "date_to", "reason", "status", "submitted_by",
		"reviewed_by", "reviewed_at", "review_note", "created_at", "updated_at",
	}
	recordColumns = []string{"id", "school_id", "student_id", "date", "status", "note", "marked_by", "created_at", "updated_at"}
)

type intentionRow struct {
	ID          string      `db:"id"`
	SchoolID    string      `db:"school_id"`
	StudentID   string      `db:"student_id"`
	DateFrom    time.Time   `db:"date_from"`
	DateTo      time.Time   `db:"date_to"`
	Reason      string      `db:"reason"`
	Status      string      `db:"status"`
	SubmittedBy string      `db:"submitted_by"`
	ReviewedBy  null.String `db:"reviewed_by"`
	ReviewedAt  null.Time   `db:"reviewed_at"`
	ReviewNote  string      `db:"review_note"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r intentionRow) unboil() attendance.AbsenceIntention {
	return attendance.AbsenceIntention{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		StudentID:   r.StudentID,
		DateFrom:    core.TruncateDay(r.DateFrom),
		DateTo:      core.TruncateDay(r.DateTo),
		Reason:      r.Reason,
		Status:      r.Status,
		SubmittedBy: r.SubmittedBy,
		ReviewedBy:  r.ReviewedBy.String,
		ReviewedAt:  timePtr(r.ReviewedAt),
		ReviewNote:  r.ReviewNote,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type recordRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	StudentID string    `db:"student_id"`
	Date      time.Time `db:"date"`
	Status    string    `db:"status"`
	Note      string    `db:"note"`
	MarkedBy  string    `db:"marked_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r recordRow) unboil() attendance.Record {
	return attendance.Record{
		ID:        r.ID,
		SchoolID:  r.SchoolID,
		StudentID: r.StudentID,
		Date:      core.TruncateDay(r.Date),
		Status:    r.Status,
		Note:      r.Note,
		MarkedBy:  r.MarkedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	repository
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{repository{exec: exec}}
}

func (repo attendanceRepository) HasOverlappingIntention(ctx context.Context, schoolID, studentID string, from, to time.Time, exec ...core.DBExecutor) (bool, error) {
	if !validID(schoolID) || !validID(studentID) {
		return false, nil
	}
	sel := psql.Select("1").From(intentionTable).
		Where(sq.Eq{"school_id": schoolID, "student_id": studentID}).
		Where(sq.NotEq{"status": attendance.StatusRejected}).
		Where("date_from <= ? AND date_to >= ?", to, from)

	var found bool
	if err := repo.get(ctx, exec, &found, exists(sel)); err != nil {
		return false, errors.Wrap(err, "checking overlapping intentions")
	}
	return found, nil
}

func (repo attendanceRepository) CreateIntention(ctx context.Context, ai attendance.AbsenceIntention, exec ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	ai.ID = newID()
	b := psql.Insert(intentionTable).Columns(intentionColumns...).Values(
		ai.ID, ai.SchoolID, ai.StudentID, ai.DateFrom, ai.DateTo, ai.Reason, ai.Status, ai.SubmittedBy,
		nullString(ai.ReviewedBy), nullTimePtr(ai.ReviewedAt), ai.ReviewNote, ai.CreatedAt.UTC(), ai.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return attendance.AbsenceIntention{}, errors.Wrap(err, "inserting absence intention")
	}
	return ai, nil
}

// LockStudent takes a row lock on the student; intentions have no natural row to lock before insert.
func (repo attendanceRepository) LockStudent(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(studentID) {
		return attendance.ErrStudentNotFound
	}
	b := psql.Select("id").From(studentTable).Where(sq.Eq{"id": studentID, "school_id": schoolID}).Suffix("FOR UPDATE")

	var id string
	if err := repo.get(ctx, exec, &id, b); err != nil {
		return trapNoRowsErr(err, attendance.ErrStudentNotFound, "locking student")
	}
	return nil
}

func (repo attendanceRepository) getIntention(ctx context.Context, schoolID, id string, forUpdate bool, exec []core.DBExecutor) (attendance.AbsenceIntention, error) {
	if !validID(schoolID) || !validID(id) {
		return attendance.AbsenceIntention{}, attendance.ErrIntentionNotFound
	}
	b := psql.Select(intentionColumns...).From(intentionTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}

	var row intentionRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return attendance.AbsenceIntention{}, trapNoRowsErr(err, attendance.ErrIntentionNotFound, "finding absence intention")
	}
	return row.unboil(), nil
}

func (repo attendanceRepository) GetIntention(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	return repo.getIntention(ctx, schoolID, id, false, exec)
}

func (repo attendanceRepository) GetIntentionForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	return repo.getIntention(ctx, schoolID, id, true, exec)
}

func (repo attendanceRepository) QueryIntentions(ctx context.Context, schoolID string, filter *attendance.IntentionFilter, exec ...core.DBExecutor) ([]attendance.AbsenceIntention, error) {
	if !validID(schoolID) {
		return []attendance.AbsenceIntention{}, nil
	}
	b := psql.Select(intentionColumns...).From(intentionTable).
		Where("school_id = ?", schoolID).
		OrderBy("date_from DESC", "created_at DESC")

	if filter != nil {
		if len(filter.StudentIDs) > 0 {
			b = b.Where(sq.Eq{"student_id": validIDs(filter.StudentIDs)})
		}
		if filter.Status != "" {
			b = b.Where("status = ?", filter.Status)
		}
		if !filter.From.IsZero() {
			b = b.Where("date_to >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			b = b.Where("date_from <= ?", filter.To)
		}
	}

	var rows []intentionRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying absence intentions")
	}
	intentions := make([]attendance.AbsenceIntention, 0, len(rows))
	for _, r := range rows {
		intentions = append(intentions, r.unboil())
	}
	return intentions, nil
}

func (repo attendanceRepository) UpdateIntention(ctx context.Context, ai attendance.AbsenceIntention, exec ...core.DBExecutor) (attendance.AbsenceIntention, error) {
	if !validID(ai.ID) || !validID(ai.SchoolID) {
		return attendance.AbsenceIntention{}, attendance.ErrIntentionNotFound
	}
	b := psql.Update(intentionTable).SetMap(map[string]interface{}{
		"date_from":   ai.DateFrom,
		"date_to":     ai.DateTo,
		"reason":      ai.Reason,
		"status":      ai.Status,
		"reviewed_by": nullString(ai.ReviewedBy),
		"reviewed_at": nullTimePtr(ai.ReviewedAt),
		"review_note": ai.ReviewNote,
		"updated_at":  ai.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": ai.ID, "school_id": ai.SchoolID})
	if err := repo.mustAffect(ctx, exec, b, attendance.ErrIntentionNotFound, "updating absence intention"); err != nil {
		return attendance.AbsenceIntention{}, err
	}
	return ai, nil
}

func (repo attendanceRepository) DeleteIntention(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(id) {
		return attendance.ErrIntentionNotFound
	}
	b := psql.Delete(intentionTable).Where(sq.Eq{"id": id, "school_id": schoolID})
	return repo.mustAffect(ctx, exec, b, attendance.ErrIntentionNotFound, "deleting absence intention")
}

func (repo attendanceRepository) CountPendingIntentions(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	if !validID(schoolID) {
		return 0, nil
	}
	var n int
	b := psql.Select("COUNT(*)").From(intentionTable).Where(sq.Eq{"school_id": schoolID, "status": attendance.StatusPending})
	if err := repo.get(ctx, exec, &n, b); err != nil {
		return 0, errors.Wrap(err, "counting pending intentions")
	}
	return n, nil
}

// UpsertRecord keeps the id and created_at of an existing (student, date) record.
func (repo attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	b := psql.Insert(recordTable).Columns(recordColumns...).Values(
		newID(), rec.SchoolID, rec.StudentID, rec.Date, rec.Status, rec.Note, rec.MarkedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	).Suffix(
		"ON CONFLICT (student_id, date) DO UPDATE SET " +
			"status = EXCLUDED.status, note = EXCLUDED.note, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at " +
			"RETURNING " + joinColumns(recordColumns),
	)

	var row recordRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return row.unboil(), nil
}

func recordConds(schoolID, studentID string, from, to time.Time) sq.And {
	conds := sq.And{sq.Eq{"school_id": schoolID}}
	if studentID != "" {
		conds = append(conds, sq.Eq{"student_id": studentID})
	}
	if !from.IsZero() {
		conds = append(conds, sq.GtOrEq{"date": from})
	}
	if !to.IsZero() {
		conds = append(conds, sq.LtOrEq{"date": to})
	}
	return conds
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, schoolID string, filter *attendance.RecordFilter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	if !validID(schoolID) {
		return []attendance.Record{}, nil
	}
	if filter == nil {
		filter = &attendance.RecordFilter{}
	}
	b := psql.Select(recordColumns...).From(recordTable).
		Where(recordConds(schoolID, "", filter.From, filter.To)).
		OrderBy("date DESC", "student_id ASC")
	if len(filter.StudentIDs) > 0 {
		b = b.Where(sq.Eq{"student_id": validIDs(filter.StudentIDs)})
	}
	if filter.Status != "" {
		b = b.Where("status = ?", filter.Status)
	}

	var rows []recordRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.unboil())
	}
	return records, nil
}

type statusCount struct {
	Status string `boil:"status"`
	Count  int    `boil:"count"`
}

func (repo attendanceRepository) CountRecordsByStatus(ctx context.Context, schoolID, studentID string, from, to time.Time, exec ...core.DBExecutor) (map[string]int, error) {
	counts := make(map[string]int)
	if !validID(schoolID) || (studentID != "" && !validID(studentID)) {
		return counts, nil
	}
	b := psql.Select("status", "COUNT(*) AS count").From(recordTable).
		Where(recordConds(schoolID, studentID, from, to)).
		GroupBy("status")

	var rows []statusCount
	if err := repo.bind(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "counting attendance records")
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
