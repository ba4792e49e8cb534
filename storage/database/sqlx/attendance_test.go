package sqlxrepos

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/attendance"
)

func TestAttendanceRepository_HasOverlappingIntention(t *testing.T) {
	db, mock := newMock(t)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	mock.ExpectQuery(q(`SELECT EXISTS ( SELECT 1 FROM absence_intention WHERE school_id = $1 AND student_id = $2 AND status <> $3 AND date_from <= $4 AND date_to >= $5 )`)).
		WithArgs(schoolID, studentID, attendance.StatusRejected, to, from).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	found, err := NewAttendanceRepository(db).HasOverlappingIntention(context.Background(), schoolID, studentID, from, to)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAttendanceRepository_UpsertRecord(t *testing.T) {
	fixedIDs(t)
	db, mock := newMock(t)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)

	mock.ExpectQuery(q(`INSERT INTO attendance_record (id,school_id,student_id,date,status,note,marked_by,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (student_id, date) DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at RETURNING id, school_id,`)).
		WithArgs("00000000-0000-4000-8000-000000000001", schoolID, studentID, day, attendance.Late, "bus", otherID, now, now).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(
			"00000000-0000-4000-8000-000000000099", schoolID, studentID, day, attendance.Late, "bus", otherID, created, now,
		))

	rec, err := NewAttendanceRepository(db).UpsertRecord(context.Background(), attendance.Record{
		SchoolID: schoolID, StudentID: studentID, Date: day, Status: attendance.Late, Note: "bus", MarkedBy: otherID,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	// the existing row keeps its identity
	assert.Equal(t, "00000000-0000-4000-8000-000000000099", rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, day, rec.Date)
}

func TestAttendanceRepository_QueryRecords(t *testing.T) {
	db, mock := newMock(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`FROM attendance_record WHERE (school_id = $1 AND date >= $2) AND student_id IN ($3) AND status = $4 ORDER BY date DESC, student_id ASC`)).
		WithArgs(schoolID, from, studentID, attendance.Absent).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	records, err := NewAttendanceRepository(db).QueryRecords(context.Background(), schoolID, &attendance.RecordFilter{
		StudentIDs: []string{studentID}, Status: attendance.Absent, From: from,
	})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestAttendanceRepository_CountRecordsByStatus(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`SELECT status, COUNT(*) AS count FROM attendance_record WHERE (school_id = $1 AND student_id = $2) GROUP BY status`)).
		WithArgs(schoolID, studentID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(attendance.Present, 18).
			AddRow(attendance.Absent, 2))

	counts, err := NewAttendanceRepository(db).CountRecordsByStatus(context.Background(), schoolID, studentID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{attendance.Present: 18, attendance.Absent: 2}, counts)

	counts, err = NewAttendanceRepository(db).CountRecordsByStatus(context.Background(), schoolID, "bad", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestAttendanceRepository_DeleteIntention(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(q(`DELETE FROM absence_intention WHERE id = $1 AND school_id = $2`)).
		WithArgs(otherID, schoolID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeleteIntention(context.Background(), schoolID, otherID), attendance.ErrIntentionNotFound)
}

func TestAttendanceRepository_GetIntentionForUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAttendanceRepository(db)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`FROM absence_intention WHERE id = $1 AND school_id = $2 FOR UPDATE`)).
		WithArgs(otherID, schoolID).
		WillReturnRows(sqlmock.NewRows(intentionColumns).AddRow(
			otherID, schoolID, studentID, from, from, "flu", attendance.StatusPending, schoolID, nil, nil, "", now, now,
		))
	ai, err := repo.GetIntentionForUpdate(context.Background(), schoolID, otherID)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPending, ai.Status)
	assert.Empty(t, ai.ReviewedBy)
	assert.Nil(t, ai.ReviewedAt)

	_, err = repo.GetIntentionForUpdate(context.Background(), schoolID, "bad")
	assert.ErrorIs(t, err, attendance.ErrIntentionNotFound)
}

func TestAttendanceRepository_LockStudent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(q(`SELECT id FROM student WHERE id = $1 AND school_id = $2 FOR UPDATE`)).
		WithArgs(studentID, schoolID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(studentID))
	require.NoError(t, repo.LockStudent(context.Background(), schoolID, studentID))

	mock.ExpectQuery(q(`SELECT id FROM student WHERE id = $1 AND school_id = $2 FOR UPDATE`)).
		WithArgs(otherID, schoolID).
		WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, repo.LockStudent(context.Background(), schoolID, otherID), attendance.ErrStudentNotFound)
}
