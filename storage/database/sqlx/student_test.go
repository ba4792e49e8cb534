package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
)

func TestStudentRepository_AdmissionNoExists(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`SELECT EXISTS ( SELECT 1 FROM student WHERE admission_no = $1 AND school_id = $2 AND id <> $3 )`)).
		WithArgs("HP-001", schoolID, studentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := NewStudentRepository(db).AdmissionNoExists(context.Background(), schoolID, "HP-001", studentID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStudentRepository_QueryStudents(t *testing.T) {
	db, mock := newMock(t)
	dob := time.Date(1980, 7, 31, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "school_id", "user_id", "guardian_user_id", "admission_no", "first_name", "last_name", "class_name",
		"date_of_birth", "guardian_name", "guardian_email", "guardian_phone", "is_active", "created_at", "updated_at",
	}

	mock.ExpectQuery(q(`FROM student WHERE school_id = $1 AND class_name = $2 AND guardian_user_id::text = $3 ORDER BY "first_name" ASC`)).
		WithArgs(schoolID, "Year 1", otherID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			studentID, schoolID, nil, otherID, "HP-001", "Harry", "Potter", "Year 1",
			dob, "Vernon Dursley", "", "", true, now, now,
		))

	students, err := NewStudentRepository(db).QueryStudents(context.Background(), schoolID,
		&student.QueryFilter{ClassName: "Year 1", GuardianUserID: otherID},
		[]core.DBOrdering{{Field: "first_name", Ascending: true}},
	)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "", students[0].UserID)
	assert.Equal(t, otherID, students[0].GuardianUserID)
	require.NotNil(t, students[0].DateOfBirth)
	assert.Equal(t, dob, *students[0].DateOfBirth)
}

func TestStudentRepository_QueryStudentsNoIDs(t *testing.T) {
	db, mock := newMock(t)

	// an explicit empty ID list matches nothing
	mock.ExpectQuery(q(`FROM student WHERE school_id = $1 AND (1=0) ORDER BY "last_name" ASC`)).
		WithArgs(schoolID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	students, err := NewStudentRepository(db).QueryStudents(context.Background(), schoolID, &student.QueryFilter{IDs: []string{"bogus"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestStudentRepository_CountActive(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM student WHERE is_active = $1 AND school_id = $2`)).
		WithArgs(true, schoolID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(412))

	n, err := NewStudentRepository(db).CountActive(context.Background(), schoolID)
	require.NoError(t, err)
	assert.Equal(t, 412, n)
}
