package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
)

var (
	// errors
	ErrIntentionNotFound = core.NewNotFoundError("absence intention")

	errStartInPast      = errors.New("Start date must be today or in the future.")
	errEndBeforeStart   = errors.New("End date must be on or after the start date.")
	errOverlap          = errors.New("An absence intention already exists for this period.")
	errAlreadyReviewed  = errors.New("Intention has already been reviewed.")
	errCancelNotPending = errors.New("Only pending intentions can be cancelled.")
	errFutureAttendance = errors.New("Attendance cannot be marked for a future date.")

	ErrStudentNotFound = core.NewFieldError("student_id", "student not found")
)

// RecordExportHeaders are the columns of the attendance register export.
var RecordExportHeaders = []string{"Date", "Admission No", "Student", "Class", "Status", "Note"}

type (
	Repository interface {
		// HasOverlappingIntention reports whether a non-rejected intention of the student intersects [from, to].
		HasOverlappingIntention(ctx context.Context, schoolID, studentID string, from, to time.Time, exec ...core.DBExecutor) (bool, error)
		CreateIntention(ctx context.Context, ai AbsenceIntention, exec ...core.DBExecutor) (AbsenceIntention, error)
		GetIntention(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (AbsenceIntention, error)
		// GetIntentionForUpdate locks the intention row until the end of the transaction.
		GetIntentionForUpdate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (AbsenceIntention, error)
		// LockStudent locks the student row until the end of the transaction, so that intentions
		// of one student are checked for overlaps one at a time. Returns ErrStudentNotFound.
		LockStudent(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) error
		QueryIntentions(ctx context.Context, schoolID string, filter *IntentionFilter, exec ...core.DBExecutor) ([]AbsenceIntention, error)
		UpdateIntention(ctx context.Context, ai AbsenceIntention, exec ...core.DBExecutor) (AbsenceIntention, error)
		DeleteIntention(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		CountPendingIntentions(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error)

		// UpsertRecord inserts the record or replaces the one with the same (student, date).
		UpsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		QueryRecords(ctx context.Context, schoolID string, filter *RecordFilter, exec ...core.DBExecutor) ([]Record, error)
		// CountRecordsByStatus counts the records of a school (or one student if studentID != "") per status.
		CountRecordsByStatus(ctx context.Context, schoolID, studentID string, from, to time.Time, exec ...core.DBExecutor) (map[string]int, error)
	}

	StudentGetter interface {
		GetByID(ctx context.Context, schoolID, id string) (student.Student, error)
	}

	Service struct {
		repo     Repository
		students StudentGetter
		tx       core.Transactor
		cache    core.Cache
		logger   core.Logger
	}
)

func NewService(repo Repository, students StudentGetter, tx core.Transactor, cache core.Cache, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, students: students, tx: tx, cache: cache, logger: logger}
}

func (svc *Service) getStudent(ctx context.Context, schoolID, studentID string) (student.Student, error) {
	std, err := svc.students.GetByID(ctx, schoolID, studentID)
	if err != nil {
		if core.IsNotFound(err) {
			return student.Student{}, ErrStudentNotFound
		}
		return student.Student{}, err
	}
	return std, nil
}

// SubmitIntention records a PENDING absence intention. `ni` must have been validated.
func (svc *Service) SubmitIntention(ctx context.Context, schoolID, submittedBy string, ni NewIntention) (AbsenceIntention, error) {
	if _, err := svc.getStudent(ctx, schoolID, ni.StudentID); err != nil {
		return AbsenceIntention{}, err
	}

	var ai AbsenceIntention
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockStudent(ctx, schoolID, ni.StudentID, exec); err != nil {
			return err
		}
		overlap, err := svc.repo.HasOverlappingIntention(ctx, schoolID, ni.StudentID, ni.dateFrom, ni.dateTo, exec)
		if err != nil {
			return err
		}
		if overlap {
			return core.NewValidationError(errOverlap)
		}

		now := core.NowFunc()
		ai, err = svc.repo.CreateIntention(ctx, AbsenceIntention{
			SchoolID:    schoolID,
			StudentID:   ni.StudentID,
			DateFrom:    ni.dateFrom,
			DateTo:      ni.dateTo,
			Reason:      ni.Reason,
			Status:      StatusPending,
			SubmittedBy: submittedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, exec)
		return err
	})
	if err != nil {
		return AbsenceIntention{}, err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	return ai, nil
}

func (svc *Service) GetIntention(ctx context.Context, schoolID, id string) (AbsenceIntention, error) {
	return svc.repo.GetIntention(ctx, schoolID, id)
}

func (svc *Service) QueryIntentions(ctx context.Context, schoolID string, filter *IntentionFilter) ([]AbsenceIntention, error) {
	return svc.repo.QueryIntentions(ctx, schoolID, filter)
}

// ReviewIntention moves a PENDING intention to APPROVED or REJECTED, once.
func (svc *Service) ReviewIntention(ctx context.Context, schoolID, id, reviewerID string, ri ReviewIntention) (AbsenceIntention, error) {
	var reviewed AbsenceIntention
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		ai, err := svc.repo.GetIntentionForUpdate(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}
		if ai.Status != StatusPending {
			return core.NewValidationError(errAlreadyReviewed)
		}

		now := core.NowFunc()
		ai.Status = ri.Status
		ai.ReviewedBy = reviewerID
		ai.ReviewedAt = &now
		ai.ReviewNote = ri.Note
		ai.UpdatedAt = now
		reviewed, err = svc.repo.UpdateIntention(ctx, ai, exec)
		return err
	})
	if err != nil {
		return AbsenceIntention{}, err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	return reviewed, nil
}

// CancelIntention deletes a PENDING intention. Only its submitter or an admin may cancel it.
func (svc *Service) CancelIntention(ctx context.Context, schoolID, id, userID string, isAdmin bool) error {
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		ai, err := svc.repo.GetIntentionForUpdate(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}
		if !isAdmin && ai.SubmittedBy != userID {
			return core.ErrForbidden
		}
		if ai.Status != StatusPending {
			return core.NewValidationError(errCancelNotPending)
		}
		return svc.repo.DeleteIntention(ctx, schoolID, id, exec)
	})
	if err != nil {
		return err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	return nil
}

// MarkAttendance upserts a day's register. ABSENT on a day covered by an APPROVED intention is stored as EXCUSED.
func (svc *Service) MarkAttendance(ctx context.Context, schoolID, markedBy string, ma MarkAttendance) ([]Record, error) {
	studentIDs := make([]string, 0, len(ma.Entries))
	for _, e := range ma.Entries {
		if _, err := svc.getStudent(ctx, schoolID, e.StudentID); err != nil {
			return nil, err
		}
		studentIDs = append(studentIDs, e.StudentID)
	}

	approved, err := svc.repo.QueryIntentions(ctx, schoolID, &IntentionFilter{
		StudentIDs: studentIDs,
		Status:     StatusApproved,
		From:       ma.date,
		To:         ma.date,
	})
	if err != nil {
		return nil, err
	}
	excused := make(map[string]bool, len(approved))
	for _, ai := range approved {
		if ai.Covers(ma.date) {
			excused[ai.StudentID] = true
		}
	}

	records := make([]Record, 0, len(ma.Entries))
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		now := core.NowFunc()
		for _, e := range ma.Entries {
			status := e.Status
			if status == Absent && excused[e.StudentID] {
				status = Excused
			}
			rec, err := svc.repo.UpsertRecord(ctx, Record{
				SchoolID:  schoolID,
				StudentID: e.StudentID,
				Date:      ma.date,
				Status:    status,
				Note:      e.Note,
				MarkedBy:  markedBy,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	core.RevalidateDashboard(ctx, svc.cache, svc.logger, schoolID)
	return records, nil
}

func (svc *Service) QueryRecords(ctx context.Context, schoolID string, filter *RecordFilter) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, schoolID, filter)
}

// StudentSummary aggregates a student's records over [from, to] (zero bounds are open).
func (svc *Service) StudentSummary(ctx context.Context, schoolID, studentID string, from, to time.Time) (Summary, error) {
	if _, err := svc.getStudent(ctx, schoolID, studentID); err != nil {
		return Summary{}, err
	}
	sum, err := svc.summary(ctx, schoolID, studentID, from, to)
	sum.StudentID = studentID
	return sum, err
}

// SchoolSummary aggregates all records of a school over [from, to].
func (svc *Service) SchoolSummary(ctx context.Context, schoolID string, from, to time.Time) (Summary, error) {
	return svc.summary(ctx, schoolID, "", from, to)
}

func (svc *Service) summary(ctx context.Context, schoolID, studentID string, from, to time.Time) (Summary, error) {
	counts, err := svc.repo.CountRecordsByStatus(ctx, schoolID, studentID, from, to)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Present: counts[Present],
		Absent:  counts[Absent],
		Late:    counts[Late],
		Excused: counts[Excused],
	}
	sum.Total = sum.Present + sum.Absent + sum.Late + sum.Excused
	sum.ComputeRate()
	return sum, nil
}

func (svc *Service) CountPendingIntentions(ctx context.Context, schoolID string) (int, error) {
	return svc.repo.CountPendingIntentions(ctx, schoolID)
}

// ExportRows flattens records into rows matching RecordExportHeaders.
func ExportRows(records []Record, students map[string]student.Student) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		std := students[r.StudentID]
		rows = append(rows, []string{
			r.Date.Format(core.DateLayout), std.AdmissionNo, std.FullName(), std.ClassName, r.Status, r.Note,
		})
	}
	return rows
}
