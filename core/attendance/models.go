package attendance

import (
	"time"

	"github.com/databayt/hogwarts-sub013/core"
)

// Intention statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Attendance statuses
const (
	Present = "PRESENT"
	Absent  = "ABSENT"
	Late    = "LATE"
	Excused = "EXCUSED"
)

var (
	IntentionStatuses = []string{StatusPending, StatusApproved, StatusRejected}
	RecordStatuses    = []string{Present, Absent, Late, Excused}
)

// AbsenceIntention is a guardian's (or student's) advance notice that a student will be absent.
type AbsenceIntention struct {
	ID          string     `json:"id"`
	SchoolID    string     `json:"school_id"`
	StudentID   string     `json:"student_id"`
	DateFrom    time.Time  `json:"date_from"` // calendar day, UTC midnight
	DateTo      time.Time  `json:"date_to"`   // inclusive
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	SubmittedBy string     `json:"submitted_by"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote  string     `json:"review_note"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Covers reports whether the intention spans the calendar day `day`.
func (ai AbsenceIntention) Covers(day time.Time) bool {
	day = core.TruncateDay(day)
	return !day.Before(ai.DateFrom) && !day.After(ai.DateTo)
}

// Overlaps reports whether [from, to] intersects the intention's range (both inclusive).
func (ai AbsenceIntention) Overlaps(from, to time.Time) bool {
	return !from.After(ai.DateTo) && !to.Before(ai.DateFrom)
}

type NewIntention struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	DateFrom  string `json:"date_from" validate:"required,date"`
	DateTo    string `json:"date_to" validate:"required,date"`
	Reason    string `json:"reason" validate:"required,min=3,max=500"`

	dateFrom, dateTo time.Time
}

// Validate checks the input and the calendar rules relative to today.
func (ni *NewIntention) Validate() error {
	ni.StudentID = core.CleanString(ni.StudentID)
	ni.DateFrom = core.CleanString(ni.DateFrom)
	ni.DateTo = core.CleanString(ni.DateTo)
	ni.Reason = core.CleanString(ni.Reason)
	if err := core.Validate.Struct(ni); err != nil {
		return err
	}

	ni.dateFrom, _ = core.ParseDate(ni.DateFrom)
	ni.dateTo, _ = core.ParseDate(ni.DateTo)
	if ni.dateFrom.Before(core.Today()) {
		return core.NewFieldError("date_from", errStartInPast.Error())
	}
	if ni.dateTo.Before(ni.dateFrom) {
		return core.NewFieldError("date_to", errEndBeforeStart.Error())
	}
	return nil
}

type ReviewIntention struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

func (ri *ReviewIntention) Validate() error {
	ri.Status = core.CleanString(ri.Status)
	ri.Note = core.CleanString(ri.Note)
	return core.Validate.Struct(ri)
}

type IntentionFilter struct {
	StudentIDs []string
	Status     string
	From       time.Time // intentions ending on or after
	To         time.Time // intentions starting on or before
}

// Record is the attendance of one student on one calendar day.
type Record struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Note      string    `json:"note"`
	MarkedBy  string    `json:"marked_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MarkEntry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Note      string `json:"note" validate:"omitempty,max=500"`
}

// MarkAttendance is a register for one day (a class, or any set of students).
type MarkAttendance struct {
	Date    string      `json:"date" validate:"required,date"`
	Entries []MarkEntry `json:"entries" validate:"required,min=1,dive"`

	date time.Time
}

func (ma *MarkAttendance) Validate() error {
	ma.Date = core.CleanString(ma.Date)
	for i := range ma.Entries {
		ma.Entries[i].StudentID = core.CleanString(ma.Entries[i].StudentID)
		ma.Entries[i].Status = core.CleanString(ma.Entries[i].Status)
		ma.Entries[i].Note = core.CleanString(ma.Entries[i].Note)
	}
	if err := core.Validate.Struct(ma); err != nil {
		return err
	}
	ma.date, _ = core.ParseDate(ma.Date)
	if ma.date.After(core.Today()) {
		return core.NewFieldError("date", errFutureAttendance.Error())
	}
	return nil
}

type RecordFilter struct {
	StudentIDs []string
	Status     string
	From       time.Time
	To         time.Time
}

// Summary aggregates the attendance of a student (or a whole school) over a period.
type Summary struct {
	StudentID string  `json:"student_id,omitempty"`
	Total     int     `json:"total"`
	Present   int     `json:"present"`
	Absent    int     `json:"absent"`
	Late      int     `json:"late"`
	Excused   int     `json:"excused"`
	Rate      float64 `json:"rate"` // (present + late + excused) / total
}

func (s *Summary) ComputeRate() {
	if s.Total == 0 {
		s.Rate = 0
		return
	}
	s.Rate = float64(s.Present+s.Late+s.Excused) / float64(s.Total)
}
