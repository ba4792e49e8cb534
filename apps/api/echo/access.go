package echoapi

import (
	"context"

	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/student"
	"github.com/databayt/hogwarts-sub013/core/user"
)

// studentScope lists the students a non-staff user may act on:
// guardians their wards, students themselves. Staff are not restricted.
type studentScope struct {
	restricted bool
	ids        []string
}

func resolveStudentScope(ctx context.Context, students *student.Service, usr user.User) (studentScope, error) {
	filter := new(student.QueryFilter)
	switch {
	case usr.IsStaff():
		return studentScope{}, nil
	case usr.IsGuardian():
		filter.GuardianUserID = usr.ID
	case usr.IsStudent():
		filter.UserID = usr.ID
	default:
		return studentScope{restricted: true}, nil
	}

	stds, err := students.Query(ctx, usr.SchoolID, filter, nil)
	if err != nil {
		return studentScope{}, errors.Wrap(err, "querying own students")
	}
	scope := studentScope{restricted: true, ids: make([]string, 0, len(stds))}
	for _, std := range stds {
		scope.ids = append(scope.ids, std.ID)
	}
	return scope, nil
}

func (s studentScope) allows(studentID string) bool {
	return !s.restricted || core.ContainsString(s.ids, studentID)
}

// narrow restricts the requested student IDs to the scope.
// ok is false when nothing the user may see can match.
func (s studentScope) narrow(requested []string) (ids []string, ok bool) {
	if !s.restricted {
		return requested, true
	}
	if len(requested) == 0 {
		return s.ids, len(s.ids) > 0
	}
	for _, id := range requested {
		if s.allows(id) {
			ids = append(ids, id)
		}
	}
	return ids, len(ids) > 0
}

// canAccessStudent reports whether usr may read the records of std.
func canAccessStudent(usr user.User, std student.Student) bool {
	switch {
	case usr.IsStaff():
		return true
	case usr.IsGuardian() && std.GuardianUserID == usr.ID:
		return true
	case usr.IsStudent() && std.UserID == usr.ID:
		return true
	}
	return false
}
