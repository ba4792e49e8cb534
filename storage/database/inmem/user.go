package inmemdb

import (
	"context"
	"strings"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/user"
)

type userRepository struct {
	db *table[user.User]
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user}
}

var userOrderings = map[string]func(a, b user.User) bool{
	"name":       func(a, b user.User) bool { return a.Name < b.Name },
	"username":   func(a, b user.User) bool { return a.Username < b.Username },
	"email":      func(a, b user.User) bool { return a.Email < b.Email },
	"created_at": func(a, b user.User) bool { return a.CreatedAt.Before(b.CreatedAt) },
	"last_login": func(a, b user.User) bool { return a.LastLogin.Before(b.LastLogin) },
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}
	for _, usr := range repo.db.rows {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	usr.ID = newID()
	repo.db.rows[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, schoolID string, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.db.all(func(usr user.User) bool {
		if usr.SchoolID != schoolID {
			return false
		}
		if filter == nil {
			return true
		}
		if filter.Search != "" &&
			!(containsFold(usr.Name, filter.Search) || containsFold(usr.Username, filter.Search) || containsFold(usr.Email, filter.Search)) {
			return false
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			return false
		}
		if len(filter.Roles) > 0 && !matchesRoles(usr, filter.Roles) {
			return false
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			return false
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			return false
		}
		return true
	})
	sortBy(users, ordering, userOrderings, core.DBOrdering{Field: "name", Ascending: true})
	return users, nil
}

// matchesRoles handles both exact roles ("admin:owner") and groups ("admin:").
func matchesRoles(usr user.User, roles []string) bool {
	for _, role := range roles {
		if strings.HasSuffix(role, ":") {
			if usr.RoleStartsWith(role) {
				return true
			}
		} else if usr.HasAnyRole(role) {
			return true
		}
	}
	return false
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.rows {
		if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
			continue
		}
		switch {
		case filter.ID != "" && usr.ID == filter.ID,
			filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.rows[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.rows[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, schoolID string, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	n := 0
	for _, id := range ids {
		if usr, ok := repo.db.rows[id]; ok && usr.SchoolID == schoolID {
			delete(repo.db.rows, id)
			n++
		}
	}
	return n, nil
}

func (repo *userRepository) CountByRoleGroup(_ context.Context, schoolID string, _ ...core.DBExecutor) (map[string]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[string]int)
	for _, usr := range repo.db.rows {
		if usr.SchoolID != schoolID || !usr.IsActive {
			continue
		}
		seen := make(map[string]bool)
		for _, role := range usr.Roles {
			group := user.RoleGroup(role)
			if !seen[group] {
				seen[group] = true
				counts[group]++
			}
		}
	}
	return counts, nil
}
