package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/user"
)

const userTable = `"user"`

var (
	userColumns = []string{
		"id", "school_id", "name", "username", "email", "is_active", "roles", "password_hash",
		"created_at", "updated_at", "last_login",
	}
	userOrderings = []string{"name", "username", "email", "created_at", "last_login"}
)

type userRow struct {
	ID           string         `db:"id"`
	SchoolID     string         `db:"school_id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func boilUser(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		SchoolID:     usr.SchoolID,
		Name:         usr.Name,
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    nullTime(usr.LastLogin),
	}
}

func (r userRow) unboil() user.User {
	usr := user.User{
		ID:           r.ID,
		SchoolID:     r.SchoolID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.PasswordHash.Valid {
		usr.PasswordHash = r.PasswordHash.Bytes
	}
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time.UTC()
	}
	return usr
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	match := sq.Or{}
	if username != "" {
		match = append(match, sq.Eq{"username": username})
	}
	if email != "" {
		match = append(match, sq.Eq{"email": email})
	}
	if len(match) == 0 {
		return nil
	}

	b := psql.Select("username", "email").From(userTable).Where(match).Limit(1)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		b = b.Where(sq.NotEq{"id": validIDs(ids)})
	}

	var found struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	if err := repo.get(ctx, exec, &found, b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && found.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = newID()
	r := boilUser(usr)
	b := psql.Insert(userTable).Columns(userColumns...).Values(
		r.ID, r.SchoolID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash,
		r.CreatedAt, r.UpdatedAt, r.LastLogin,
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

// rolesCond matches users holding any of the roles. Group roles ("admin:") match by prefix.
func rolesCond(roles []string) sq.Or {
	or := make(sq.Or, 0, len(roles))
	for _, role := range roles {
		if strings.HasSuffix(role, ":") {
			or = append(or, sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)", escapeLike(role)+"%"))
		} else {
			or = append(or, sq.Expr("? = ANY(roles)", role))
		}
	}
	return or
}

func (repo userRepository) QueryUsers(ctx context.Context, schoolID string, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	if !validID(schoolID) {
		return []user.User{}, nil
	}
	b := psql.Select(userColumns...).From(userTable).
		Where("school_id = ?", schoolID).
		OrderBy(orderBy(ordering, userOrderings, core.DBOrdering{Field: "name", Ascending: true}))

	if filter != nil {
		if filter.Search != "" {
			b = b.Where(ilike(filter.Search, "name", "username", "email"))
		}
		if len(filter.Roles) > 0 {
			b = b.Where(rolesCond(filter.Roles))
		}
		if filter.IsActive != nil {
			b = b.Where("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			b = b.Where("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			b = b.Where("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	var rows []userRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.unboil())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	b := psql.Select(userColumns...).From(userTable)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		b = b.Where("id = ?", filter.ID)
	case filter.Username != "":
		b = b.Where("username = ?", filter.Username)
	case filter.Email != "":
		b = b.Where("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		b = b.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}
	if filter.SchoolID != "" {
		if !validID(filter.SchoolID) {
			return user.User{}, user.ErrNotFound
		}
		b = b.Where("school_id = ?", filter.SchoolID)
	}

	var row userRow
	if err := repo.get(ctx, exec, &row, b.Limit(1)); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.unboil(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	r := boilUser(usr)
	b := psql.Update(userTable).SetMap(map[string]interface{}{
		"name":          r.Name,
		"username":      r.Username,
		"email":         r.Email,
		"is_active":     r.IsActive,
		"roles":         r.Roles,
		"password_hash": r.PasswordHash,
		"updated_at":    r.UpdatedAt,
		"last_login":    r.LastLogin,
	}).Where("id = ?", usr.ID)
	if err := repo.mustAffect(ctx, exec, b, user.ErrNotFound, "updating user"); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 || !validID(schoolID) {
		return 0, nil
	}
	b := psql.Delete(userTable).Where(sq.Eq{"school_id": schoolID, "id": ids})
	n, err := repo.execute(ctx, exec, b)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(n), nil
}

type roleGroupCount struct {
	Group string `boil:"role_group"`
	Count int    `boil:"count"`
}

func (repo userRepository) CountByRoleGroup(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error) {
	counts := make(map[string]int)
	if !validID(schoolID) {
		return counts, nil
	}

	// a user holding several roles of one group counts once
	b := psql.Select("split_part(user_role, ':', 1) AS role_group", "COUNT(DISTINCT id) AS count").
		From(userTable + ", UNNEST(roles) user_role").
		Where(sq.Eq{"school_id": schoolID, "is_active": true}).
		GroupBy("role_group")

	var rows []roleGroupCount
	if err := repo.bind(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "counting users by role group")
	}
	for _, r := range rows {
		counts[r.Group] = r.Count
	}
	return counts, nil
}
