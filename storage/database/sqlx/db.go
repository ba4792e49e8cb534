// Package sqlxrepos implements the domain repositories on PostgreSQL.
// Queries are built with squirrel and scanned with sqlx; aggregates are bound with sqlboiler's raw queries.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/databayt/hogwarts-sub013/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// newID is swapped in tests.
var newID = func() string { return uuid.New().String() }

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo repository) get(ctx context.Context, exec []core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return repo.getExec(exec).GetContext(ctx, dest, query, args...)
}

func (repo repository) selectAll(ctx context.Context, exec []core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return repo.getExec(exec).SelectContext(ctx, dest, query, args...)
}

// execute runs an INSERT, UPDATE or DELETE and returns the number of affected rows.
func (repo repository) execute(ctx context.Context, exec []core.DBExecutor, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// mustAffect maps "0 rows affected" to notFound.
func (repo repository) mustAffect(ctx context.Context, exec []core.DBExecutor, b sq.Sqlizer, notFound error, msg string) error {
	n, err := repo.execute(ctx, exec, b)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// bind runs a raw aggregate query and binds its rows into dest (a struct or slice of structs with `boil` tags).
func (repo repository) bind(ctx context.Context, exec []core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	boilExec, ok := repo.getExec(exec).(boil.ContextExecutor)
	if !ok {
		return errors.New("executor does not support raw queries")
	}
	return queries.Raw(query, args...).Bind(ctx, boilExec, dest)
}

// exists wraps a SELECT into SELECT EXISTS (...).
func exists(b sq.SelectBuilder) sq.SelectBuilder {
	return b.Prefix("SELECT EXISTS (").Suffix(")")
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

const uniqueViolation = "23505"

// trapUniqueErr maps a unique_violation to conflict
func trapUniqueErr(err error, conflict error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return conflict
	}
	return errors.Wrap(err, msg)
}

// validID keeps malformed IDs from reaching uuid columns, where they would fail with a syntax error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// orderBy renders the first ordering whose field is whitelisted, falling back to dflt.
func orderBy(ordering []core.DBOrdering, allowed []string, dflt core.DBOrdering) string {
	ord := dflt
	for _, o := range ordering {
		if core.ContainsString(allowed, o.Field) {
			ord = o
			break
		}
	}
	ord.Field = strmangle.IdentQuote('"', '"', ord.Field)
	return ord.String()
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

func ilike(keyword string, columns ...string) sq.Or {
	pattern := "%" + escapeLike(keyword) + "%"
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.ILike{col: pattern})
	}
	return or
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullTimePtr(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
