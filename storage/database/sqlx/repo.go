package sqlxrepos

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
)

// MySQL error numbers
const (
	mysqlDupEntry        = 1062
	mysqlRowIsReferenced = 1451
)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps "no rows" errors to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// checkAffected returns notFound when res matched no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDupEntry
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isReferenced(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlRowIsReferenced
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// whereClause accumulates AND-ed conditions and their arguments.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// in adds "col IN (...)"; sqlx expands the slice.
func (w *whereClause) in(col string, values interface{}) {
	w.add(col+" IN (?)", values)
}

func (w *whereClause) like(value string, cols ...string) {
	val := "%" + escapeLike(value) + "%"
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, col+" LIKE ? ESCAPE '!'")
		w.args = append(w.args, val)
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
}

func joinOr(conds []string) string {
	return strings.Join(conds, " OR ")
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// build assembles the query and expands IN clauses.
func (w *whereClause) build(base string, ordering []core.DBOrdering, defaultOrder string) (string, []interface{}, error) {
	q := base + w.String() + orderBy(ordering, defaultOrder)
	if len(w.args) == 0 {
		return q, nil, nil
	}
	return sqlx.In(q, w.args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

func orderBy(ordering []core.DBOrdering, defaultOrder string) string {
	if len(ordering) == 0 {
		if defaultOrder == "" {
			return ""
		}
		return " ORDER BY " + defaultOrder
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

// stringList is a []string stored as a JSON array.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *stringList) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into stringList", src)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, (*[]string)(l))
}
