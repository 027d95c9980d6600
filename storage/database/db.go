package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/podesk/core"
	appfs "github.com/trezcool/podesk/fs"
)

// Engines
const (
	MySQL  = "mysql"
	SQLite = "sqlite"
)

func mysqlDSN(dbName string, admin bool, conf *core.Config) string {
	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = conf.Database.Address()
	c.User, c.Passwd = conf.Database.User, conf.Database.Password
	if admin && conf.Database.AdminUser != "" {
		c.User, c.Passwd = conf.Database.AdminUser, conf.Database.AdminPassword
	}
	c.DBName = dbName
	c.InterpolateParams = admin // account names cannot be prepared statement parameters
	c.ParseTime = true
	c.ClientFoundRows = true // UPDATE reports matched rows, as sqlite does
	c.Loc = time.UTC
	c.MultiStatements = true // migrations
	c.Params = map[string]string{"charset": "utf8mb4", "time_zone": "'+00:00'"}
	if !conf.Database.DisableTLS {
		c.TLSConfig = "true"
	}
	return c.FormatDSN()
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case MySQL:
		db, err := sqlx.Open("mysql", mysqlDSN(dbName, admin, conf))
		if err != nil {
			return nil, err
		}
		if conf.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(conf.Database.MaxOpenConns)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		return db, nil
	case SQLite:
		db, err := sqlx.Open("sqlite", conf.Database.Path)
		if err != nil {
			return nil, err
		}
		// one writer; also keeps an in-memory database alive across queries
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

// Open opens the application database and waits for it to be reachable.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// quoteIdent quotes a MySQL identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func createAppUser(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" || conf.Database.User == conf.Database.AdminUser {
		return nil
	}

	var exists bool
	q := "SELECT EXISTS (SELECT 1 FROM mysql.user WHERE user = ?)"
	if err := db.GetContext(ctx, &exists, q, conf.Database.User); err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !exists {
		if _, err := db.ExecContext(ctx, "CREATE USER ?@'%' IDENTIFIED BY ?", conf.Database.User, conf.Database.Password); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}

	grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO ?@'%%'", quoteIdent(conf.Database.Name))
	if _, err := db.ExecContext(ctx, grant, conf.Database.User); err != nil {
		return errors.Wrap(err, "granting privileges")
	}
	return nil
}

func createDB(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	q := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		quoteIdent(conf.Database.Name))
	if _, err := db.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the MySQL database and app user, connecting as the admin user.
// SQLite databases are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine != MySQL {
		return nil
	}

	db, err := open("", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	ctx := context.Background()
	if err = createDB(ctx, db, conf); err != nil {
		return err
	}
	return createAppUser(ctx, db, conf)
}

var gooseDialects = map[string]string{
	MySQL:  "mysql",
	SQLite: "sqlite3",
}

func setupGoose(engine string) (string, error) {
	dialect, ok := gooseDialects[engine]
	if !ok {
		return "", errors.Errorf("unsupported database engine %q", engine)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", errors.Wrap(err, "setting migration dialect")
	}
	goose.SetBaseFS(appfs.FS)
	return path.Join(appfs.MigrationsDir, engine), nil
}

// Migrate applies all pending migrations.
func Migrate(db *sqlx.DB, engine string) error {
	return RunMigrations(db, engine, "up")
}

// RunMigrations runs a goose command (up, down, status, redo, reset, version, up-to, down-to...).
func RunMigrations(db *sqlx.DB, engine, command string, args ...string) error {
	dir, err := setupGoose(engine)
	if err != nil {
		return err
	}
	if err = goose.Run(command, db.DB, dir, args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}

// Migrations lists the embedded migration files of engine.
func Migrations(engine string) ([]string, error) {
	return fs.Glob(appfs.FS, path.Join(appfs.MigrationsDir, engine, "*.sql"))
}
