package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migmysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migsqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/superagent-run/superagent/config"
)

// Versioned SQL for the sessions/checkpoints tables SQLStore owns, one
// tree per dialect since column types for JSON/timestamps differ across
// Postgres, MySQL and SQLite. NewSQLStore's AutoMigrate path covers local
// development and tests; Migrator gives operators the explicit up/down/
// version history a production rollout needs instead of relying on
// GORM to reconcile schema drift at every boot.
//
//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlMigrationsFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

// Migrator drives golang-migrate against one of the three supported
// database drivers, selected by config.DatabaseConfig.Driver.
type Migrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

// NewMigrator opens its own *sql.DB connection (separate from any
// SQLStore/gorm.DB already open against the same database) and binds it
// to the embedded migrations for cfg.Driver.
func NewMigrator(cfg config.DatabaseConfig) (*Migrator, error) {
	var (
		driverName string
		fsys       fs.FS
		path       string
		dbDriver   database.Driver
	)

	db, err := openRawDB(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "postgres":
		driverName = cfg.Driver
		fsys, path = postgresMigrationsFS, "migrations/postgres"
		dbDriver, err = migpostgres.WithInstance(db, &migpostgres.Config{})
	case "mysql":
		driverName = cfg.Driver
		fsys, path = mysqlMigrationsFS, "migrations/mysql"
		dbDriver, err = migmysql.WithInstance(db, &migmysql.Config{})
	case "sqlite", "":
		driverName = "sqlite3"
		fsys, path = sqliteMigrationsFS, "migrations/sqlite"
		dbDriver, err = migsqlite3.WithInstance(db, &migsqlite3.Config{})
	default:
		db.Close()
		return nil, fmt.Errorf("persistence: unsupported migration driver %q", cfg.Driver)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(fsys, path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driverName, dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init migrate instance: %w", err)
	}

	return &Migrator{db: db, m: m}, nil
}

func openRawDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case "postgres":
		driverName, dsn = "postgres", cfg.DSN()
	case "mysql":
		driverName, dsn = "mysql", cfg.DSN()
	case "sqlite", "":
		driverName = "sqlite3"
		dsn = cfg.DSN()
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
	default:
		return nil, fmt.Errorf("persistence: unsupported migration driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping %s: %w", driverName, err)
	}
	return db, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("persistence: migrate up: %w", err)
	}
	return nil
}

// Down rolls back exactly one migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("persistence: migrate down: %w", err)
	}
	return nil
}

// Version reports the current schema version, and whether the last
// migration left the database in a dirty (partially applied) state.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("persistence: migrate version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migrator's own database connection. It does not
// touch any *gorm.DB a caller may also have open against the same
// database.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.m.Close()
	if sourceErr != nil {
		return sourceErr
	}
	if dbErr != nil {
		return dbErr
	}
	return nil
}
