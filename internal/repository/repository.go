// Package repository is the checkout attempt journal and its outbox.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrAttemptNotFound = errors.New("checkout attempt not found")
	ErrDuplicateOrder  = errors.New("checkout attempt for this order number already exists")
	ErrUnknownDriver   = errors.New("unknown database driver")
)

// Credentials configures the Postgres journal.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c Credentials) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		sslMode)
}

type Repository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Journal records checkout attempts and queues their events.
type Journal interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	UpdateStatus(ctx context.Context, orderNumber string, u StatusUpdate) (*Attempt, error)
	GetAttempt(ctx context.Context, orderNumber string) (*Attempt, error)
	ScheduleClear(ctx context.Context, orderNumber string, at time.Time) error
}

// Outbox is the publisher's view of the journal.
type Outbox interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
	GetStaleAttempts(ctx context.Context, cutoff time.Time, limit int) ([]*Attempt, error)
	UpdateStatus(ctx context.Context, orderNumber string, u StatusUpdate) (*Attempt, error)
}

// NewPostgresRepository opens and pings a Postgres journal.
func NewPostgresRepository(cred Credentials) (*Repository, error) {
	db, err := sql.Open("postgres", cred.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &Repository{db: db, driver: DriverPostgres, now: time.Now}, nil
}

// NewSQLiteRepository opens an SQLite journal. ":memory:" is supported; the
// pool is capped at one connection so every query sees the same database.
func NewSQLiteRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	return &Repository{db: db, driver: DriverSQLite, now: time.Now}, nil
}

// Open picks the journal implementation by driver name.
func Open(driver, sqlitePath string, cred Credentials) (*Repository, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresRepository(cred)
	case DriverSQLite, "":
		return NewSQLiteRepository(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func (r *Repository) Driver() string {
	return r.driver
}

func (r *Repository) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch r.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, r.driver)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+r.driver)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, r.driver, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
