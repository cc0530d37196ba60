package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrateUp applies the embedded migrations on a dedicated connection, since
// closing a migrate instance also closes its database handle.
func migrateUp(d dialect, connStr string) error {
	db, err := sql.Open(d.name, connStr)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+d.migrations)
	if err != nil {
		db.Close()
		return fmt.Errorf("loading migrations: %w", err)
	}

	var driver database.Driver
	switch d.name {
	case "sqlite":
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case "pgx":
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("creating %s migration driver: %w", d.name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.name, driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := checkDrift(m, src); err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// checkDrift refuses a dirty schema or one at a version this binary does not
// ship.
func checkDrift(m *migrate.Migrate, src source.Driver) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w: version %d is dirty", ErrSchemaDrift, version)
	}
	r, _, err := src.ReadUp(version)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: database at version %d is unknown to this build", ErrSchemaDrift, version)
	}
	if err != nil {
		return fmt.Errorf("reading migration %d: %w", version, err)
	}
	r.Close()
	return nil
}
