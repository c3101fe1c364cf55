package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"github.com/smallbiznis/licensor/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&productdomain.Product{},
		&productdomain.Package{},
		&licensedomain.License{},
		&licensedomain.Activation{},
		&auditdomain.AuditLog{},
		&subscriptionsyncdomain.Event{},
		&csvuploaddomain.Job{},
	}
}

// Run brings the schema up to date. Postgres uses the versioned SQL files;
// sqlite and mysql fall back to AutoMigrate for local development.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != db.DialectPostgres {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
