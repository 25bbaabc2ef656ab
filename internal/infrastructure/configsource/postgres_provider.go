package configsource

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresProvider reads the most recent row of config_snapshots, applied at
// bootstrap via the embedded goose migration set.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider opens a pool against dsn and applies pending goose
// migrations for the config_snapshots table.
func NewPostgresProvider(ctx context.Context, dsn string) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"failed to open postgres config snapshot pool",
			err,
		)
	}

	if err := Migrate(dsn); err != nil {
		pool.Close()
		return nil, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"failed to apply config snapshot migrations",
			err,
		)
	}

	return &PostgresProvider{pool: pool}, nil
}

// Migrate applies every pending migration. goose drives schema changes
// through database/sql, so it opens its own *sql.DB against dsn via the
// pgx stdlib driver rather than reusing the pgxpool connection pool.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (p *PostgresProvider) GetSnapshot(ctx context.Context) (ports.Snapshot, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT config_version, patch_json, updated_at
		FROM config_snapshots
		ORDER BY config_version DESC
		LIMIT 1
	`)

	var snapshot ports.Snapshot
	var updatedAt time.Time
	if err := row.Scan(&snapshot.ConfigVersion, &snapshot.PatchJSON, &updatedAt); err != nil {
		return ports.Snapshot{}, rockestraerr.Wrap(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotUnavailable,
			"no config snapshot row available",
			err,
		)
	}
	snapshot.Source = "postgres"
	snapshot.TimestampUTC = updatedAt.UTC()
	return snapshot, nil
}

// Close releases the pool.
func (p *PostgresProvider) Close() { p.pool.Close() }

var _ ports.ConfigSnapshotProvider = (*PostgresProvider)(nil)
