package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/clypser/finance-bot/internal/logger"
	"google.golang.org/api/iterator"
)

const migrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// migrationPattern matches migration files named like 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// EmbeddedMigrations returns the migrations shipped with the binary.
func EmbeddedMigrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// LoadMigrations reads the migrations at the root of fsys, sorted by
// version. {{PROJECT_ID}} and {{DATASET_ID}} placeholders are filled in; the
// checksum covers the file before substitution so it does not change between
// projects. Files that don't match the naming pattern are skipped.
func LoadMigrations(fsys fs.FS, projectID, datasetID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("LoadMigrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("LoadMigrations: version %04d used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("LoadMigrations: reading %s: %w", entry.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// PendingMigrations returns the migrations whose version has not been
// applied. A changed checksum on an applied version is reported as drifted.
func PendingMigrations(all []Migration, applied []AppliedMigration) (pending []Migration, drifted []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	for _, m := range all {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			drifted = append(drifted, m)
		}
	}
	return pending, drifted
}

// MigrateWithClient creates the dataset's tables by applying every pending
// migration from fsys in version order. It returns the number applied.
func MigrateWithClient(ctx context.Context, client *bigquery.Client, datasetID string, fsys fs.FS, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := ensureMigrationsTable(ctx, client, datasetID); err != nil {
		return 0, fmt.Errorf("MigrateWithClient: %w", err)
	}

	all, err := LoadMigrations(fsys, client.Project(), datasetID)
	if err != nil {
		return 0, fmt.Errorf("MigrateWithClient: %w", err)
	}

	applied, err := appliedMigrations(ctx, client, datasetID)
	if err != nil {
		return 0, fmt.Errorf("MigrateWithClient: %w", err)
	}

	pending, drifted := PendingMigrations(all, applied)
	for _, m := range drifted {
		log.Warn().Str("migration", m.Filename).Msg("applied migration has changed since it ran")
	}

	for _, m := range pending {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		if err := runDML(ctx, client.Query(m.SQL)); err != nil {
			return 0, fmt.Errorf("MigrateWithClient: %s: %w", m.Filename, err)
		}
		if err := recordMigration(ctx, client, datasetID, m, appliedBy); err != nil {
			return 0, fmt.Errorf("MigrateWithClient: recording %s: %w", m.Filename, err)
		}
	}

	return len(pending), nil
}

// Migrate applies the embedded migrations with the shared client.
func (r *Repository) Migrate(ctx context.Context, appliedBy string) (int, error) {
	return MigrateWithClient(ctx, r.client, r.datasetID, EmbeddedMigrations(), appliedBy)
}

func ensureMigrationsTable(ctx context.Context, client *bigquery.Client, datasetID string) error {
	schema := client.Query(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS `%s.%s`", client.Project(), datasetID))
	if err := runDML(ctx, schema); err != nil {
		return fmt.Errorf("ensure dataset %s: %w", datasetID, err)
	}

	q := client.Query(`
		CREATE TABLE IF NOT EXISTS ` + tableRef(client, datasetID, migrationsTable) + ` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`)
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("ensure %s: %w", migrationsTable, err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, client *bigquery.Client, datasetID string) ([]AppliedMigration, error) {
	q := client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + tableRef(client, datasetID, migrationsTable) + `
		ORDER BY version ASC
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate applied migrations: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

func recordMigration(ctx context.Context, client *bigquery.Client, datasetID string, m Migration, appliedBy string) error {
	q := client.Query(`
		INSERT INTO ` + tableRef(client, datasetID, migrationsTable) + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runDML(ctx, q)
}
