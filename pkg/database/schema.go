package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
)

// SchemaValidator checks that the live database matches what the directory
// queries expect.
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check.
func (v *SchemaValidator) Validate(ctx context.Context) error {
	if err := v.ValidateTablesExist(ctx); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(ctx); err != nil {
		return err
	}
	return v.ValidateIndexes(ctx)
}

func (v *SchemaValidator) ValidateTablesExist(ctx context.Context) error {
	for _, table := range []string{"users", "schema_migrations"} {
		exists, err := v.objectExists(ctx, "table", table)
		if err != nil {
			return errors.Wrapf(err, "check table %s", table)
		}
		if !exists {
			return errors.Newf("required table %s does not exist", table)
		}
	}
	return nil
}

func (v *SchemaValidator) ValidateTableStructure(ctx context.Context) error {
	userColumns := map[string]string{
		"id":               "TEXT",
		"name":             "TEXT",
		"role":             "TEXT",
		"establishment_id": "TEXT",
		"created_at":       "DATETIME",
		"updated_at":       "DATETIME",
	}
	if err := v.validateColumns(ctx, "users", userColumns); err != nil {
		return errors.Wrap(err, "users table structure invalid")
	}
	return nil
}

func (v *SchemaValidator) ValidateIndexes(ctx context.Context) error {
	exists, err := v.objectExists(ctx, "index", "idx_users_establishment")
	if err != nil {
		return errors.Wrap(err, "check index idx_users_establishment")
	}
	if !exists {
		return errors.New("required index idx_users_establishment does not exist")
	}
	return nil
}

func (v *SchemaValidator) validateColumns(ctx context.Context, table string, expected map[string]string) error {
	// PRAGMA arguments cannot be bound; table names here are constants.
	rows, err := v.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid        int
			name, kind string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
			return err
		}
		found[name] = strings.ToUpper(kind)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, kind := range expected {
		got, ok := found[column]
		if !ok {
			return errors.Newf("column %s.%s is missing", table, column)
		}
		if got != kind {
			return errors.Newf("column %s.%s has type %s, want %s", table, column, got, kind)
		}
	}
	return nil
}

func (v *SchemaValidator) objectExists(ctx context.Context, kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
