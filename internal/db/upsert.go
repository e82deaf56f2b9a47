package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters of a keyed upsert.
type UpsertConfig struct {
	Table        string   // target table
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
}

// Upsert writes rows with INSERT ... ON CONFLICT ... DO UPDATE inside one
// transaction: the later write wins on conflicting keys. It returns the
// number of rows the database reports as written (inserts plus updates;
// conflicting rows are never double-counted).
func Upsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	sql := buildUpsertSQL(cfg)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	written := 0
	for _, row := range rows {
		if len(row) != len(cfg.Columns) {
			return 0, eris.Errorf("db: upsert: row has %d values, want %d", len(row), len(cfg.Columns))
		}
		tag, execErr := tx.Exec(ctx, sql, row...)
		if execErr != nil {
			return 0, eris.Wrapf(execErr, "db: upsert into %s", cfg.Table)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit")
	}
	return written, nil
}

// buildUpsertSQL renders the INSERT ... ON CONFLICT statement for one row.
func buildUpsertSQL(cfg UpsertConfig) string {
	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}

	placeholders := make([]string, len(cfg.Columns))
	var updates []string
	for i, col := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if !conflictSet[col] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		cfg.Table,
		strings.Join(cfg.Columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(cfg.ConflictKeys, ", "),
		strings.Join(updates, ", "),
	)
}
