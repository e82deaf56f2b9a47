package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpsertSQL(t *testing.T) {
	sql := buildUpsertSQL(UpsertConfig{
		Table:        "jobs",
		Columns:      []string{"uniq_hash", "title", "company"},
		ConflictKeys: []string{"uniq_hash"},
	})

	assert.Equal(t,
		"INSERT INTO jobs (uniq_hash, title, company) VALUES ($1, $2, $3) "+
			"ON CONFLICT (uniq_hash) DO UPDATE SET title = EXCLUDED.title, company = EXCLUDED.company",
		sql,
	)
}

func TestUpsert_EmptyRows(t *testing.T) {
	n, err := Upsert(context.Background(), nil, UpsertConfig{Table: "jobs"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsert_ConfigValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = Upsert(context.Background(), mock, UpsertConfig{Table: "jobs"}, [][]any{{1}})
	assert.Error(t, err)

	_, err = Upsert(context.Background(), mock, UpsertConfig{Table: "jobs", Columns: []string{"a"}}, [][]any{{1}})
	assert.Error(t, err)
}

func TestUpsert_CountsWrittenRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "jobs",
		Columns:      []string{"uniq_hash", "title"},
		ConflictKeys: []string{"uniq_hash"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("h1", "Job A").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("h2", "Job B").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := Upsert(context.Background(), mock, cfg, [][]any{
		{"h1", "Job A"},
		{"h2", "Job B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RowWidthMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	cfg := UpsertConfig{Table: "jobs", Columns: []string{"a", "b"}, ConflictKeys: []string{"a"}}
	_, err = Upsert(context.Background(), mock, cfg, [][]any{{"only-one"}})
	assert.Error(t, err)
}
