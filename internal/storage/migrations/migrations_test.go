package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- header comment
CREATE TABLE a (x Int64) ENGINE = Memory;

CREATE TABLE b (s String DEFAULT 'it''s') ENGINE = Memory;
`
	stmts, err := SplitStatements(input)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int64) ENGINE = Memory", stmts[0])
	assert.Contains(t, stmts[1], "'it''s'")
}

func TestSplitStatements_RejectsSemicolonInLiteral(t *testing.T) {
	_, err := SplitStatements("SELECT 'a;b';")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsSorted(t *testing.T) {
	files, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_participants.sql", files[0])

	chFiles, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, chFiles, 1)

	data, err := ClickhouseFS.ReadFile("clickhouse/" + chFiles[0])
	require.NoError(t, err)
	stmts, err := SplitStatements(string(data))
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
