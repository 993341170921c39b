package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	h, err := Open("sqlite", "file::memory:", Options{})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Migrate())
	// druga migracja nie może się wywalić
	require.NoError(t, h.Migrate())

	m := h.DB.Migrator()
	for _, table := range []string{"brand_category_mappings", "cir_classifications", "cir_segments", "import_batches", "change_log", "kv"} {
		assert.True(t, m.HasTable(table), table)
	}
	assert.True(t, m.HasIndex(&BrandMapping{}, "uniq_mapping_key"))
	assert.Equal(t, "sqlite", h.Driver)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x", Options{})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestImportBatch_Terminal(t *testing.T) {
	assert.False(t, (&ImportBatch{Status: BatchPending}).Terminal())
	assert.False(t, (&ImportBatch{Status: BatchProcessing}).Terminal())
	assert.True(t, (&ImportBatch{Status: BatchCompleted}).Terminal())
	assert.True(t, (&ImportBatch{Status: BatchFailed}).Terminal())
}
