package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesCoverEngineTables(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])

	body, err := Read(names[0])
	require.NoError(t, err)
	for _, table := range []string{
		"products", "stock_movements", "sales_documents", "sales_document_lines", "sales_annulments",
		"document_sequences", "workshop_orders", "workshop_consumptions", "mechanic_drawer_items",
		"audit_logs", "idempotency_keys",
	} {
		assert.Contains(t, body, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
