package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithPrincipal(context.Background(), Principal{UserID: 9, Username: "caja", CashierAuthority: true})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(9), p.UserID)
	assert.True(t, p.CashierAuthority)

	ctx = ContextWithPrincipal(context.Background(), Principal{})
	_, ok = PrincipalFromContext(ctx)
	assert.False(t, ok)
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 500, 120)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 40, Offset(3, 20))
}

func TestParseIdempotencyKey(t *testing.T) {
	key, err := ParseIdempotencyKey("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", key)

	_, err = ParseIdempotencyKey("not-a-key")
	assert.ErrorIs(t, err, ErrInvalidIdempotencyKey)
}

func TestAuditLogValidate(t *testing.T) {
	assert.Error(t, AuditLog{Action: "finalize"}.Validate())
	assert.NoError(t, AuditLog{Action: "finalize", Entity: "sales_document", EntityID: "1"}.Validate())
}
