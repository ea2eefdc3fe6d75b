package identity

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/gita-reflect/internal/shared"
)

func TestNormalizeSessionID(t *testing.T) {
	id, err := NormalizeSessionID("  s1 ")
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	generated, err := NormalizeSessionID("")
	require.NoError(t, err)
	_, err = uuid.Parse(generated)
	assert.NoError(t, err)

	for _, bad := range []string{"has space", "slash/es", strings.Repeat("a", 129), "ünicode"} {
		_, err := NormalizeSessionID(bad)
		assert.ErrorIs(t, err, shared.ErrInvalidInput, bad)
	}
}

func TestInvalidSessionIDErrorKeepsRunes(t *testing.T) {
	_, err := NormalizeSessionID(strings.Repeat("ā", 40))
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.Contains(t, err.Error(), strings.Repeat("ā", 32)+"...")
	assert.NotContains(t, err.Error(), strings.Repeat("ā", 33))
}

func TestNewSessionIDUnique(t *testing.T) {
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestSessionIDContext(t *testing.T) {
	assert.Empty(t, SessionIDFromContext(context.Background()))
	ctx := WithSessionID(context.Background(), "abc")
	assert.Equal(t, "abc", SessionIDFromContext(ctx))
}

func TestRequestHelpers(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/conversations", nil)
	r.Header.Set(SessionHeaderName, " tab-1 ")
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "tab-1", SessionIDFromRequest(r))
	assert.Equal(t, "10.0.0.7", IPFromRequest(r))

	r.RemoteAddr = "not-a-hostport"
	assert.Equal(t, "not-a-hostport", IPFromRequest(r))
}
