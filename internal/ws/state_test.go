package ws_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-kmslab/internal/kms"
	"github.com/coreman2200/funtimes-kmslab/internal/kms/fake"
	"github.com/coreman2200/funtimes-kmslab/internal/ws"
)

func TestHandleHealth(t *testing.T) {
	d, err := kms.NewDisplay(fake.NewUniversal())
	require.NoError(t, err)
	s := ws.NewState(d, "sim", kms.CommitUniversal)
	s.NoteCommit()
	s.NoteCommit()

	rec := httptest.NewRecorder()
	s.HandleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sim", resp["driver"])
	assert.Equal(t, "universal", resp["style"])
	assert.Equal(t, float64(2), resp["commits"])
	assert.Equal(t, float64(3), resp["pipes"])
}
