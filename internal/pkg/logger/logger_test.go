package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestInfo_WritesJSONAndRedacts(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("invitation sent", "email", "pastor@church.org", "err", errors.New("bounce for deacon@church.org"), "count", 3)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "invitation sent", got["msg"])
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "pa***@church.org", got["email"])
	assert.Equal(t, "bounce for de***@church.org", got["err"])
	assert.EqualValues(t, 3, got["count"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		SetOutput(os.Stderr)
		_ = SetLevel("info")
	}()

	require.NoError(t, SetLevel("warn"))
	Info("hidden")
	assert.Zero(t, buf.Len())

	assert.Error(t, SetLevel("loud"))
}
