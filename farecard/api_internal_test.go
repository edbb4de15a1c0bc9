package farecard

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	api := NewAPI(NewService(NewRepository(), nil, WithLogger(logger)))

	w := httptest.NewRecorder()
	api.writeJSON(w, http.StatusOK, map[string]any{"updates": make(chan int)})

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, logs.String(), "encoding response")
	require.Contains(t, logs.String(), "status=200")
}
