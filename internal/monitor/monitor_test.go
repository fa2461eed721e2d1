package monitor

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamingVendor serves its body across several flushed writes, the shape
// Monitor Mode's pass-through must forward without waiting for the full
// response to arrive.
func streamingVendor(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			flusher.Flush()
		}
	}))
}

func TestHandler_ServeHTTP_StreamsVendorResponseUnchanged(t *testing.T) {
	chunks := []string{
		`event: message_start` + "\n" + `data: {"id":"msg_abc123"}` + "\n\n",
		`event: message_stop` + "\n" + `data: {"type":"message_stop"}` + "\n\n",
	}
	vendor := streamingVendor(t, chunks)
	defer vendor.Close()

	h, err := New(vendor.URL, "test-key", t.TempDir(), slog.Default())
	require.NoError(t, err)
	defer h.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude"}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strings.Join(chunks, ""), rec.Body.String())
}

func TestHandler_ServeHTTP_RecordsRedactedFixture(t *testing.T) {
	vendor := streamingVendor(t, []string{`{"id":"msg_abc123","message":{"id":"msg_abc123"}}`})
	defer vendor.Close()

	dir := t.TempDir()
	h, err := New(vendor.URL, "test-key", dir, slog.Default())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude"}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	require.NoError(t, h.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "fixtures"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, "fixtures", entries[0].Name()))
	require.NoError(t, err)

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	require.True(t, scanner.Scan())
	line := scanner.Text()

	assert.Contains(t, line, `"redacted"`)
	assert.NotContains(t, line, "msg_abc123")
}

func TestRedactDynamicIDs_ReplacesIDFields(t *testing.T) {
	out, err := redactDynamicIDs([]byte(`{"id":"msg_1","message":{"id":"msg_1"}}`))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "msg_1")
	assert.Contains(t, string(out), `"redacted"`)
}
