package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUsesServiceKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "lockboxd", "test", slog.LevelInfo)
	logger.Info("transaction committed", slog.String("op", "open-request"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "transaction committed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "lockboxd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestMaskFieldRedactsSecrets(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("privateKey", "deadbeef").Value.String())
	require.Equal(t, "open-request", MaskField("op", "open-request").Value.String())
	require.Equal(t, "", MaskField("privateKey", "").Value.String())
	require.Equal(t, "r-1", MaskField("requestId", "r-1").Value.String())
	require.Equal(t, "lb-1", MaskField("LockboxID", "lb-1").Value.String())
	for _, key := range RedactionAllowlist() {
		require.Equal(t, strings.ToLower(key), key)
	}
}

func TestMaskJSONHidesSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "lockboxd", "test", slog.LevelDebug)
	payload := []byte(`{"requestId":"r-1","privateKey":"c0ffee","version":{"versionId":"v2","shareHashes":["ab"]}}`)
	logger.Debug("transaction received", slog.Group("payload", MaskJSON(payload)...))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	got := line["payload"].(map[string]any)
	require.Equal(t, "r-1", got["requestId"])
	require.Equal(t, RedactedValue, got["privateKey"])
	version := got["version"].(map[string]any)
	require.Equal(t, "v2", version["versionId"])
	require.Equal(t, RedactedValue, version["shareHashes"])

	attrs := MaskJSON([]byte("not json"))
	require.Len(t, attrs, 1)
	require.Equal(t, RedactedValue, attrs[0].(slog.Attr).Value.String())
}

func TestSetupWithFileWritesRotatedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockboxd.log")
	logger, closer := SetupWithFile("lockboxd", "", FileOptions{Path: path})
	t.Cleanup(func() { _ = closer.Close() })
	logger.Warn("disk check")
	require.FileExists(t, path)
}
