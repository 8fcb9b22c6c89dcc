package serve

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/sigscan/pkg/ruleset"
	"github.com/scanforge/sigscan/pkg/scan"
	"github.com/scanforge/sigscan/pkg/types"
)

const eicarRule = `rule EICAR : test
{
    strings:
        $a = "X5O!P%@AP"
    condition:
        $a
}
`

func newService(t *testing.T) *scan.Service {
	t.Helper()
	store, err := ruleset.NewStore(ruleset.Source{Name: "test", Text: eicarRule})
	require.NoError(t, err)
	return scan.New(store, time.Minute)
}

// runRequests feeds NDJSON requests through a server and returns the
// response lines (including the initial ready line).
func runRequests(t *testing.T, svc *scan.Service, requests ...string) []string {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	out := &strings.Builder{}

	srv := NewServer(svc, in, out)
	require.NoError(t, srv.Run(context.Background()))

	return strings.Split(strings.TrimSpace(out.String()), "\n")
}

func decodeResponse(t *testing.T, line string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestServer_Ready(t *testing.T) {
	lines := runRequests(t, newService(t))
	require.Len(t, lines, 1)

	resp := decodeResponse(t, lines[0])
	assert.True(t, resp.Success)
	assert.Equal(t, "ready", resp.Type)

	var ready ReadyData
	require.NoError(t, json.Unmarshal(resp.Data, &ready))
	assert.Equal(t, Version, ready.Version)
}

func TestServer_Scan(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("X5O!P%@AP"))
	lines := runRequests(t, newService(t),
		`{"type":"scan","payload":{"content":"`+content+`"}}`)
	require.Len(t, lines, 2)

	resp := decodeResponse(t, lines[1])
	require.True(t, resp.Success)
	assert.Equal(t, "scan", resp.Type)

	var result types.ScanResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Len(t, result.Records, 1)
	assert.Equal(t, "EICAR", result.Records[0].SignatureID)
	assert.Equal(t, "0", result.Records[0].Matches[0].Offset)
	assert.Equal(t, []byte("X5O!P%@AP"), result.Records[0].Matches[0].Value)
}

func TestServer_ScanNoFindings(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("clean"))
	lines := runRequests(t, newService(t),
		`{"type":"scan","payload":{"content":"`+content+`"}}`)
	require.Len(t, lines, 2)

	resp := decodeResponse(t, lines[1])
	require.True(t, resp.Success)
	// Empty record list, not a missing field: the scan executed.
	assert.Contains(t, string(resp.Data), `"records":[]`)
}

func TestServer_ScanUnknownAlternate(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("x"))
	lines := runRequests(t, newService(t),
		`{"type":"scan","payload":{"content":"`+content+`","ruleset":"absent"}}`)
	require.Len(t, lines, 2)

	resp := decodeResponse(t, lines[1])
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not found")
}

func TestServer_Status(t *testing.T) {
	store, err := ruleset.NewStore(ruleset.Source{Name: "test", Text: eicarRule})
	require.NoError(t, err)
	require.NoError(t, store.LoadNamed("extra", ruleset.Source{Text: eicarRule}))
	svc := scan.New(store, time.Minute)

	lines := runRequests(t, svc, `{"type":"status"}`)
	require.Len(t, lines, 2)

	resp := decodeResponse(t, lines[1])
	require.True(t, resp.Success)

	var status StatusData
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, uint64(1), status.Generation)
	assert.Equal(t, "test", status.Current.ID)
	assert.Equal(t, 1, status.Current.Signatures)
	require.Contains(t, status.Alternates, "extra")
}

func TestServer_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte(eicarRule), 0o644))
	store, err := ruleset.NewStore(ruleset.Source{Path: path})
	require.NoError(t, err)
	svc := scan.New(store, time.Minute)

	lines := runRequests(t, svc, `{"type":"reload"}`)
	require.Len(t, lines, 2)

	resp := decodeResponse(t, lines[1])
	require.True(t, resp.Success)

	var reload ReloadData
	require.NoError(t, json.Unmarshal(resp.Data, &reload))
	assert.Equal(t, uint64(2), reload.Generation)
}

func TestServer_ReloadFailureKeepsServing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte(eicarRule), 0o644))
	store, err := ruleset.NewStore(ruleset.Source{Path: path})
	require.NoError(t, err)
	svc := scan.New(store, time.Minute)

	// Corrupt the source, then reload and scan in one session.
	require.NoError(t, os.WriteFile(path, []byte("rule broken {"), 0o644))
	content := base64.StdEncoding.EncodeToString([]byte("X5O!P%@AP"))
	lines := runRequests(t, svc,
		`{"type":"reload"}`,
		`{"type":"scan","payload":{"content":"`+content+`"}}`)
	require.Len(t, lines, 3)

	reloadResp := decodeResponse(t, lines[1])
	assert.False(t, reloadResp.Success)

	// The previous ruleset is still active and matching.
	scanResp := decodeResponse(t, lines[2])
	require.True(t, scanResp.Success)
	assert.Contains(t, string(scanResp.Data), "EICAR")
}

func TestServer_UnknownRequestType(t *testing.T) {
	lines := runRequests(t, newService(t), `{"type":"bogus"}`)
	require.Len(t, lines, 2)

	resp := decodeResponse(t, lines[1])
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown request type")
}

func TestServer_Close(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("x"))
	lines := runRequests(t, newService(t),
		`{"type":"close"}`,
		`{"type":"scan","payload":{"content":"`+content+`"}}`)

	// Nothing is processed after close.
	require.Len(t, lines, 1)
}

func TestServer_ContextCancellation(t *testing.T) {
	svc := newService(t)

	in, _ := io.Pipe()
	out := &strings.Builder{}
	srv := NewServer(svc, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on context cancellation")
	}
}
