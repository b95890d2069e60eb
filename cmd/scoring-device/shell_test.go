package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"cageside/internal/config"
	"cageside/internal/domain"
	"cageside/internal/ingest"
	"cageside/internal/syncmgr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	recorded []ingest.SubmitRequest
	cleared  []string
	failed   []syncmgr.FailedItem
}

func (f *fakeRecorder) Record(_ context.Context, req ingest.SubmitRequest) (syncmgr.Receipt, error) {
	if req.EventType == "" {
		return syncmgr.Receipt{}, domain.Invalid("event_type", "required")
	}
	f.recorded = append(f.recorded, req)
	return syncmgr.Receipt{LocalID: "l1", Queued: true}, nil
}

func (f *fakeRecorder) Drain(context.Context) (syncmgr.DrainReport, error) {
	return syncmgr.DrainReport{Batch: syncmgr.SyncBatch{Attempted: 2, Synced: 2}}, nil
}

func (f *fakeRecorder) Status(context.Context) (syncmgr.Status, error) {
	return syncmgr.Status{State: syncmgr.StateOffline, Pending: 1, Indicator: "offline — queued (1)"}, nil
}

func (f *fakeRecorder) Failed(context.Context) ([]syncmgr.FailedItem, error) {
	return f.failed, nil
}

func (f *fakeRecorder) Clear(_ context.Context, ids ...string) (int, error) {
	f.cleared = ids
	return len(ids), nil
}

func runShell(t *testing.T, rec *fakeRecorder, input string) []reply {
	t.Helper()
	var out bytes.Buffer
	sh := &shell{mgr: rec, defaults: config.DeviceConfig{BoutID: "b1", DeviceRole: "red-striking"}, out: &out}
	require.NoError(t, sh.Run(context.Background(), strings.NewReader(input)))

	var replies []reply
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r reply
		require.NoError(t, dec.Decode(&r))
		replies = append(replies, r)
	}
	return replies
}

func TestShellRecordsEventsWithProfileDefaults(t *testing.T) {
	rec := &fakeRecorder{}
	replies := runShell(t, rec, `{"round_number":1,"corner":"red","aspect":"striking","event_type":"jab"}`+"\n")

	require.Len(t, replies, 1)
	assert.True(t, replies[0].OK)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "b1", rec.recorded[0].BoutID)
	assert.Equal(t, "red-striking", rec.recorded[0].DeviceRole)
}

func TestShellReportsRejectedEvent(t *testing.T) {
	rec := &fakeRecorder{}
	replies := runShell(t, rec, `{"round_number":1}`+"\n"+`{not json`+"\n")

	require.Len(t, replies, 2)
	assert.False(t, replies[0].OK)
	assert.Contains(t, replies[0].Error, "event_type")
	assert.False(t, replies[1].OK)
}

func TestShellCommands(t *testing.T) {
	rec := &fakeRecorder{failed: []syncmgr.FailedItem{{
		Item: syncmgr.QueueItem{LocalID: "l9", RetryCount: 5},
		Err:  &domain.SyncExhaustedError{LocalID: "l9", Attempts: 5, LastErr: "timeout"},
	}}}
	replies := runShell(t, rec, "# comment\n\nstatus\nsync\nfailed\nclear l9\nbogus\n")

	require.Len(t, replies, 5)
	for _, r := range replies[:4] {
		assert.True(t, r.OK, r.Error)
	}
	status := replies[0].Result.(map[string]any)
	assert.Equal(t, "offline — queued (1)", status["indicator"])
	failed := replies[2].Result.([]any)
	require.Len(t, failed, 1)
	assert.Equal(t, "l9", failed[0].(map[string]any)["local_id"])
	assert.Equal(t, []string{"l9"}, rec.cleared)
	assert.False(t, replies[4].OK)
	assert.Contains(t, replies[4].Error, "unknown command bogus")
}

func TestHubURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws", hubURL("http://localhost:8080/"))
	assert.Equal(t, "wss://ring.example/ws", hubURL("https://ring.example"))
}
