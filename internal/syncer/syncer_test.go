package syncer

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
	"github.com/tgarchive/mcp-telegram-archive/internal/messages"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// fakeHistory serves a fixed ascending run of message IDs the way the
// provider does: newest first, honoring Limit, OffsetID and MinID.
type fakeHistory struct {
	mu       sync.Mutex
	msgs     []messages.Message // ascending by ID
	err      error
	calls    int
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func channelMessages(n int) []messages.Message {
	out := make([]messages.Message, 0, n)
	for id := 1; id <= n; id++ {
		out = append(out, messages.Message{
			ID:     int64(id),
			Date:   1700000000 + int64(id),
			Text:   "message",
			FromID: "42",
			Raw:    []byte(`{}`),
		})
	}
	return out
}

func (f *fakeHistory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeHistory) History(_ context.Context, _ peers.Ref, opts messages.Options) ([]messages.Message, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var out []messages.Message
	for _, m := range f.msgs {
		if opts.MinID > 0 && m.ID <= opts.MinID {
			continue
		}
		if opts.OffsetID > 0 && m.ID >= opts.OffsetID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func testService(t *testing.T, history History) (*Service, *archive.Store) {
	t.Helper()
	store, err := archive.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store, history, staticDirectory{}, Config{
		BatchSize:       100,
		InterJobDelay:   time.Millisecond,
		InterBatchDelay: time.Millisecond,
	}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, store
}

type staticDirectory struct{}

func (staticDirectory) Resolve(_ context.Context, ref peers.Ref) (peers.Ref, error) {
	ref.Title = "Alpha"
	ref.Kind = peers.KindChannel
	return ref, nil
}

func waitForStatus(t *testing.T, store *archive.Store, channelID, status string) *archive.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.JobByChannel(channelID)
		if err != nil {
			t.Fatalf("JobByChannel: %v", err)
		}
		if job != nil && job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.JobByChannel(channelID)
	t.Fatalf("job never reached %q, last state %+v", status, job)
	return nil
}

func TestSyncBackfillsToTarget(t *testing.T) {
	history := &fakeHistory{msgs: channelMessages(250)}
	svc, store := testService(t, history)

	if _, err := store.UpsertJob("-1001", "Alpha", "channel", 200); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	svc.Resume()

	job := waitForStatus(t, store, "-1001", archive.StatusIdle)
	if job.LastMessageID != 250 {
		t.Errorf("last_message_id = %d, want 250", job.LastMessageID)
	}
	if job.OldestMessageID == nil || *job.OldestMessageID != 51 {
		t.Errorf("oldest_message_id = %v, want 51", job.OldestMessageID)
	}
	if job.MessageCount != 200 {
		t.Errorf("message_count = %d, want 200", job.MessageCount)
	}
	if job.PeerTitle != "Alpha" || job.PeerType != "channel" {
		t.Errorf("peer = %q/%q, want Alpha/channel", job.PeerTitle, job.PeerType)
	}
	if job.LastSyncedAt == nil {
		t.Error("last_synced_at not stamped")
	}

	stats, err := store.MessageStats("-1001")
	if err != nil {
		t.Fatalf("MessageStats: %v", err)
	}
	if stats.Total != 200 || stats.MinID != 51 || stats.MaxID != 250 {
		t.Errorf("archived stats = %+v, want 200 rows spanning 51..250", stats)
	}
}

func TestFloodWaitParksJobAndRecovers(t *testing.T) {
	history := &fakeHistory{msgs: channelMessages(50)}
	history.setErr(tgerr.New(420, "FLOOD_WAIT_2"))
	svc, store := testService(t, history)

	if _, err := store.UpsertJob("-1001", "Alpha", "channel", 50); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	svc.Resume()

	job := waitForStatus(t, store, "-1001", archive.StatusPending)
	deadline := time.Now().Add(5 * time.Second)
	for job.Error == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		job, _ = store.JobByChannel("-1001")
	}
	if job.Error == nil || *job.Error != "Rate limited, waiting 2s" {
		t.Fatalf("job error = %v, want the rate-limit note", job.Error)
	}

	// The worker is parked in its flood-wait sleep; shutdown interrupts it.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// A fresh worker over the same store picks the parked job back up once
	// the API recovers.
	history2 := &fakeHistory{msgs: channelMessages(50)}
	svc2 := New(store, history2, staticDirectory{}, Config{
		BatchSize:       100,
		InterJobDelay:   time.Millisecond,
		InterBatchDelay: time.Millisecond,
	}, zap.NewNop())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc2.Shutdown(ctx)
	}()
	svc2.Resume()

	job = waitForStatus(t, store, "-1001", archive.StatusIdle)
	if job.Error != nil {
		t.Errorf("error = %q, want cleared", *job.Error)
	}
	if job.MessageCount != 50 || job.LastMessageID != 50 {
		t.Errorf("recovered job = %+v, want 50 messages up to id 50", job)
	}
}

func TestSyncPreservesWatermarks(t *testing.T) {
	history := &fakeHistory{msgs: channelMessages(250)}
	svc, store := testService(t, history)

	// Seed prior progress, then re-queue the job the way a fresh schedule
	// does.
	job, err := store.UpsertJob("-1001", "Alpha", "channel", 0)
	if err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	oldest := int64(60)
	if err := store.FinalizeJob(job.ID, archive.JobProgress{
		Status:          archive.StatusIdle,
		LastMessageID:   100,
		OldestMessageID: &oldest,
		MessageCount:    41,
	}); err != nil {
		t.Fatalf("FinalizeJob: %v", err)
	}
	if _, err := store.UpsertJob("-1001", "", "", 0); err != nil {
		t.Fatalf("re-UpsertJob: %v", err)
	}

	svc.Resume()
	got := waitForStatus(t, store, "-1001", archive.StatusIdle)

	// The high-water mark only moves forward, the backfill mark only
	// backward.
	if got.LastMessageID != 250 {
		t.Errorf("last_message_id = %d, want 250", got.LastMessageID)
	}
	if got.OldestMessageID == nil || *got.OldestMessageID > 60 {
		t.Errorf("oldest_message_id = %v, want <= 60", got.OldestMessageID)
	}
	if got.MessageCount < 41 {
		t.Errorf("message_count = %d, want >= 41", got.MessageCount)
	}
}

func TestResumeRunsSingleWorker(t *testing.T) {
	history := &fakeHistory{msgs: channelMessages(30)}
	svc, store := testService(t, history)

	for _, id := range []string{"-1001", "-1002", "-1003"} {
		if _, err := store.UpsertJob(id, "", "channel", 30); err != nil {
			t.Fatalf("UpsertJob(%s): %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Resume()
		}()
	}
	wg.Wait()

	for _, id := range []string{"-1001", "-1002", "-1003"} {
		waitForStatus(t, store, id, archive.StatusIdle)
	}
	if history.overlap.Load() {
		t.Error("history calls overlapped; jobs must be processed by one worker at a time")
	}
}
