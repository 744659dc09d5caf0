package dialogs

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

type fakeSource struct {
	refs  []peers.Ref
	calls int
}

func (f *fakeSource) Dialogs(ctx context.Context) ([]peers.Ref, error) {
	f.calls++
	return f.refs, nil
}

func testRefs() []peers.Ref {
	return []peers.Ref{
		{ID: -1001, Kind: peers.KindChannel, Title: "Alpha"},
		{ID: -1002, Kind: peers.KindChannel, Title: "Beta"},
		{ID: 42, Kind: peers.KindUser, Title: "Gamma", Username: "gamma"},
	}
}

func loadedIndex(t *testing.T, src *fakeSource) *Index {
	t.Helper()
	idx := New(src, zap.NewNop())
	if err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return idx
}

func TestListPreservesInsertionOrder(t *testing.T) {
	idx := loadedIndex(t, &fakeSource{refs: testRefs()})

	got := idx.List(0)
	if len(got) != 3 {
		t.Fatalf("List(0) returned %d entries, want 3", len(got))
	}
	wantIDs := []int64{-1001, -1002, 42}
	for i, ref := range got {
		if ref.ID != wantIDs[i] {
			t.Errorf("List(0)[%d].ID = %d, want %d", i, ref.ID, wantIDs[i])
		}
	}

	if got := idx.List(2); len(got) != 2 || got[0].ID != -1001 || got[1].ID != -1002 {
		t.Errorf("List(2) = %+v, want first two entries", got)
	}
}

func TestSearch(t *testing.T) {
	idx := loadedIndex(t, &fakeSource{refs: testRefs()})

	tests := []struct {
		keyword string
		limit   int
		wantIDs []int64
	}{
		{"beta", 10, []int64{-1002}},
		{"GAMMA", 10, []int64{42}}, // matches title and username, case-insensitive
		{"a", 2, []int64{-1001, -1002}},
		{"nothing", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got := idx.Search(tt.keyword, tt.limit)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Search(%q, %d) returned %d entries, want %d", tt.keyword, tt.limit, len(got), len(tt.wantIDs))
			}
			for i, ref := range got {
				if ref.ID != tt.wantIDs[i] {
					t.Errorf("Search(%q)[%d].ID = %d, want %d", tt.keyword, i, ref.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestGetRefreshesOnceOnMiss(t *testing.T) {
	src := &fakeSource{refs: testRefs()}
	idx := loadedIndex(t, src)

	ref, err := idx.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get(42): %v", err)
	}
	if ref.Title != "Gamma" || ref.Username != "gamma" {
		t.Errorf("Get(42) = %+v", ref)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times for a hit, want 1 (initial load only)", src.calls)
	}

	// Miss triggers exactly one refresh; the peer appears afterwards.
	src.refs = append(src.refs, peers.Ref{ID: -1003, Kind: peers.KindChannel, Title: "Delta"})
	ref, err = idx.Get(context.Background(), -1003)
	if err != nil {
		t.Fatalf("Get(-1003): %v", err)
	}
	if ref.Title != "Delta" {
		t.Errorf("Get(-1003).Title = %q, want Delta", ref.Title)
	}
	if src.calls != 2 {
		t.Errorf("source called %d times, want 2", src.calls)
	}

	// Still missing after refresh → ErrNotFound.
	if _, err := idx.Get(context.Background(), 777); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(777) error = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	idx := loadedIndex(t, &fakeSource{refs: testRefs()})
	ctx := context.Background()

	byID, err := idx.Resolve(ctx, peers.Ref{ID: 42, Kind: peers.KindUser})
	if err != nil {
		t.Fatalf("Resolve by ID: %v", err)
	}
	if byID.Title != "Gamma" {
		t.Errorf("Resolve by ID Title = %q, want Gamma", byID.Title)
	}

	byName, err := idx.Resolve(ctx, peers.Ref{Username: "gamma"})
	if err != nil {
		t.Fatalf("Resolve by username: %v", err)
	}
	if byName.ID != 42 {
		t.Errorf("Resolve by username ID = %d, want 42", byName.ID)
	}

	// Unknown usernames pass through for server-side resolution.
	passthrough, err := idx.Resolve(ctx, peers.Ref{Username: "elsewhere"})
	if err != nil {
		t.Fatalf("Resolve unknown username: %v", err)
	}
	if passthrough.Username != "elsewhere" || passthrough.ID != 0 {
		t.Errorf("Resolve unknown username = %+v, want passthrough", passthrough)
	}
}
