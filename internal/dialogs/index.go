// Package dialogs maintains the in-memory dialog index: a snapshot of every
// dialog of the account, keyed by normalized peer ID. The index is rebuilt
// at startup and refreshed at most once per missed lookup; it is never
// persisted.
package dialogs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// ErrNotFound is returned when a peer is absent even after a refresh.
var ErrNotFound = errors.New("peer not found in dialog index")

// Source enumerates the account's dialogs in server order.
type Source interface {
	Dialogs(ctx context.Context) ([]peers.Ref, error)
}

// Index holds the dialog snapshot. Reads are concurrent; the only writers
// are Load and the on-demand refresh inside Get, serialized by refreshMu.
type Index struct {
	source Source
	log    *zap.Logger

	mu         sync.RWMutex
	order      []int64
	byID       map[int64]peers.Ref
	byUsername map[string]int64

	refreshMu sync.Mutex
}

// New creates an empty index over the given source.
func New(source Source, log *zap.Logger) *Index {
	return &Index{
		source:     source,
		log:        log,
		byID:       make(map[int64]peers.Ref),
		byUsername: make(map[string]int64),
	}
}

// Load replaces the index content with a fresh enumeration.
func (i *Index) Load(ctx context.Context) error {
	refs, err := i.source.Dialogs(ctx)
	if err != nil {
		return fmt.Errorf("loading dialog index: %w", err)
	}

	order := make([]int64, 0, len(refs))
	byID := make(map[int64]peers.Ref, len(refs))
	byUsername := make(map[string]int64, len(refs))
	for _, ref := range refs {
		if _, dup := byID[ref.ID]; dup {
			continue
		}
		order = append(order, ref.ID)
		byID[ref.ID] = ref
		if ref.Username != "" {
			byUsername[strings.ToLower(ref.Username)] = ref.ID
		}
	}

	i.mu.Lock()
	i.order = order
	i.byID = byID
	i.byUsername = byUsername
	i.mu.Unlock()

	i.log.Info("dialog index loaded", zap.Int("dialogs", len(order)))
	return nil
}

// Len returns the number of indexed dialogs.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.order)
}

// List returns the first limit entries in insertion order, which preserves
// Telegram's most-recently-active-first ordering.
func (i *Index) List(limit int) []peers.Ref {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 || limit > len(i.order) {
		limit = len(i.order)
	}
	out := make([]peers.Ref, 0, limit)
	for _, id := range i.order[:limit] {
		out = append(out, i.byID[id])
	}
	return out
}

// Search returns up to limit entries whose title or username contains
// keyword, case-insensitively. Scanning stops as soon as limit entries
// matched.
func (i *Index) Search(keyword string, limit int) []peers.Ref {
	needle := strings.ToLower(keyword)

	i.mu.RLock()
	defer i.mu.RUnlock()

	var out []peers.Ref
	for _, id := range i.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		ref := i.byID[id]
		if strings.Contains(strings.ToLower(ref.Title), needle) ||
			strings.Contains(strings.ToLower(ref.Username), needle) {
			out = append(out, ref)
		}
	}
	return out
}

// Get looks up a peer by ID. On a miss it refreshes the index once and
// retries; a second miss returns ErrNotFound.
func (i *Index) Get(ctx context.Context, id int64) (peers.Ref, error) {
	if ref, ok := i.lookup(id); ok {
		return ref, nil
	}

	if err := i.refresh(ctx); err != nil {
		return peers.Ref{}, err
	}

	if ref, ok := i.lookup(id); ok {
		return ref, nil
	}
	return peers.Ref{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// GetByUsername looks up a peer by its public username, refreshing once on
// a miss like Get.
func (i *Index) GetByUsername(ctx context.Context, username string) (peers.Ref, error) {
	needle := strings.ToLower(username)
	if ref, ok := i.lookupUsername(needle); ok {
		return ref, nil
	}

	if err := i.refresh(ctx); err != nil {
		return peers.Ref{}, err
	}

	if ref, ok := i.lookupUsername(needle); ok {
		return ref, nil
	}
	return peers.Ref{}, fmt.Errorf("%w: @%s", ErrNotFound, username)
}

// Resolve enriches a parsed reference from the index: numeric refs gain
// title, kind and username; username refs gain their numeric ID. Unknown
// username refs pass through untouched so the gateway can still resolve
// them server-side.
func (i *Index) Resolve(ctx context.Context, ref peers.Ref) (peers.Ref, error) {
	if ref.ID != 0 {
		return i.Get(ctx, ref.ID)
	}
	known, err := i.GetByUsername(ctx, ref.Username)
	if errors.Is(err, ErrNotFound) {
		return ref, nil
	}
	return known, err
}

func (i *Index) lookup(id int64) (peers.Ref, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ref, ok := i.byID[id]
	return ref, ok
}

func (i *Index) lookupUsername(username string) (peers.Ref, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.byUsername[username]
	if !ok {
		return peers.Ref{}, false
	}
	return i.byID[id], true
}

// refresh serializes concurrent refresh attempts; whoever arrives second
// reuses the result of the first.
func (i *Index) refresh(ctx context.Context) error {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()
	i.log.Debug("refreshing dialog index on miss")
	return i.Load(ctx)
}
