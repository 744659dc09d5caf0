// Package syncer runs the background message archiver: a single worker
// loop that drains the job queue, pulling newer messages first and then
// backfilling history toward each job's target depth.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
	"github.com/tgarchive/mcp-telegram-archive/internal/messages"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
	"github.com/tgarchive/mcp-telegram-archive/internal/tgclient"
)

// History fetches normalized channel history; the messages provider is the
// production implementation.
type History interface {
	History(ctx context.Context, ref peers.Ref, opts messages.Options) ([]messages.Message, error)
}

// PeerDirectory enriches a parsed reference with title, kind and username.
// The dialog index implements it.
type PeerDirectory interface {
	Resolve(ctx context.Context, ref peers.Ref) (peers.Ref, error)
}

// Config tunes the worker's pacing.
type Config struct {
	// BatchSize is the per-request history chunk (default 100).
	BatchSize int
	// InterJobDelay separates consecutive jobs (default 3s).
	InterJobDelay time.Duration
	// InterBatchDelay separates backfill chunks within one job
	// (default 1.1s).
	InterBatchDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.InterJobDelay <= 0 {
		c.InterJobDelay = 3 * time.Second
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 1100 * time.Millisecond
	}
	return c
}

// Service is the sync worker. Exactly one loop runs per process; Resume is
// safe to call from any number of goroutines.
type Service struct {
	store   *archive.Store
	history History
	peerDir PeerDirectory
	cfg     Config
	log     *zap.Logger

	processing atomic.Bool
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New creates a worker over the given store and history source.
func New(store *archive.Store, history History, peerDir PeerDirectory, cfg Config, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		history: history,
		peerDir: peerDir,
		cfg:     cfg.withDefaults(),
		log:     log,
		stop:    make(chan struct{}),
	}
}

// Resume starts the worker loop unless one is already running.
func (s *Service) Resume() {
	if s.stopped() {
		return
	}
	if !s.processing.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.run()
}

// Shutdown requests a stop, interrupts pending sleeps and waits for the
// in-flight job to finish (bounded by ctx).
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sync worker: %w", ctx.Err())
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	for {
		s.drain()
		s.processing.Store(false)

		// A schedule may have landed between the last NextJob and the
		// flag flip; re-check before going quiet.
		if s.stopped() {
			return
		}
		job, err := s.store.NextJob()
		if err != nil || job == nil {
			return
		}
		if !s.processing.CompareAndSwap(false, true) {
			return
		}
	}
}

// drain processes queued jobs until the queue is empty or a stop is
// requested.
func (s *Service) drain() {
	ctx := context.Background()

	for {
		if s.stopped() {
			return
		}

		job, err := s.store.NextJob()
		if err != nil {
			s.log.Error("picking next sync job", zap.Error(err))
			return
		}
		if job == nil {
			return
		}

		if err := s.processJob(ctx, job); err != nil {
			if seconds, ok := tgclient.AsFloodWait(err); ok {
				s.log.Warn("rate limited", zap.String("channel", job.ChannelID), zap.Int("seconds", seconds))
				if err := s.store.MarkPending(job.ID, fmt.Sprintf("Rate limited, waiting %ds", seconds)); err != nil {
					s.log.Error("parking rate-limited job", zap.Error(err))
				}
				// Do not re-enter this job now; the loop picks it up on a
				// later pass.
				if !s.sleep(time.Duration(seconds) * time.Second) {
					return
				}
			} else {
				s.log.Error("sync job failed", zap.String("channel", job.ChannelID), zap.Error(err))
				if err := s.store.MarkError(job.ID, err.Error()); err != nil {
					s.log.Error("recording job failure", zap.Error(err))
				}
			}
		}

		if !s.sleep(s.cfg.InterJobDelay) {
			return
		}
	}
}

// processJob runs one sync pass: newer messages first, then backfill toward
// the target depth.
func (s *Service) processJob(ctx context.Context, job *archive.Job) error {
	ref, err := peers.Parse(job.ChannelID)
	if err != nil {
		return fmt.Errorf("job %d has an invalid channel id: %w", job.ID, err)
	}
	if enriched, err := s.peerDir.Resolve(ctx, ref); err == nil {
		ref = enriched
	}

	if err := s.store.MarkInProgress(job.ID); err != nil {
		return err
	}
	s.log.Info("syncing channel",
		zap.String("channel", job.ChannelID),
		zap.String("title", ref.Title),
		zap.Int64("target", job.TargetMessageCount))

	batch := s.cfg.BatchSize
	last := job.LastMessageID
	oldest := job.OldestMessageID

	// Phase A: everything newer than the high-water mark.
	newer, err := s.history.History(ctx, ref, messages.Options{
		Limit:     batch,
		ChunkSize: batch,
		MinID:     job.LastMessageID,
	})
	if err != nil {
		return fmt.Errorf("fetching newer messages: %w", err)
	}
	if len(newer) > 0 {
		sort.Slice(newer, func(i, j int) bool { return newer[i].ID < newer[j].ID })
		if _, err := s.store.InsertMessages(job.ChannelID, newer); err != nil {
			return err
		}
		lo, hi := newer[0].ID, newer[len(newer)-1].ID
		if hi > last {
			last = hi
		}
		if oldest == nil || lo < *oldest {
			oldest = &lo
		}
	}
	hasMoreNewer := len(newer) == batch

	// Phase B: backfill toward the target depth.
	target := job.TargetMessageCount
	if target <= 0 {
		target = archive.DefaultTarget
	}
	count, err := s.store.CountMessages(job.ChannelID)
	if err != nil {
		return err
	}

	var insertedOlder int64
	if count < target {
		offset := last
		if oldest != nil {
			offset = *oldest
		}

		for count < target {
			chunk := batch
			if rest := target - count; rest < int64(chunk) {
				chunk = int(rest)
			}

			older, err := s.history.History(ctx, ref, messages.Options{
				Limit:     chunk,
				ChunkSize: chunk,
				OffsetID:  offset,
			})
			if err != nil {
				return fmt.Errorf("backfilling: %w", err)
			}
			if len(older) == 0 {
				break
			}

			n, err := s.store.InsertMessages(job.ChannelID, older)
			if err != nil {
				return err
			}
			insertedOlder += n

			lo := older[0].ID
			for _, m := range older {
				if m.ID < lo {
					lo = m.ID
				}
			}
			if oldest == nil || lo < *oldest {
				oldest = &lo
			}
			offset = lo

			count, err = s.store.CountMessages(job.ChannelID)
			if err != nil {
				return err
			}
			if count >= target {
				break
			}
			if !s.sleep(s.cfg.InterBatchDelay) {
				break
			}
		}
	}
	hasMoreOlder := insertedOlder > 0 && count < target

	status := archive.StatusIdle
	if hasMoreNewer || hasMoreOlder {
		status = archive.StatusPending
	}

	s.log.Info("sync pass done",
		zap.String("channel", job.ChannelID),
		zap.Int64("archived", count),
		zap.String("status", status))

	return s.store.FinalizeJob(job.ID, archive.JobProgress{
		PeerTitle:       ref.Title,
		PeerType:        string(ref.Kind),
		Status:          status,
		LastMessageID:   last,
		OldestMessageID: oldest,
		MessageCount:    count,
	})
}

func (s *Service) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d, returning false when a stop interrupted the wait.
func (s *Service) sleep(d time.Duration) bool {
	if d <= 0 {
		return !s.stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stop:
		return false
	}
}
