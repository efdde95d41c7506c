package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veloradata/chainstream/internal/metrics"
)

// Page is one provider response. HasMore reflects the provider's own "there
// are further pages" signal; the iterator additionally treats a short page
// as terminal.
type Page[R any] struct {
	Items         []R
	NextPageToken string
	HasMore       bool
}

// FetchFunc fetches one page. cursor is nil on an unresumed first call.
// Implementations wrap the provider HTTP client; the iterator owns no
// transport.
type FetchFunc[R any] func(ctx context.Context, cursor *Cursor, pageSize int) (Page[R], error)

// Batch is one emitted unit: normalized items plus the cursor state the
// caller should persist before asking for the next batch.
type Batch[N any] struct {
	Items      []N
	Cursor     CursorState
	IsComplete bool
}

// Config assembles a streaming iterator for one provider. The Fetch, Map,
// ID, and Extract functions are supplied by the provider integration; the
// iterator is generic over raw (R) and normalized (N) item types.
type Config[R, N any] struct {
	Source         string // logical data source, e.g. "bitcoin"
	ProviderName   string
	PreferredKind  Kind
	SupportedKinds []Kind
	ReplayBlocks   uint64 // provider's replay-window policy, in blocks
	PageSize       int
	DedupCapacity  int
	Resume         *CursorState // nil starts from the beginning

	Fetch   FetchFunc[R]
	Map     func(R) (N, error)
	ID      func(R) string
	Extract func(R) []Cursor // every cursor kind derivable from an item

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

const DefaultPageSize = 100

// ErrNoProgress reports a stalled stream: a page came back fully
// deduplicated while the provider still claims more data, and neither a
// page token nor an extracted cursor could move the position past it.
var ErrNoProgress = errors.New("stream is not advancing")

// Iterator drives a cursor-based paginated fetch to completion. It is a
// lazy, finite, pull-based sequence: the caller paces it by calling Next,
// and stops consuming to cancel. It is not restartable in place; resuming
// requires a fresh iterator built from a persisted CursorState.
type Iterator[R, N any] struct {
	cfg   Config[R, N]
	fetch *Cursor // position for the next page fetch, nil = stream start
	state CursorState
	dedup *DedupWindow
	done  bool
}

// New builds an iterator, translating the resume cursor if it was produced
// by a different provider: a portable alternative replaces a foreign page
// token, and the provider's replay window rewinds the chosen cursor to
// absorb reorgs and indexing lag.
func New[R, N any](cfg Config[R, N]) (*Iterator[R, N], error) {
	if cfg.Fetch == nil {
		return nil, errors.New("stream: Fetch is required")
	}
	if cfg.Map == nil {
		return nil, errors.New("stream: Map is required")
	}
	if cfg.ID == nil {
		return nil, errors.New("stream: ID is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	it := &Iterator[R, N]{
		cfg:   cfg,
		dedup: NewDedupWindow(cfg.DedupCapacity),
		state: CursorState{
			Metadata: Metadata{ProviderName: cfg.ProviderName, UpdatedAt: time.Now()},
		},
	}

	if cfg.Resume != nil {
		start, err := translate(cfg.Resume, cfg.ProviderName, cfg.PreferredKind, cfg.SupportedKinds)
		if err != nil {
			return nil, fmt.Errorf("resume from %s: %w", cfg.Resume.Metadata.ProviderName, err)
		}

		crossProvider := cfg.Resume.Metadata.ProviderName != cfg.ProviderName
		if crossProvider {
			start = applyReplayWindow(start, cfg.ReplayBlocks)
		}

		it.fetch = &start
		it.state.Primary = start
		it.state.Alternatives = append([]Cursor(nil), cfg.Resume.Alternatives...)
		it.state.LastTransactionID = cfg.Resume.LastTransactionID
		it.state.TotalFetched = cfg.Resume.TotalFetched
		it.dedup.Add(cfg.Resume.LastTransactionID)

		if cfg.Logger != nil && crossProvider {
			cfg.Logger.Info("Resuming stream on a different provider",
				slog.String("source", cfg.Source),
				slog.String("from_provider", cfg.Resume.Metadata.ProviderName),
				slog.String("to_provider", cfg.ProviderName),
				slog.String("cursor_kind", string(start.Kind)),
				slog.Uint64("replay_blocks", cfg.ReplayBlocks))
		}
	}

	return it, nil
}

// Cursor returns the most recent cursor state. After a failed Next the
// caller can hand this to a fresh iterator on another provider without
// losing already-emitted progress.
func (it *Iterator[R, N]) Cursor() CursorState {
	return cloneState(it.state)
}

// Next fetches until it has a non-empty batch or the stream ends. Returns
// ok=false with a nil error once exhausted. A fetch or mapping failure is
// returned as an error without advancing the cursor past the last good
// state; Next never panics on provider misbehavior.
func (it *Iterator[R, N]) Next(ctx context.Context) (Batch[N], bool, error) {
	if it.done {
		return Batch[N]{}, false, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return Batch[N]{}, false, err
		}

		page, err := it.cfg.Fetch(ctx, it.fetchCursor(), it.cfg.PageSize)
		if err != nil {
			return Batch[N]{}, false, fmt.Errorf("fetch page from %s: %w", it.cfg.ProviderName, err)
		}

		short := len(page.Items) < it.cfg.PageSize
		hasMore := page.HasMore && !short

		items, suppressed, err := it.filterAndMap(page.Items)
		if err != nil {
			return Batch[N]{}, false, err
		}

		if suppressed > 0 {
			if it.cfg.Logger != nil {
				it.cfg.Logger.Debug("Dedup window suppressed replayed items",
					slog.String("source", it.cfg.Source),
					slog.String("provider", it.cfg.ProviderName),
					slog.Int("suppressed", suppressed))
			}
			it.cfg.Metrics.Emit(metrics.Event{
				Type:   metrics.EventDedupHit,
				Source: it.cfg.Source,
				Count:  suppressed,
			})
		}

		advanced := it.advance(page)
		it.state.TotalFetched += int64(len(items))
		it.state.Metadata = Metadata{
			ProviderName: it.cfg.ProviderName,
			UpdatedAt:    time.Now(),
			IsComplete:   !hasMore,
		}
		it.done = !hasMore

		// A page emptied by dedup is not a valid batch while the provider
		// says there is more; keep fetching. If the position also failed to
		// move, the next fetch would return the same page and this loop
		// would never leave, so stall out instead.
		if len(items) == 0 && hasMore {
			if !advanced {
				return Batch[N]{}, false, fmt.Errorf("fetch page from %s: %w", it.cfg.ProviderName, ErrNoProgress)
			}
			continue
		}

		it.cfg.Metrics.Emit(metrics.Event{
			Type:   metrics.EventBatchEmitted,
			Source: it.cfg.Source,
			Count:  len(items),
		})

		return Batch[N]{
			Items:      items,
			Cursor:     cloneState(it.state),
			IsComplete: !hasMore,
		}, true, nil
	}
}

func (it *Iterator[R, N]) fetchCursor() *Cursor {
	if it.fetch == nil {
		return nil
	}
	c := *it.fetch
	return &c
}

func (it *Iterator[R, N]) filterAndMap(raw []R) ([]N, int, error) {
	var items []N
	suppressed := 0

	for i := range raw {
		id := it.cfg.ID(raw[i])
		if !it.dedup.Add(id) {
			suppressed++
			continue
		}

		n, err := it.cfg.Map(raw[i])
		if err != nil {
			return nil, suppressed, fmt.Errorf("map item %q: %w", id, err)
		}
		items = append(items, n)
	}

	return items, suppressed, nil
}

// advance updates the fetch position and the resumable state from the page
// just consumed, reporting whether the position actually moved.
// Server-issued page tokens win; otherwise the next position derives from
// the last item of the batch, and the dedup window absorbs the overlap a
// self-referential cursor causes.
func (it *Iterator[R, N]) advance(page Page[R]) bool {
	if len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1]
		it.state.LastTransactionID = it.cfg.ID(last)
		if it.cfg.Extract != nil {
			it.state.Alternatives = it.cfg.Extract(last)
		}
	}

	var next Cursor
	haveNext := false

	if page.NextPageToken != "" {
		next = PageTokenCursor(page.NextPageToken, it.cfg.ProviderName)
		haveNext = true
	} else if c, ok := preferAlternative(it.state.Alternatives, it.cfg.PreferredKind); ok && len(page.Items) > 0 {
		next = c
		haveNext = true
	}

	if !haveNext {
		return false
	}

	moved := it.fetch == nil || *it.fetch != next
	it.fetch = &next
	it.state.Primary = next
	return moved
}

// preferAlternative picks the best cursor for a kind preference, falling
// back to block number then timestamp.
func preferAlternative(alts []Cursor, preferred Kind) (Cursor, bool) {
	for _, c := range alts {
		if c.Kind == preferred {
			return c, true
		}
	}
	for _, kind := range []Kind{KindBlockNumber, KindTimestamp} {
		for _, c := range alts {
			if c.Kind == kind {
				return c, true
			}
		}
	}
	return Cursor{}, false
}

func cloneState(s CursorState) CursorState {
	s.Alternatives = append([]Cursor(nil), s.Alternatives...)
	return s
}
