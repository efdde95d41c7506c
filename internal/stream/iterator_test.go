package stream_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/veloradata/chainstream/internal/stream"
)

type rawTx struct {
	ID    string
	Block uint64
	Time  int64
}

type normTx struct {
	Hash  string
	Block uint64
}

func txPage(hasMore bool, token string, txs ...rawTx) stream.Page[rawTx] {
	return stream.Page[rawTx]{Items: txs, NextPageToken: token, HasMore: hasMore}
}

func baseConfig(name string) stream.Config[rawTx, normTx] {
	return stream.Config[rawTx, normTx]{
		Source:         "bitcoin",
		ProviderName:   name,
		PreferredKind:  stream.KindBlockNumber,
		SupportedKinds: []stream.Kind{stream.KindBlockNumber, stream.KindTimestamp, stream.KindPageToken},
		PageSize:       2,
		Map: func(r rawTx) (normTx, error) {
			return normTx{Hash: r.ID, Block: r.Block}, nil
		},
		ID: func(r rawTx) string { return r.ID },
		Extract: func(r rawTx) []stream.Cursor {
			return []stream.Cursor{
				stream.BlockNumberCursor(r.Block),
				stream.TimestampCursor(r.Time),
			}
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// pagedFetch serves a fixed page sequence and records every cursor it is
// handed, so specs can assert where each fetch started.
func pagedFetch(pages []stream.Page[rawTx], got *[]*stream.Cursor) stream.FetchFunc[rawTx] {
	i := 0
	return func(ctx context.Context, cursor *stream.Cursor, pageSize int) (stream.Page[rawTx], error) {
		if cursor != nil {
			c := *cursor
			*got = append(*got, &c)
		} else {
			*got = append(*got, nil)
		}
		if i >= len(pages) {
			return stream.Page[rawTx]{}, nil
		}
		page := pages[i]
		i++
		return page, nil
	}
}

var _ = Describe("Iterator", func() {
	var (
		ctx     context.Context
		cursors []*stream.Cursor
	)

	BeforeEach(func() {
		ctx = context.Background()
		cursors = nil
	})

	Describe("New", func() {
		It("should require the fetch function", func() {
			cfg := baseConfig("etherscan")
			_, err := stream.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("Fetch is required")))
		})

		It("should reject an unportable cross-provider resume", func() {
			cfg := baseConfig("blockstream")
			cfg.Fetch = pagedFetch(nil, &cursors)
			cfg.Resume = &stream.CursorState{
				Primary:  stream.PageTokenCursor("tok-9", "etherscan"),
				Metadata: stream.Metadata{ProviderName: "etherscan"},
			}

			_, err := stream.New(cfg)
			Expect(errors.Is(err, stream.ErrCursorNotPortable)).To(BeTrue())
		})
	})

	Describe("pagination", func() {
		It("should drive a token-paginated stream to completion", func() {
			cfg := baseConfig("etherscan")
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(true, "tok-2", rawTx{"tx1", 100, 1000}, rawTx{"tx2", 101, 1010}),
				txPage(true, "tok-3", rawTx{"tx3", 102, 1020}, rawTx{"tx4", 103, 1030}),
				txPage(false, "", rawTx{"tx5", 104, 1040}),
			}, &cursors)

			it, err := stream.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			var all []normTx
			for {
				batch, ok, err := it.Next(ctx)
				Expect(err).NotTo(HaveOccurred())
				if !ok {
					break
				}
				all = append(all, batch.Items...)
			}

			Expect(all).To(HaveLen(5))
			Expect(all[0].Hash).To(Equal("tx1"))
			Expect(all[4].Hash).To(Equal("tx5"))

			// First fetch starts from nothing; later fetches use the tokens
			Expect(cursors[0]).To(BeNil())
			Expect(cursors[1].PageToken).To(Equal("tok-2"))
			Expect(cursors[2].PageToken).To(Equal("tok-3"))
		})

		It("should mark the final batch complete on a short page", func() {
			cfg := baseConfig("etherscan")
			// Provider claims more, but the page is short of PageSize
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(true, "", rawTx{"tx1", 100, 1000}),
			}, &cursors)

			it, _ := stream.New(cfg)
			batch, ok, err := it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch.IsComplete).To(BeTrue())

			_, ok, err = it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should accumulate TotalFetched monotonically", func() {
			cfg := baseConfig("etherscan")
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(true, "tok-2", rawTx{"tx1", 100, 1000}, rawTx{"tx2", 101, 1010}),
				txPage(false, "", rawTx{"tx3", 102, 1020}),
			}, &cursors)

			it, _ := stream.New(cfg)
			first, _, _ := it.Next(ctx)
			second, _, _ := it.Next(ctx)

			Expect(first.Cursor.TotalFetched).To(Equal(int64(2)))
			Expect(second.Cursor.TotalFetched).To(Equal(int64(3)))
		})

		It("should extract alternatives from the last item of each batch", func() {
			cfg := baseConfig("etherscan")
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(false, "", rawTx{"tx9", 555, 1700000000}),
			}, &cursors)

			it, _ := stream.New(cfg)
			batch, _, _ := it.Next(ctx)

			Expect(batch.Cursor.Alternatives).To(ConsistOf(
				stream.BlockNumberCursor(555),
				stream.TimestampCursor(1700000000),
			))
			Expect(batch.Cursor.LastTransactionID).To(Equal("tx9"))
			Expect(batch.Cursor.Metadata.ProviderName).To(Equal("etherscan"))
		})
	})

	Describe("deduplication", func() {
		It("should never re-emit the resume cursor's last transaction", func() {
			cfg := baseConfig("etherscan")
			cfg.Resume = &stream.CursorState{
				Primary:           stream.BlockNumberCursor(100),
				LastTransactionID: "tx42",
				Metadata:          stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(false, "", rawTx{"tx42", 100, 1000}, rawTx{"tx43", 101, 1010}),
			}, &cursors)

			it, err := stream.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			batch, ok, err := it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			hashes := make([]string, 0, len(batch.Items))
			for _, item := range batch.Items {
				hashes = append(hashes, item.Hash)
			}
			Expect(hashes).To(ConsistOf("tx43"))
		})

		It("should keep fetching instead of yielding a deduped-empty batch", func() {
			cfg := baseConfig("etherscan")
			cfg.Resume = &stream.CursorState{
				Primary:           stream.BlockNumberCursor(100),
				LastTransactionID: "tx1",
				Metadata:          stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.PageSize = 1
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(true, "tok-2", rawTx{"tx1", 100, 1000}), // fully replayed
				txPage(false, "", rawTx{"tx2", 101, 1010}),
			}, &cursors)

			it, _ := stream.New(cfg)
			batch, ok, err := it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch.Items).To(HaveLen(1))
			Expect(batch.Items[0].Hash).To(Equal("tx2"))
		})

		It("should yield an empty batch only when it is also complete", func() {
			cfg := baseConfig("etherscan")
			cfg.Resume = &stream.CursorState{
				Primary:           stream.BlockNumberCursor(100),
				LastTransactionID: "tx1",
				Metadata:          stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.PageSize = 1
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(false, "", rawTx{"tx1", 100, 1000}),
			}, &cursors)

			it, _ := stream.New(cfg)
			batch, ok, err := it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch.Items).To(BeEmpty())
			Expect(batch.IsComplete).To(BeTrue())
		})
	})

	Describe("cross-provider resume", func() {
		It("should swap a foreign page token for the preferred alternative and rewind by the replay window", func() {
			cfg := baseConfig("blockstream")
			cfg.ReplayBlocks = 4
			cfg.Resume = &stream.CursorState{
				Primary: stream.PageTokenCursor("tok-77", "etherscan"),
				Alternatives: []stream.Cursor{
					stream.BlockNumberCursor(100),
					stream.TimestampCursor(1700000000),
				},
				LastTransactionID: "tx42",
				Metadata:          stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(false, ""),
			}, &cursors)

			it, err := stream.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(cursors[0]).NotTo(BeNil())
			Expect(cursors[0].Kind).To(Equal(stream.KindBlockNumber))
			Expect(cursors[0].BlockNumber).To(Equal(uint64(96)))
		})

		It("should clamp the replay rewind at zero", func() {
			cfg := baseConfig("blockstream")
			cfg.ReplayBlocks = 4
			cfg.Resume = &stream.CursorState{
				Primary:      stream.PageTokenCursor("tok-77", "etherscan"),
				Alternatives: []stream.Cursor{stream.BlockNumberCursor(2)},
				Metadata:     stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{txPage(false, "")}, &cursors)

			it, _ := stream.New(cfg)
			_, _, _ = it.Next(ctx)

			Expect(cursors[0].BlockNumber).To(Equal(uint64(0)))
		})

		It("should not rewind a same-provider resume", func() {
			cfg := baseConfig("etherscan")
			cfg.ReplayBlocks = 4
			cfg.Resume = &stream.CursorState{
				Primary:  stream.PageTokenCursor("tok-77", "etherscan"),
				Metadata: stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{txPage(false, "")}, &cursors)

			it, _ := stream.New(cfg)
			_, _, _ = it.Next(ctx)

			Expect(cursors[0].Kind).To(Equal(stream.KindPageToken))
			Expect(cursors[0].PageToken).To(Equal("tok-77"))
		})

		It("should continue TotalFetched from the resume state", func() {
			cfg := baseConfig("blockstream")
			cfg.Resume = &stream.CursorState{
				Primary:      stream.BlockNumberCursor(100),
				Alternatives: []stream.Cursor{stream.BlockNumberCursor(100)},
				TotalFetched: 40,
				Metadata:     stream.Metadata{ProviderName: "etherscan"},
			}
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(false, "", rawTx{"tx50", 101, 1010}),
			}, &cursors)

			it, _ := stream.New(cfg)
			batch, _, _ := it.Next(ctx)
			Expect(batch.Cursor.TotalFetched).To(Equal(int64(41)))
		})
	})

	Describe("failure handling", func() {
		It("should surface fetch errors without losing the last good cursor", func() {
			boom := errors.New("rate limited")
			calls := 0
			cfg := baseConfig("etherscan")
			cfg.Fetch = func(ctx context.Context, cursor *stream.Cursor, pageSize int) (stream.Page[rawTx], error) {
				calls++
				if calls == 1 {
					return txPage(true, "tok-2", rawTx{"tx1", 100, 1000}, rawTx{"tx2", 101, 1010}), nil
				}
				return stream.Page[rawTx]{}, boom
			}

			it, _ := stream.New(cfg)
			batch, ok, err := it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch.Items).To(HaveLen(2))

			_, _, err = it.Next(ctx)
			Expect(errors.Is(err, boom)).To(BeTrue())

			// The caller can rebuild on another provider from here
			state := it.Cursor()
			Expect(state.LastTransactionID).To(Equal("tx2"))
			Expect(state.TotalFetched).To(Equal(int64(2)))
			Expect(state.Alternatives).To(ContainElement(stream.BlockNumberCursor(101)))
		})

		It("should surface mapper failures as errors", func() {
			cfg := baseConfig("etherscan")
			cfg.Map = func(r rawTx) (normTx, error) {
				return normTx{}, fmt.Errorf("unparseable amount")
			}
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{
				txPage(false, "", rawTx{"tx1", 100, 1000}),
			}, &cursors)

			it, _ := stream.New(cfg)
			_, _, err := it.Next(ctx)
			Expect(err).To(MatchError(ContainSubstring("unparseable amount")))
		})

		It("should stall out instead of refetching a page it cannot move past", func() {
			cfg := baseConfig("etherscan")
			cfg.Extract = nil
			fetched := 0
			// Stateless provider: same full page every time, no token, and
			// nothing to derive a cursor from.
			cfg.Fetch = func(ctx context.Context, cursor *stream.Cursor, pageSize int) (stream.Page[rawTx], error) {
				fetched++
				return txPage(true, "", rawTx{"tx1", 100, 1000}, rawTx{"tx2", 101, 1010}), nil
			}

			it, err := stream.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			batch, ok, err := it.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch.Items).To(HaveLen(2))

			_, _, err = it.Next(ctx)
			Expect(errors.Is(err, stream.ErrNoProgress)).To(BeTrue())
			Expect(fetched).To(Equal(2))
		})

		It("should stall out when an extracted cursor repeats the current position", func() {
			cfg := baseConfig("etherscan")
			cfg.PageSize = 1
			cfg.Resume = &stream.CursorState{
				Primary:           stream.BlockNumberCursor(100),
				LastTransactionID: "tx1",
				Metadata:          stream.Metadata{ProviderName: "etherscan"},
			}
			fetched := 0
			// Self-referential cursor stuck on the same block, page fully
			// replayed.
			cfg.Fetch = func(ctx context.Context, cursor *stream.Cursor, pageSize int) (stream.Page[rawTx], error) {
				fetched++
				return txPage(true, "", rawTx{"tx1", 100, 1000}), nil
			}

			it, err := stream.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = it.Next(ctx)
			Expect(errors.Is(err, stream.ErrNoProgress)).To(BeTrue())
			Expect(fetched).To(Equal(1))
		})

		It("should respect context cancellation", func() {
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()

			cfg := baseConfig("etherscan")
			cfg.Fetch = pagedFetch([]stream.Page[rawTx]{txPage(false, "")}, &cursors)

			it, _ := stream.New(cfg)
			_, _, err := it.Next(cancelled)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})
})
