package stream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/veloradata/chainstream/internal/stream"
)

var _ = Describe("Cursor", func() {
	Describe("constructors", func() {
		It("should tag block number cursors", func() {
			c := stream.BlockNumberCursor(1234)
			Expect(c.Kind).To(Equal(stream.KindBlockNumber))
			Expect(c.BlockNumber).To(Equal(uint64(1234)))
		})

		It("should tag timestamp cursors", func() {
			c := stream.TimestampCursor(1700000000)
			Expect(c.Kind).To(Equal(stream.KindTimestamp))
			Expect(c.Timestamp).To(Equal(int64(1700000000)))
		})

		It("should record the issuer of page tokens", func() {
			c := stream.PageTokenCursor("abc123", "etherscan")
			Expect(c.Kind).To(Equal(stream.KindPageToken))
			Expect(c.Issuer).To(Equal("etherscan"))
		})
	})

	Describe("CursorState JSON round-trip", func() {
		It("should survive marshal and unmarshal unchanged", func() {
			state := stream.CursorState{
				Primary: stream.PageTokenCursor("tok-77", "etherscan"),
				Alternatives: []stream.Cursor{
					stream.BlockNumberCursor(1500),
					stream.TimestampCursor(1700000123),
				},
				LastTransactionID: "tx42",
				TotalFetched:      420,
				Metadata: stream.Metadata{
					ProviderName: "etherscan",
					UpdatedAt:    time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
					IsComplete:   false,
				},
			}

			raw, err := json.Marshal(state)
			Expect(err).NotTo(HaveOccurred())

			var back stream.CursorState
			Expect(json.Unmarshal(raw, &back)).To(Succeed())
			Expect(back).To(Equal(state))
		})

		It("should omit unused variant fields", func() {
			raw, err := json.Marshal(stream.BlockNumberCursor(9))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).NotTo(ContainSubstring("page_token"))
			Expect(string(raw)).NotTo(ContainSubstring("timestamp"))
		})
	})
})
