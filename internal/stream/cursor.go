package stream

import (
	"errors"
	"time"
)

// Kind tags the cursor variants a provider can issue or accept.
type Kind string

const (
	KindBlockNumber Kind = "block_number"
	KindTimestamp   Kind = "timestamp"
	KindPageToken   Kind = "page_token"
)

// Cursor is a position marker in a paginated stream. Exactly one of the
// value fields is meaningful, selected by Kind. Page tokens are
// provider-private: Issuer names the provider that minted the token, and no
// other provider can interpret it.
type Cursor struct {
	Kind        Kind   `json:"kind"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	PageToken   string `json:"page_token,omitempty"`
	Issuer      string `json:"issuer,omitempty"`
}

func BlockNumberCursor(n uint64) Cursor {
	return Cursor{Kind: KindBlockNumber, BlockNumber: n}
}

func TimestampCursor(ts int64) Cursor {
	return Cursor{Kind: KindTimestamp, Timestamp: ts}
}

func PageTokenCursor(token, issuer string) Cursor {
	return Cursor{Kind: KindPageToken, PageToken: token, Issuer: issuer}
}

// Metadata records which provider produced a CursorState and whether the
// stream it belongs to ran to completion.
type Metadata struct {
	ProviderName string    `json:"provider_name"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsComplete   bool      `json:"is_complete"`
}

// CursorState is the resumable position handed back to the caller after
// every batch. Alternatives carries every cursor kind extractable from the
// most recently seen item, so a later resume by a provider that cannot read
// Primary (a foreign page token, say) still has somewhere to start.
// TotalFetched is monotonically non-decreasing within one logical stream.
type CursorState struct {
	Primary           Cursor   `json:"primary"`
	Alternatives      []Cursor `json:"alternatives,omitempty"`
	LastTransactionID string   `json:"last_transaction_id,omitempty"`
	TotalFetched      int64    `json:"total_fetched"`
	Metadata          Metadata `json:"metadata"`
}

// ErrCursorNotPortable is returned when a resume cursor from another
// provider carries no alternative the resuming provider can interpret.
var ErrCursorNotPortable = errors.New("resume cursor has no alternative usable by this provider")

// Assumed conservative block interval used to translate a block-denominated
// replay window into seconds for timestamp cursors.
const replaySecondsPerBlock = 12

// translate picks the cursor a resuming provider should start from. Same
// provider resumes use Primary verbatim, tokens included. A cross-provider
// resume prefers the alternative matching preferred, falls back to any kind
// in supported, and never adopts another provider's page token.
func translate(state *CursorState, providerName string, preferred Kind, supported []Kind) (Cursor, error) {
	if state.Metadata.ProviderName == providerName {
		return state.Primary, nil
	}

	candidates := make([]Cursor, 0, len(state.Alternatives)+1)
	candidates = append(candidates, state.Alternatives...)
	candidates = append(candidates, state.Primary)

	usable := func(c Cursor) bool {
		if c.Kind == KindPageToken && c.Issuer != providerName {
			return false
		}
		return true
	}

	for _, c := range candidates {
		if c.Kind == preferred && usable(c) {
			return c, nil
		}
	}

	for _, kind := range supported {
		for _, c := range candidates {
			if c.Kind == kind && usable(c) {
				return c, nil
			}
		}
	}

	return Cursor{}, ErrCursorNotPortable
}

// applyReplayWindow rewinds a cursor by the provider's declared safety
// margin, compensating for reorgs and indexing lag between providers.
// Block cursors rewind by blocks, clamped at zero; timestamp cursors rewind
// by the equivalent seconds. Page tokens are never rewound.
func applyReplayWindow(c Cursor, blocks uint64) Cursor {
	if blocks == 0 {
		return c
	}

	switch c.Kind {
	case KindBlockNumber:
		if c.BlockNumber < blocks {
			c.BlockNumber = 0
		} else {
			c.BlockNumber -= blocks
		}
	case KindTimestamp:
		rewind := int64(blocks) * replaySecondsPerBlock
		if c.Timestamp < rewind {
			c.Timestamp = 0
		} else {
			c.Timestamp -= rewind
		}
	}

	return c
}
