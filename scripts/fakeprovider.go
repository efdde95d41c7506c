// Fakeprovider is a synthetic blockchain-data provider used for manual
// smoke testing. It serves a deterministic paginated transaction feed with
// configurable failure injection.
//
// Usage:
//
//	go run fakeprovider.go -port 8081 -name alpha -total 250 -fail-rate 0.1
//
// GET /transactions?address=0xabc&from_block=100&page_size=50 returns a page
// of synthetic transactions plus an opaque next_page_token, so failover and
// resume paths can be exercised against a live HTTP endpoint.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
)

// Transaction mirrors the shape real provider APIs return: one record per
// on-chain transfer, ordered by block.
type Transaction struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

type transactionsResponse struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

const (
	genesisBlock  = 1000
	blockInterval = 12
	genesisTime   = 1760000000
	txPerBlock    = 2
	defaultPage   = 50
	maxPageSize   = 200
)

func txAt(index int, address string) Transaction {
	block := uint64(genesisBlock + index/txPerBlock)
	return Transaction{
		ID:          fmt.Sprintf("tx-%d-%d", block, index%txPerBlock),
		BlockNumber: block,
		Timestamp:   genesisTime + int64(index/txPerBlock)*blockInterval,
		From:        address,
		To:          fmt.Sprintf("0xrecipient%04d", index),
		Value:       strconv.Itoa(1000 + index),
	}
}

// Page tokens are just the next index, base64-wrapped so clients treat them
// as opaque.
func encodeToken(index int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(index)))
}

func decodeToken(token string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	name := flag.String("name", "alpha", "provider name returned in responses")
	total := flag.Int("total", 250, "total synthetic transactions in the feed")
	failRate := flag.Float64("fail-rate", 0.0, "probability of answering 503 or 429")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("request: path=%s query=%s from=%s", r.URL.Path, r.URL.RawQuery, r.RemoteAddr)

		if rand.Float64() < *failRate {
			if rand.Intn(2) == 0 {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			} else {
				http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			}
			return
		}

		address := r.URL.Query().Get("address")
		if address == "" {
			http.Error(w, "address is required", http.StatusBadRequest)
			return
		}

		pageSize := defaultPage
		if raw := r.URL.Query().Get("page_size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxPageSize {
				http.Error(w, "invalid page_size", http.StatusBadRequest)
				return
			}
			pageSize = n
		}

		start := 0
		switch {
		case r.URL.Query().Get("page_token") != "":
			index, err := decodeToken(r.URL.Query().Get("page_token"))
			if err != nil || index < 0 {
				http.Error(w, "invalid page_token", http.StatusBadRequest)
				return
			}
			start = index
		case r.URL.Query().Get("from_block") != "":
			block, err := strconv.ParseUint(r.URL.Query().Get("from_block"), 10, 64)
			if err != nil {
				http.Error(w, "invalid from_block", http.StatusBadRequest)
				return
			}
			if block > genesisBlock {
				start = int(block-genesisBlock) * txPerBlock
			}
		}

		resp := transactionsResponse{Transactions: []Transaction{}}
		for i := start; i < start+pageSize && i < *total; i++ {
			resp.Transactions = append(resp.Transactions, txAt(i, address))
		}
		if start+pageSize < *total {
			resp.NextPageToken = encodeToken(start + pageSize)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Provider-Name", *name)
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting fake provider %q on %s (%d transactions)", *name, addr, *total)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
