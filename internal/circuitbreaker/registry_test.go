package circuitbreaker_test

import (
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/veloradata/chainstream/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var (
		registry *circuitbreaker.Registry
		now      time.Time
	)

	BeforeEach(func() {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		registry = circuitbreaker.NewRegistry(3, 30*time.Second, log, nil)
		now = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	})

	Describe("GetOrCreate", func() {
		It("should create a closed breaker on first access", func() {
			cb := registry.GetOrCreate("etherscan")
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same provider", func() {
			cb1 := registry.GetOrCreate("etherscan")
			cb2 := registry.GetOrCreate("etherscan")
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should keep breakers independent per provider", func() {
			registry.RecordFailure("etherscan", now)
			registry.RecordFailure("etherscan", now)
			registry.RecordFailure("etherscan", now)

			Expect(registry.IsCallable("etherscan", now)).To(BeFalse())
			Expect(registry.IsCallable("blockstream", now)).To(BeTrue())
		})
	})

	Describe("IsCallable", func() {
		It("should be true for an unknown provider", func() {
			Expect(registry.IsCallable("fresh", now)).To(BeTrue())
		})

		It("should be false after threshold failures until the cooldown elapses, then true exactly once", func() {
			registry.RecordFailure("etherscan", now)
			registry.RecordFailure("etherscan", now)
			registry.RecordFailure("etherscan", now)

			Expect(registry.IsCallable("etherscan", now.Add(time.Second))).To(BeFalse())

			later := now.Add(30 * time.Second)
			Expect(registry.IsCallable("etherscan", later)).To(BeTrue())
			Expect(registry.IsCallable("etherscan", later)).To(BeFalse())

			registry.RecordSuccess("etherscan", later)
			Expect(registry.IsCallable("etherscan", later)).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("should force a tripped breaker back to CLOSED", func() {
			registry.RecordFailure("etherscan", now)
			registry.RecordFailure("etherscan", now)
			registry.RecordFailure("etherscan", now)
			Expect(registry.IsCallable("etherscan", now)).To(BeFalse())

			registry.Reset("etherscan", now)
			Expect(registry.IsCallable("etherscan", now)).To(BeTrue())
		})
	})

	Describe("Snapshot", func() {
		It("should report every breaker without consuming probes", func() {
			registry.GetOrCreate("etherscan")
			registry.RecordFailure("blockstream", now)
			registry.RecordFailure("blockstream", now)
			registry.RecordFailure("blockstream", now)

			snaps := registry.Snapshot(now.Add(31 * time.Second))
			Expect(snaps).To(HaveLen(2))
			Expect(snaps["etherscan"].State).To(Equal(circuitbreaker.StateClosed))
			Expect(snaps["blockstream"].State).To(Equal(circuitbreaker.StateOpen))
			Expect(snaps["blockstream"].Callable).To(BeTrue())

			// Probe is still available to the executor afterwards
			Expect(registry.IsCallable("blockstream", now.Add(31*time.Second))).To(BeTrue())
		})
	})

	Describe("Concurrent access", func() {
		It("should handle concurrent GetOrCreate calls safely", func() {
			const goroutines = 100

			var wg sync.WaitGroup
			wg.Add(goroutines)

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					cb := registry.GetOrCreate("etherscan")
					Expect(cb).NotTo(BeNil())
				}()
			}

			wg.Wait()
			Expect(registry.Snapshot(now)).To(HaveLen(1))
		})

		It("should handle concurrent success/failure records on the same provider", func() {
			const goroutines = 50

			var wg sync.WaitGroup
			wg.Add(goroutines * 2)

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					registry.RecordFailure("etherscan", time.Now())
				}()
				go func() {
					defer wg.Done()
					registry.RecordSuccess("etherscan", time.Now())
				}()
			}

			wg.Wait()

			state := registry.GetOrCreate("etherscan").State()
			Expect(state).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			))
		})
	})
})
