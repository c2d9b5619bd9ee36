package progress

import (
	"context"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
)

func drain(events <-chan v1alpha1.ProgressEvent) []v1alpha1.ProgressEvent {
	var out []v1alpha1.ProgressEvent
	for event := range events {
		out = append(out, event)
	}
	return out
}

var _ = ginkgo.Describe("Ledger", func() {
	var ledger *Ledger

	ginkgo.BeforeEach(func() {
		ledger = newLedger("dataprochub-alice", time.Now())
	})

	ginkgo.It("should step with diminishing increments up to 90", func() {
		expected := []int{23, 40, 53, 63, 70, 75, 79, 82, 84, 86, 87, 88, 89, 90, 90}
		for i, want := range expected {
			event, ok := ledger.Observe(logsink.Entry{InsertID: string(rune('a' + i)), Message: "milestone"})
			Expect(ok).To(BeTrue())
			Expect(event.Progress).To(Equal(want))
		}
	})

	ginkgo.It("should ignore entries already seen", func() {
		_, ok := ledger.Observe(logsink.Entry{InsertID: "1", Method: "CreateCluster"})
		Expect(ok).To(BeTrue())
		_, ok = ledger.Observe(logsink.Entry{InsertID: "1", Method: "CreateCluster"})
		Expect(ok).To(BeFalse())
		Expect(ledger.Events()).To(HaveLen(1))
		Expect(ledger.Events()[0].Message).To(Equal("CreateCluster"))
	})

	ginkgo.It("should never decrease the percent", func() {
		ledger.Emit(v1alpha1.ProgressEvent{Progress: 50})
		event := ledger.Emit(v1alpha1.ProgressEvent{Progress: 10, Message: "late"})
		Expect(event.Progress).To(Equal(50))
		Expect(ledger.Percent()).To(Equal(50))
	})

	ginkgo.It("should drop events after close", func() {
		ledger.Close()
		ledger.Emit(v1alpha1.ProgressEvent{Progress: 10})
		Expect(ledger.Events()).To(BeEmpty())
		Expect(ledger.Closed()).To(BeTrue())
	})

	ginkgo.Context("Subscribe", func() {
		ginkgo.It("should replay prior events before live ones without duplicates", func() {
			for i := 0; i < 3; i++ {
				ledger.Observe(logsink.Entry{InsertID: string(rune('a' + i)), Message: "prior"})
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			events := ledger.Subscribe(ctx, 0)

			for i := 0; i < 3; i++ {
				Eventually(events).Should(Receive(HaveField("Message", "prior")))
			}
			ledger.Observe(logsink.Entry{InsertID: "live", Message: "live"})
			ledger.Observe(logsink.Entry{InsertID: "live", Message: "live"})
			Eventually(events).Should(Receive(HaveField("Message", "live")))
			ledger.Close()

			Eventually(events).Should(BeClosed())
		})

		ginkgo.It("should resume from an offset", func() {
			for i := 0; i < 4; i++ {
				ledger.Observe(logsink.Entry{InsertID: string(rune('a' + i))})
			}
			ledger.Close()

			received := drain(ledger.Subscribe(context.Background(), 2))
			Expect(received).To(Equal(ledger.Events()[2:]))
		})

		ginkgo.It("should give each observer the full stream", func() {
			ledger.Observe(logsink.Entry{InsertID: "a"})
			first := ledger.Subscribe(context.Background(), 0)
			ledger.Observe(logsink.Entry{InsertID: "b"})
			second := ledger.Subscribe(context.Background(), 0)
			ledger.Observe(logsink.Entry{InsertID: "c"})
			ledger.Close()

			Expect(drain(first)).To(HaveLen(3))
			Expect(drain(second)).To(HaveLen(3))
		})

		ginkgo.It("should stop on context cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			events := ledger.Subscribe(ctx, 0)
			cancel()
			Eventually(events).Should(BeClosed())
		})
	})
})

var _ = ginkgo.Describe("Registry", func() {
	ginkgo.It("should replace the ledger of a new attempt", func() {
		registry := NewRegistry()
		first := registry.Begin("c", time.Now())
		second := registry.Begin("c", time.Now())

		Expect(first.Closed()).To(BeTrue())
		current, ok := registry.Get("c")
		Expect(ok).To(BeTrue())
		Expect(current).To(BeIdenticalTo(second))

		registry.Forget("c")
		_, ok = registry.Get("c")
		Expect(ok).To(BeFalse())
		Expect(second.Closed()).To(BeTrue())
	})
})
