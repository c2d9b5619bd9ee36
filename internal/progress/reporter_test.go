package progress

import (
	"context"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
)

var _ = ginkgo.Describe("Reporter", func() {
	var (
		ctx      context.Context
		client   *fakeClient
		sink     *fakeSink
		recorder *countingRecorder
		reporter *Reporter
		op       *v1alpha1.OperationHandle
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		client = &fakeClient{doneAfter: 4, state: v1alpha1.ClusterStateRunning}
		sink = &fakeSink{entries: []logsink.Entry{
			{InsertID: "1", Method: "CreateCluster", Message: "Creating cluster"},
			{InsertID: "2", Method: "ProvisionInstances", Message: "Provisioning instances"},
			{InsertID: "3", Method: "StartComponents", Message: "Starting components"},
		}}
		recorder = &countingRecorder{}
		reporter = NewReporter(client, sink, NewRegistry(), Options{
			ProjectID: "hub-project",
			Region:    "us-central1",
			Interval:  time.Millisecond,
		}, recorder)
		op = &v1alpha1.OperationHandle{
			Name:        "projects/hub-project/regions/us-central1/operations/op-1",
			ClusterName: "dataprochub-alice",
			ClusterUUID: "uuid-1",
			StartTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		}
	})

	ginkgo.It("should emit each milestone once then a closing event", func() {
		ledger := reporter.Begin(op)
		Expect(reporter.Run(ctx, ledger, op)).To(Succeed())

		events := ledger.Events()
		Expect(events).To(HaveLen(5))
		Expect(events[0].Message).To(ContainSubstring("Creating cluster dataprochub-alice"))
		Expect(events[1].Progress).To(Equal(23))
		Expect(events[2].Progress).To(Equal(40))
		Expect(events[3].Progress).To(Equal(53))
		Expect(events[4].Progress).To(Equal(RunningProgress))
		Expect(events[4].Ready).To(BeTrue())
		Expect(ledger.Closed()).To(BeTrue())
		Expect(recorder.events).To(HaveLen(5))
	})

	ginkgo.It("should scope log queries to the attempt", func() {
		ledger := reporter.Begin(op)
		Expect(reporter.Run(ctx, ledger, op)).To(Succeed())

		Expect(sink.filters).NotTo(BeEmpty())
		Expect(sink.filters[0]).To(ContainSubstring(`resource.labels.cluster_uuid="uuid-1"`))
		Expect(sink.filters[0]).To(ContainSubstring(`timestamp>="2024-03-01T10:00:00Z"`))
		Expect(sink.filters[0]).NotTo(ContainSubstring(logsink.MethodField))
	})

	ginkgo.It("should narrow log queries to the configured milestone methods", func() {
		reporter = NewReporter(client, sink, NewRegistry(), Options{
			ProjectID: "hub-project",
			Region:    "us-central1",
			Interval:  time.Millisecond,
			Methods:   []string{"CreateCluster", "StartComponents"},
		}, recorder)
		ledger := reporter.Begin(op)
		Expect(reporter.Run(ctx, ledger, op)).To(Succeed())

		Expect(sink.filters[0]).To(ContainSubstring(`jsonPayload.method=("CreateCluster" OR "StartComponents")`))
	})

	ginkgo.It("should finish with a failed event at 100", func() {
		client.opError = "Insufficient 'CPUS' quota"
		ledger := reporter.Begin(op)
		Expect(reporter.Run(ctx, ledger, op)).To(Succeed())

		events := ledger.Events()
		last := events[len(events)-1]
		Expect(last.Failed).To(BeTrue())
		Expect(last.Progress).To(Equal(FailedProgress))
		Expect(last.Message).To(ContainSubstring("CPUS"))
	})

	ginkgo.It("should not report ready for a cluster that is not running", func() {
		client.state = v1alpha1.ClusterStateError
		ledger := reporter.Begin(op)
		Expect(reporter.Run(ctx, ledger, op)).To(Succeed())

		for _, event := range ledger.Events() {
			Expect(event.Ready).To(BeFalse())
			Expect(event.Progress).To(BeNumerically("<=", 90))
		}
	})

	ginkgo.It("should replay to a late observer without duplicates", func() {
		client.doneAfter = 1000
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		ledger := reporter.Begin(op)
		go func() {
			defer ginkgo.GinkgoRecover()
			_ = reporter.Run(runCtx, ledger, op)
		}()

		Eventually(ledger.Events).Should(HaveLen(4))
		late := ledger.Subscribe(ctx, 0)
		cancel()

		received := drain(late)
		Expect(received).To(Equal(ledger.Events()))
		Expect(received).To(HaveLen(4))
	})

	ginkgo.It("should stop when the context is cancelled", func() {
		client.doneAfter = 1000
		runCtx, cancel := context.WithCancel(ctx)
		cancel()
		ledger := reporter.Begin(op)
		Expect(reporter.Run(runCtx, ledger, op)).NotTo(Succeed())
		Expect(ledger.Closed()).To(BeTrue())
	})
})
