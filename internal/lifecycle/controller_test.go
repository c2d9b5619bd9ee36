package lifecycle

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/clusterconfig"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

const (
	testProject = "hub-project"
	testRegion  = "us-central1"
	testCluster = "dataprochub-alice"
)

var notFound = spawnerrors.New(spawnerrors.KindNotFound, "cluster not found")

func startRequest() StartRequest {
	return StartRequest{
		TemplatePath: "gs://cfg/small.yaml",
		Form:         v1alpha1.FormSelection{},
		Defaults: clusterconfig.Defaults{
			ClusterName:  testCluster,
			Zone:         "us-central1-a",
			Username:     "alice",
			UserIdentity: "alice@example.com",
		},
	}
}

var _ = Describe("Controller", func() {
	var (
		ctx        context.Context
		client     *MockClient
		controller *Controller
		settings   Settings
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &MockClient{}
		settings = Settings{
			ProjectID:     testProject,
			Region:        testRegion,
			ZoneLetters:   []string{"a", "b"},
			CreateBackoff: wait.Backoff{Steps: 3},
		}
		loader := staticLoader{"gs://cfg/small.yaml": "config:\n  worker_config:\n    num_instances: 2\n"}
		controller = NewController(client, loader, settings, nil)
	})

	Context("Start", func() {
		It("should fail without a project", func() {
			controller = NewController(client, staticLoader{}, Settings{Region: testRegion}, nil)
			_, err := controller.Start(ctx, startRequest())
			Expect(spawnerrors.IsConfiguration(err)).To(BeTrue())
			client.AssertNotCalled(GinkgoT(), "Get", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})

		It("should return an existing cluster without creating", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(&v1alpha1.ClusterRecord{
				Name:      testCluster,
				State:     v1alpha1.ClusterStateRunning,
				ZoneURI:   clusterconfig.ZoneURI(testProject, "us-central1-b"),
				Endpoints: map[string]string{"JupyterLab": "https://abc-dot-us-central1.dataproc.googleusercontent.com/lab"},
			}, nil)

			result, err := controller.Start(ctx, startRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Existing).To(BeTrue())
			Expect(result.Zone).To(Equal("us-central1-b"))
			Expect(result.GatewayURL).To(Equal("https://abc-dot-us-central1.dataproc.googleusercontent.com/lab"))
			Expect(result.MasterFQDN).To(Equal("dataprochub-alice-m.us-central1-b.c.hub-project.internal"))
			client.AssertNotCalled(GinkgoT(), "Create", mock.Anything, mock.Anything)
		})

		It("should refuse a cluster pending deletion", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(&v1alpha1.ClusterRecord{
				Name:  testCluster,
				State: v1alpha1.ClusterStateDeleting,
			}, nil)

			_, err := controller.Start(ctx, startRequest())
			Expect(spawnerrors.IsConflict(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("pending deletion"))
			client.AssertNotCalled(GinkgoT(), "Create", mock.Anything, mock.Anything)
		})

		It("should create the cluster at most once across repeated starts", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound).Once()
			client.On("Create", mock.Anything, mock.Anything).Return(&v1alpha1.OperationHandle{
				Name:        "projects/hub-project/regions/us-central1/operations/op-1",
				ClusterName: testCluster,
			}, nil).Once()
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(&v1alpha1.ClusterRecord{
				Name:    testCluster,
				State:   v1alpha1.ClusterStateCreating,
				ZoneURI: clusterconfig.ZoneURI(testProject, "us-central1-a"),
			}, nil)

			first, err := controller.Start(ctx, startRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Existing).To(BeFalse())
			Expect(first.Operation.Name).To(HaveSuffix("op-1"))
			Expect(first.GatewayURL).To(BeEmpty())
			Expect(first.Address()).To(Equal("dataprochub-alice-m.us-central1-a.c.hub-project.internal"))

			second, err := controller.Start(ctx, startRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Existing).To(BeTrue())
			client.AssertNumberOfCalls(GinkgoT(), "Create", 1)
		})

		It("should prepare only clusters it creates", func() {
			prepared := 0
			req := startRequest()
			req.Prepare = func(context.Context) error {
				prepared++
				return nil
			}
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound).Once()
			client.On("Create", mock.Anything, mock.Anything).Return(&v1alpha1.OperationHandle{Name: "op-1"}, nil).Once()
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(&v1alpha1.ClusterRecord{
				Name:  testCluster,
				State: v1alpha1.ClusterStateCreating,
			}, nil)

			_, err := controller.Start(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			_, err = controller.Start(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(prepared).To(Equal(1))
		})

		It("should not create when preparation fails", func() {
			req := startRequest()
			req.Prepare = func(context.Context) error {
				return spawnerrors.New(spawnerrors.KindRemoteAPI, "bucket unavailable")
			}
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound)

			_, err := controller.Start(ctx, req)
			Expect(err).To(HaveOccurred())
			client.AssertNotCalled(GinkgoT(), "Create", mock.Anything, mock.Anything)
		})

		It("should submit the built request with identity fields", func() {
			var submitted *v1alpha1.ClusterRequest
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound).Once()
			client.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				submitted = args.Get(1).(*v1alpha1.ClusterRequest)
			}).Return(&v1alpha1.OperationHandle{Name: "op"}, nil)
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound)

			_, err := controller.Start(ctx, startRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(submitted.ProjectID).To(Equal(testProject))
			Expect(submitted.ClusterName).To(Equal(testCluster))
			Expect(submitted.Config.WorkerConfig.NumInstances).To(Equal(int64(2)))
			Expect(submitted.Config.EndpointConfig.EnableHTTPPortAccess).To(BeTrue())
		})

		It("should propagate template errors", func() {
			controller = NewController(client, staticLoader{"gs://cfg/small.yaml": "- not\n- a mapping\n"}, settings, nil)
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound)

			_, err := controller.Start(ctx, startRequest())
			Expect(spawnerrors.KindOf(err)).To(Equal(spawnerrors.KindParse))
			client.AssertNotCalled(GinkgoT(), "Create", mock.Anything, mock.Anything)
		})

		It("should treat a create conflict as an existing cluster", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound).Once()
			client.On("Create", mock.Anything, mock.Anything).
				Return(nil, spawnerrors.New(spawnerrors.KindConflict, "already exists")).Once()
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(&v1alpha1.ClusterRecord{
				Name:  testCluster,
				State: v1alpha1.ClusterStateCreating,
			}, nil)

			result, err := controller.Start(ctx, startRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Existing).To(BeTrue())
		})
	})

	Context("zone retry", func() {
		var zones []string

		BeforeEach(func() {
			zones = nil
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound)
		})

		recordZone := func(args mock.Arguments) {
			req := args.Get(1).(*v1alpha1.ClusterRequest)
			zones = append(zones, clusterconfig.ZoneFromURI(req.Config.GceClusterConfig.ZoneURI))
		}

		It("should stop after three quota failures in at most two zones", func() {
			quota := spawnerrors.New(spawnerrors.KindQuota, "insufficient CPUS quota")
			client.On("Create", mock.Anything, mock.Anything).Run(recordZone).Return(nil, quota)

			_, err := controller.Start(ctx, startRequest())
			Expect(spawnerrors.KindOf(err)).To(Equal(spawnerrors.KindQuota))
			Expect(zones).To(HaveLen(3))
			Expect(zones[:2]).To(Equal([]string{"us-central1-a", "us-central1-b"}))
			Expect(zones[2]).To(BeElementOf("us-central1-a", "us-central1-b"))
			client.AssertNumberOfCalls(GinkgoT(), "Create", 3)
		})

		It("should reuse a tried zone on the third attempt when more zones are offered", func() {
			settings.ZoneLetters = []string{"a", "b", "c"}
			controller = NewController(client, staticLoader{}, settings, nil)
			client.On("Create", mock.Anything, mock.Anything).Run(recordZone).
				Return(nil, spawnerrors.New(spawnerrors.KindQuota, "insufficient CPUS quota"))

			_, err := controller.Start(ctx, startRequest())
			Expect(spawnerrors.KindOf(err)).To(Equal(spawnerrors.KindQuota))
			client.AssertNumberOfCalls(GinkgoT(), "Create", 3)
			Expect(zones[:2]).To(Equal([]string{"us-central1-a", "us-central1-c"}))
			Expect(zones[2]).To(BeElementOf("us-central1-a", "us-central1-c"))
		})

		It("should succeed in the next zone after a rate limit", func() {
			client.On("Create", mock.Anything, mock.Anything).Run(recordZone).
				Return(nil, spawnerrors.New(spawnerrors.KindRateLimit, "slow down")).Once()
			client.On("Create", mock.Anything, mock.Anything).Run(recordZone).
				Return(&v1alpha1.OperationHandle{Name: "op"}, nil).Once()

			result, err := controller.Start(ctx, startRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Zone).To(Equal("us-central1-b"))
			Expect(zones).To(Equal([]string{"us-central1-a", "us-central1-b"}))
		})

		It("should not retry other errors", func() {
			client.On("Create", mock.Anything, mock.Anything).Run(recordZone).
				Return(nil, spawnerrors.New(spawnerrors.KindValidation, "bad machine type"))

			_, err := controller.Start(ctx, startRequest())
			Expect(spawnerrors.IsValidation(err)).To(BeTrue())
			client.AssertNumberOfCalls(GinkgoT(), "Create", 1)
		})

		It("should keep the zone when no candidates are configured", func() {
			settings.ZoneLetters = nil
			controller = NewController(client, staticLoader{}, settings, nil)
			client.On("Create", mock.Anything, mock.Anything).Run(recordZone).
				Return(nil, spawnerrors.New(spawnerrors.KindQuota, "quota"))

			_, err := controller.Start(ctx, StartRequest{Defaults: startRequest().Defaults})
			Expect(err).To(HaveOccurred())
			Expect(zones).To(Equal([]string{"us-central1-a", "us-central1-a", "us-central1-a"}))
		})
	})

	Context("Stop", func() {
		It("should do nothing when the cluster is absent", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound)
			Expect(controller.Stop(ctx, testCluster)).To(Succeed())
			client.AssertNotCalled(GinkgoT(), "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})

		It("should delete a running cluster", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).
				Return(&v1alpha1.ClusterRecord{Name: testCluster, State: v1alpha1.ClusterStateRunning}, nil)
			client.On("Delete", mock.Anything, testProject, testRegion, testCluster).Return(nil)

			Expect(controller.Stop(ctx, testCluster)).To(Succeed())
			client.AssertNumberOfCalls(GinkgoT(), "Delete", 1)
		})

		It("should not delete twice", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).
				Return(&v1alpha1.ClusterRecord{Name: testCluster, State: v1alpha1.ClusterStateDeleting}, nil)
			Expect(controller.Stop(ctx, testCluster)).To(Succeed())
			client.AssertNotCalled(GinkgoT(), "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	})

	Context("Poll", func() {
		DescribeTable("maps cluster states",
			func(state v1alpha1.ClusterState, expected v1alpha1.PollStatus) {
				client.On("Get", mock.Anything, testProject, testRegion, testCluster).
					Return(&v1alpha1.ClusterRecord{Name: testCluster, State: state}, nil)
				Expect(controller.Poll(ctx, testCluster)).To(Equal(expected))
			},
			Entry("creating", v1alpha1.ClusterStateCreating, v1alpha1.PollPending),
			Entry("running", v1alpha1.ClusterStateRunning, v1alpha1.PollRunning),
			Entry("updating", v1alpha1.ClusterStateUpdating, v1alpha1.PollRunning),
			Entry("error", v1alpha1.ClusterStateError, v1alpha1.PollStopped),
			Entry("deleting", v1alpha1.ClusterStateDeleting, v1alpha1.PollStopped),
			Entry("unknown", v1alpha1.ClusterStateUnknown, v1alpha1.PollStopped),
		)

		It("should report an absent cluster as stopped", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).Return(nil, notFound)
			Expect(controller.Poll(ctx, testCluster)).To(Equal(v1alpha1.PollStopped))
		})

		It("should report read failures as pending", func() {
			client.On("Get", mock.Anything, testProject, testRegion, testCluster).
				Return(nil, spawnerrors.New(spawnerrors.KindRemoteAPI, "backend unavailable"))
			status := controller.Poll(ctx, testCluster)
			Expect(status).To(Equal(v1alpha1.PollPending))
			Expect(status.Alive()).To(BeTrue())
		})
	})
})
