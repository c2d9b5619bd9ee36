/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

package spawner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/blobstore"
	"github.com/jupyter-infra/dataproc-hub/internal/clusterconfig"
	"github.com/jupyter-infra/dataproc-hub/internal/controlplane"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/lifecycle"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
	"github.com/jupyter-infra/dataproc-hub/internal/progress"
	"github.com/jupyter-infra/dataproc-hub/internal/stringutil"
	"github.com/jupyter-infra/dataproc-hub/internal/template"
)

// User identifies one server slot of a hub user
type User struct {
	// Name is the hub user name
	Name string
	// Identity is the caller's account, granted exclusive use of the cluster
	Identity string
	// Server is the named server, empty for the default server
	Server string
	// Env and Args are what the hub would pass to a local notebook server
	Env  map[string]string
	Args []string
}

// Dependencies are the remote services a Spawner talks to
type Dependencies struct {
	Client controlplane.Client
	Store  blobstore.Store
	Sink   logsink.Sink
	Images clusterconfig.ImageResolver
	// Recorder receives lifecycle and progress observations; may be nil
	Recorder Recorder
}

// Recorder observes lifecycle operations and progress events
type Recorder interface {
	lifecycle.Recorder
	progress.Recorder
}

// Spawner implements the start, stop, poll and progress hooks of a hub
type Spawner struct {
	config    *Config
	client    controlplane.Client
	store     blobstore.Store
	images    clusterconfig.ImageResolver
	loader    *template.Loader
	namer     lifecycle.Namer
	lifecycle *lifecycle.Controller
	reporter  *progress.Reporter

	// names keeps generated cluster names stable per server slot
	names sync.Map
}

// New creates a Spawner
func New(config *Config, deps Dependencies) *Spawner {
	loader := template.NewLoader(deps.Store)

	var lifecycleRecorder lifecycle.Recorder
	var progressRecorder progress.Recorder
	if deps.Recorder != nil {
		lifecycleRecorder = deps.Recorder
		progressRecorder = deps.Recorder
	}

	return &Spawner{
		config: config,
		client: deps.Client,
		store:  deps.Store,
		images: deps.Images,
		loader: loader,
		namer: lifecycle.Namer{
			Pattern:      config.ClusterNamePattern,
			RandomSuffix: config.ClusterNameRandomSuffix,
		},
		lifecycle: lifecycle.NewController(deps.Client, loader, lifecycle.Settings{
			ProjectID:   config.ProjectID,
			Region:      config.Region,
			ZoneLetters: config.ZoneLetters,
		}, lifecycleRecorder),
		reporter: progress.NewReporter(deps.Client, deps.Sink, progress.NewRegistry(), progress.Options{
			ProjectID: config.ProjectID,
			Region:    config.Region,
			Interval:  config.ProgressInterval,
			Methods:   config.MilestoneMethods,
		}, progressRecorder),
	}
}

// ClusterName returns the name of the cluster backing a user's server
func (s *Spawner) ClusterName(user User) string {
	if !s.namer.RandomSuffix {
		return s.namer.Name(user.Name, user.Server)
	}
	key := user.Name + "/" + user.Server
	if name, ok := s.names.Load(key); ok {
		return name.(string)
	}
	name, _ := s.names.LoadOrStore(key, s.namer.Name(user.Name, user.Server))
	return name.(string)
}

// Start creates the user's cluster, or returns the one already running.
// Creation progress is followed in the background until the operation ends.
func (s *Spawner) Start(ctx context.Context, user User, form v1alpha1.FormSelection) (*lifecycle.StartResult, error) {
	name := s.ClusterName(user)
	logger := logf.FromContext(ctx).WithName("spawner").
		WithValues("user", stringutil.SanitizeUsername(user.Name), "clusterName", name)
	ctx = logf.IntoContext(ctx, logger)

	templatePath, err := s.templatePath(form)
	if err != nil {
		return nil, err
	}

	defaults, err := s.defaults(name, user)
	if err != nil {
		return nil, err
	}

	result, err := s.lifecycle.Start(ctx, lifecycle.StartRequest{
		TemplatePath: templatePath,
		Form:         form,
		Defaults:     defaults,
		Prepare: func(ctx context.Context) error {
			s.copyExampleNotebooks(ctx, user)
			return nil
		},
	})
	if err != nil {
		logger.Error(err, "Failed to start cluster")
		return nil, err
	}

	if result.Operation != nil {
		op := *result.Operation
		if op.ClusterName == "" {
			op.ClusterName = name
		}
		ledger := s.reporter.Begin(&op)
		go func() {
			if err := s.reporter.Run(context.WithoutCancel(ctx), ledger, &op); err != nil {
				logger.Error(err, "Progress reporting ended early")
			}
		}()
	}
	return result, nil
}

// Render builds the request Start would submit for a new cluster from
// templatePath, without contacting the control plane
func (s *Spawner) Render(ctx context.Context, user User, templatePath string, form v1alpha1.FormSelection) (*v1alpha1.ClusterRequest, error) {
	var tmpl *template.Template
	if templatePath != "" {
		var err error
		if tmpl, err = s.loader.Load(ctx, templatePath); err != nil {
			return nil, err
		}
	}
	defaults, err := s.defaults(s.ClusterName(user), user)
	if err != nil {
		return nil, err
	}
	return clusterconfig.Build(ctx, tmpl, form, defaults)
}

// Stop deletes the user's cluster
func (s *Spawner) Stop(ctx context.Context, user User) error {
	name := s.ClusterName(user)
	if err := s.lifecycle.Stop(ctx, name); err != nil {
		return err
	}
	s.reporter.Registry().Forget(name)
	return nil
}

// Poll reports whether the user's server is still alive
func (s *Spawner) Poll(ctx context.Context, user User) v1alpha1.PollStatus {
	return s.lifecycle.Poll(ctx, s.ClusterName(user))
}

// Progress streams the creation events of the user's cluster from index from.
// A NotFound error means no creation was started by this process.
func (s *Spawner) Progress(ctx context.Context, user User, from int) (<-chan v1alpha1.ProgressEvent, error) {
	name := s.ClusterName(user)
	ledger, ok := s.reporter.Registry().Get(name)
	if !ok {
		return nil, spawnerrors.New(spawnerrors.KindNotFound, "no creation in progress for cluster %s", name)
	}
	return ledger.Subscribe(ctx, from), nil
}

// GatewayURL returns the component gateway address of the user's cluster
func (s *Spawner) GatewayURL(ctx context.Context, user User) (string, error) {
	name := s.ClusterName(user)
	record, err := s.lifecycle.Cluster(ctx, name)
	if err != nil {
		return "", err
	}
	if url := lifecycle.GatewayURL(record); url != "" {
		return url, nil
	}
	return "", spawnerrors.New(spawnerrors.KindNotFound, "cluster %s has no notebook gateway yet", name)
}

// templatePath returns the template chosen in the form, which must be one
// the operator offers. Without a choice the first configured file is used.
func (s *Spawner) templatePath(form v1alpha1.FormSelection) (string, error) {
	chosen := form.Get(v1alpha1.FormClusterType)
	if chosen == "" {
		for _, location := range s.config.TemplateLocations {
			if strings.HasSuffix(location, ".yaml") || strings.HasSuffix(location, ".yml") {
				return location, nil
			}
		}
		return "", nil
	}

	bucket, object := blobstore.SplitPath(chosen)
	for _, location := range s.config.TemplateLocations {
		locBucket, locObject := blobstore.SplitPath(location)
		if locBucket != bucket {
			continue
		}
		if locObject == object || locObject == "" || strings.HasPrefix(object, strings.TrimSuffix(locObject, "/")+"/") {
			return chosen, nil
		}
	}
	return "", spawnerrors.New(spawnerrors.KindValidation, "cluster template %s is not offered", chosen)
}

func (s *Spawner) defaults(clusterName string, user User) (clusterconfig.Defaults, error) {
	env, err := hubEnv(user.Env, user.Name)
	if err != nil {
		return clusterconfig.Defaults{}, err
	}
	encodedEnv, err := encodeHubEnv(env)
	if err != nil {
		return clusterconfig.Defaults{}, err
	}

	return clusterconfig.Defaults{
		ProjectID:      s.config.ProjectID,
		Region:         s.config.Region,
		Zone:           s.config.Zone,
		ClusterName:    clusterName,
		Username:       strings.ToLower(stringutil.NormalizeUsername(user.Name)),
		UserIdentity:   user.Identity,
		DefaultSubnet:  s.config.DefaultSubnet,
		ServiceAccount: s.config.ServiceAccount,
		IdleChecker: clusterconfig.IdleChecker{
			JobPath:    s.config.IdleJobPath,
			ScriptPath: s.config.IdleScriptPath,
			Timeout:    s.config.IdleTimeout,
		},
		AllowCustomClusters:    s.config.AllowCustomClusters,
		ForceSingleUser:        s.config.ForceSingleUser,
		ForceJupyterComponents: s.config.ForceJupyterComponents,
		HubArgs:                encodeHubArgs(user.Args),
		HubEnv:                 encodedEnv,
		NotebooksFolder:        s.userNotebooksFolder(user),
		HostType:               s.config.HostType,
		FallbackImageVersion:   s.config.FallbackImageVersion,
		MinDiskSizeGB:          s.config.MinDiskSizeGB,
		Images:                 s.images,
	}, nil
}

// userNotebooksFolder is where the user's notebooks persist, if configured
func (s *Spawner) userNotebooksFolder(user User) string {
	if s.config.NotebooksBucket == "" {
		return ""
	}
	bucket, prefix := blobstore.SplitFolder(s.config.NotebooksBucket)
	return blobstore.JoinPath(bucket, prefix+user.Name)
}

// copyExampleNotebooks seeds the user's folder with the operator's example
// notebooks. Failures are logged; the spawn goes on without them.
func (s *Spawner) copyExampleNotebooks(ctx context.Context, user User) {
	logger := logf.FromContext(ctx)
	userFolder := s.userNotebooksFolder(user)
	if s.config.DefaultNotebooksPath == "" || userFolder == "" {
		logger.V(1).Info("No example notebooks to copy")
		return
	}
	target := userFolder + "/" + s.config.DefaultNotebooksFolder
	copied, err := blobstore.CopyFolder(ctx, s.store, s.config.DefaultNotebooksPath, target)
	if err != nil {
		logger.Error(err, "Failed to copy example notebooks", "source", s.config.DefaultNotebooksPath)
		return
	}
	logger.Info("Copied example notebooks", "destination", target, "objects", copied)
}

// Options lists what the form may offer: templates, zones, machine types
// and autoscaling policies.
func (s *Spawner) Options(ctx context.Context) (*v1alpha1.OptionsSchema, error) {
	logger := logf.FromContext(ctx).WithName("spawner")

	templates, err := s.loader.List(ctx, s.config.TemplateLocations)
	if err != nil {
		return nil, err
	}

	schema := &v1alpha1.OptionsSchema{
		Templates:           templates,
		Zones:               s.zoneOptions(),
		AllowCustomClusters: s.config.AllowCustomClusters,
		ShowInListing:       s.config.ShowInListing,
		Fields:              []string{v1alpha1.FormClusterType, v1alpha1.FormClusterZone},
	}
	if !s.config.AllowCustomClusters {
		return schema, nil
	}

	schema.MachineTypes = s.config.MachineTypes
	schema.ImageVersions = ImageVersionOptions
	schema.Fields = append(schema.Fields, customClusterFields...)

	policies, err := s.client.ListAutoscalingPolicies(ctx, s.config.ProjectID, s.config.Region)
	if err != nil {
		// The form stays usable without policies
		logger.Error(err, "Failed to list autoscaling policies")
	}
	schema.AutoscalingPolicies = append([]string{v1alpha1.AutoscalingPolicyNone}, policies...)
	return schema, nil
}

func (s *Spawner) zoneOptions() []v1alpha1.Option {
	letters := s.config.ZoneLetters
	if len(letters) == 0 {
		return []v1alpha1.Option{{Label: s.config.Zone, Value: s.config.Zone}}
	}
	options := make([]v1alpha1.Option, 0, len(letters))
	for _, letter := range letters {
		zone := fmt.Sprintf("%s-%s", s.config.Region, letter)
		options = append(options, v1alpha1.Option{Label: zone, Value: zone})
	}
	return options
}

// ImageVersionOptions are the image choices offered to users
var ImageVersionOptions = []v1alpha1.Option{
	{Label: "None", Value: ""},
	{Label: "PREVIEW 2.0", Value: "preview-debian10"},
	{Label: "1.5-debian10", Value: "1.5-debian10"},
	{Label: "1.4-debian10", Value: "1.4-debian10"},
	{Label: "Custom image", Value: v1alpha1.ImageVersionCustom},
}

var customClusterFields = []string{
	v1alpha1.FormCustomCluster,
	v1alpha1.FormSingleUser,
	v1alpha1.FormPipPackages,
	v1alpha1.FormCondaPackages,
	v1alpha1.FormInitActions,
	v1alpha1.FormCustomLabels,
	v1alpha1.FormImageVersion,
	v1alpha1.FormCustomImage,
	v1alpha1.FormMasterNodeType,
	v1alpha1.FormMasterDiskType,
	v1alpha1.FormMasterDiskSize,
	v1alpha1.FormWorkerNodeType,
	v1alpha1.FormWorkerDiskType,
	v1alpha1.FormWorkerDiskSize,
	v1alpha1.FormWorkerNodeAmount,
	v1alpha1.FormSecWorkerDiskType,
	v1alpha1.FormSecWorkerDiskSize,
	v1alpha1.FormSecWorkerNodeAmount,
	v1alpha1.FormAutoscalingPolicy,
	v1alpha1.FormHiveHost,
	v1alpha1.FormHiveDB,
	v1alpha1.FormHiveUser,
	v1alpha1.FormHivePassword,
}
