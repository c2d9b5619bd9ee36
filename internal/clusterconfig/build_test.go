package clusterconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/template"
)

func testDefaults() Defaults {
	return Defaults{
		ProjectID:              "hub-project",
		Region:                 "us-central1",
		Zone:                   "us-central1-a",
		ClusterName:            "dataprochub-alice",
		Username:               "alice",
		UserIdentity:           "alice@example.com",
		HubArgs:                "--NotebookApp.base_url=/user/alice/",
		HubEnv:                 `{"JUPYTERHUB_USER":"alice"}`,
		ForceJupyterComponents: true,
		AllowCustomClusters:    true,
	}
}

func mustTemplate(t *testing.T, yaml string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse("gs://cfg/t.yaml", []byte(yaml))
	require.NoError(t, err)
	return tmpl
}

func build(t *testing.T, yaml string, form v1alpha1.FormSelection, defaults Defaults) *v1alpha1.ClusterRequest {
	t.Helper()
	var tmpl *template.Template
	if yaml != "" {
		tmpl = mustTemplate(t, yaml)
	}
	req, err := Build(context.Background(), tmpl, form, defaults)
	require.NoError(t, err)
	return req
}

type fakeImages map[string]string

func (f fakeImages) ImageVersion(_ context.Context, uri string) (string, error) {
	v, ok := f[uri]
	if !ok {
		return "", spawnerrors.New(spawnerrors.KindNotFound, "image %s not found", uri)
	}
	return v, nil
}

const hostileTemplate = `
projectId: someone-else
clusterName: stolen-name
config:
  gceClusterConfig:
    zoneUri: us-east1-b
  softwareConfig:
    properties:
      dataproc:jupyter.hub.args: "--evil"
      dataproc:jupyter.hub.enabled: "false"
      hdfs:dfs.namenode.lifeline.rpc-address: old-m:8050
      hdfs:dfs.namenode.servicerpc-address: old-m:8051
  endpointConfig:
    enableHttpPortAccess: false
`

func TestBuildEnforcesNonNegotiableFields(t *testing.T) {
	inputs := map[string]struct {
		yaml string
		form v1alpha1.FormSelection
	}{
		"no template":      {"", nil},
		"hostile template": {hostileTemplate, nil},
		"hostile form": {hostileTemplate, v1alpha1.FormSelection{
			v1alpha1.FormCustomCluster:            "on",
			"cluster_props_prefix_0":              "dataproc",
			"cluster_props_key_0":                 "jupyter.hub.env",
			"cluster_props_val_0":                 "{}",
			v1alpha1.FormCustomLabels:             "owner:mallory",
			v1alpha1.FormClusterPropsPrefix + "x": "ignored",
		}},
	}
	defaults := testDefaults()
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			req := build(t, in.yaml, in.form, defaults)

			assert.Equal(t, "hub-project", req.ProjectID)
			assert.Equal(t, "dataprochub-alice", req.ClusterName)
			assert.NotEmpty(t, req.Config.GceClusterConfig.ZoneURI)

			props := req.Config.SoftwareConfig.Properties
			assert.Equal(t, defaults.HubArgs, props[PropertyHubArgs])
			assert.Equal(t, defaults.HubEnv, props[PropertyHubEnv])
			assert.Equal(t, "true", props[PropertyHubEnabled])
			assert.Equal(t, "true", props[PropertyHubMenuEnabled])
			assert.NotContains(t, props, "hdfs:dfs.namenode.lifeline.rpc-address")
			assert.NotContains(t, props, "hdfs:dfs.namenode.servicerpc-address")

			assert.True(t, req.Config.EndpointConfig.EnableHTTPPortAccess)
			assert.Equal(t, "unknown", req.Labels[LabelSpawnerHost])
			assert.Equal(t, "alice", req.Config.GceClusterConfig.Metadata[MetadataSessionUser])
		})
	}
}

func TestBuildZonePriority(t *testing.T) {
	const withZone = `
config:
  gceClusterConfig:
    zoneUri: https://www.googleapis.com/compute/v1/projects/p/zones/us-central1-b
`
	defaults := testDefaults()

	req := build(t, withZone, v1alpha1.FormSelection{v1alpha1.FormClusterZone: "us-central1-c"}, defaults)
	assert.Equal(t, ZoneURI("hub-project", "us-central1-c"), req.Config.GceClusterConfig.ZoneURI)

	req = build(t, withZone, nil, defaults)
	assert.Equal(t, ZoneURI("hub-project", "us-central1-b"), req.Config.GceClusterConfig.ZoneURI)

	req = build(t, "config: {}", nil, defaults)
	assert.Equal(t, ZoneURI("hub-project", "us-central1-a"), req.Config.GceClusterConfig.ZoneURI)

	defaults.Zone = ""
	_, err := Build(context.Background(), nil, nil, defaults)
	assert.True(t, spawnerrors.IsConfiguration(err))
}

func TestBuildAnacondaGating(t *testing.T) {
	tests := []struct {
		imageVersion string
		want         []v1alpha1.Component
	}{
		{"1.5-debian10", []v1alpha1.Component{v1alpha1.ComponentJupyter, v1alpha1.ComponentAnaconda}},
		{"2.0.0", []v1alpha1.Component{v1alpha1.ComponentJupyter}},
		{"2.0.0-RC5", []v1alpha1.Component{v1alpha1.ComponentJupyter, v1alpha1.ComponentAnaconda}},
	}
	for _, tt := range tests {
		t.Run(tt.imageVersion, func(t *testing.T) {
			req := build(t, `
config:
  softwareConfig:
    imageVersion: `+tt.imageVersion+`
    optionalComponents: [ANACONDA, ZEPPELIN, zeppelin]
`, nil, testDefaults())
			want := append([]v1alpha1.Component{}, tt.want...)
			want = append(want, v1alpha1.ComponentZeppelin)
			assert.ElementsMatch(t, want, req.Config.SoftwareConfig.OptionalComponents)
		})
	}
}

func TestBuildWithoutForcedComponents(t *testing.T) {
	defaults := testDefaults()
	defaults.ForceJupyterComponents = false

	req := build(t, "", nil, defaults)
	assert.Empty(t, req.Config.SoftwareConfig.OptionalComponents)
	assert.Equal(t, DefaultImageVersion, req.Config.SoftwareConfig.ImageVersion)
}

func TestBuildNormalizesDurations(t *testing.T) {
	req := build(t, `
config:
  initializationActions:
  - executableFile: gs://b/a.sh
    executionTimeout: 10m
  - executableFile: gs://b/b.sh
    executionTimeout:
      seconds: 42
      nanos: 0
  lifecycleConfig:
    idleDeleteTtl: 2h
    autoDeleteTtl: 1d
`, nil, testDefaults())

	actions := req.Config.InitializationActions
	require.Len(t, actions, 2)
	assert.Equal(t, &v1alpha1.Duration{Seconds: 600}, actions[0].ExecutionTimeout)
	assert.Equal(t, &v1alpha1.Duration{Seconds: 42}, actions[1].ExecutionTimeout)
	assert.Equal(t, int64(7200), req.Config.LifecycleConfig.IdleDeleteTTL.Seconds)
	assert.Equal(t, int64(86400), req.Config.LifecycleConfig.AutoDeleteTTL.Seconds)
}

func TestBuildRejectsMalformedDuration(t *testing.T) {
	tmpl := mustTemplate(t, `
config:
  initializationActions:
  - executableFile: gs://b/a.sh
    executionTimeout: tenminutes
`)
	_, err := Build(context.Background(), tmpl, nil, testDefaults())
	assert.True(t, spawnerrors.IsValidation(err))
}

func TestBuildGeoScope(t *testing.T) {
	tests := []struct {
		subnet  string
		wantErr bool
	}{
		{"projects/p/regions/us-central1/subnetworks/default", false},
		{"https://www.googleapis.com/compute/v1/projects/p/regions/global/subnetworks/shared", false},
		{"default", false},
		{"projects/p/regions/europe-west1/subnetworks/default", true},
	}
	for _, tt := range tests {
		t.Run(tt.subnet, func(t *testing.T) {
			tmpl := mustTemplate(t, "config:\n  gceClusterConfig:\n    subnetworkUri: "+tt.subnet+"\n")
			_, err := Build(context.Background(), tmpl, nil, testDefaults())
			if tt.wantErr {
				assert.True(t, spawnerrors.IsValidation(err))
				assert.True(t, errors.Is(err, spawnerrors.ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildStripsZoneQualification(t *testing.T) {
	req := build(t, `
config:
  masterConfig:
    machineTypeUri: https://www.googleapis.com/compute/v1/projects/p/zones/us-central1-f/machineTypes/n1-highmem-8
    preemptibility: NON_PREEMPTIBLE
    accelerators:
    - acceleratorTypeUri: projects/p/zones/us-central1-f/acceleratorTypes/nvidia-tesla-v100
      acceleratorCount: 2
  workerConfig:
    machineTypeUri: n1-standard-4
`, nil, testDefaults())

	assert.Equal(t, "n1-highmem-8", req.Config.MasterConfig.MachineTypeURI)
	assert.Equal(t, "nvidia-tesla-v100", req.Config.MasterConfig.Accelerators[0].AcceleratorTypeURI)
	assert.Empty(t, req.Config.MasterConfig.Preemptibility)
	assert.Equal(t, "n1-standard-4", req.Config.WorkerConfig.MachineTypeURI)
}

func TestBuildIdleCheckerPrecedesTemplateActions(t *testing.T) {
	defaults := testDefaults()
	defaults.IdleChecker = IdleChecker{
		JobPath:    "gs://scripts/isIdleJob.sh",
		ScriptPath: "gs://scripts/isIdle.sh",
	}
	req := build(t, `
config:
  initializationActions:
  - executableFile: gs://b/user.sh
`, nil, defaults)

	actions := req.Config.InitializationActions
	require.Len(t, actions, 2)
	assert.Equal(t, "gs://scripts/isIdleJob.sh", actions[0].ExecutableFile)
	assert.Equal(t, int64(1800), actions[0].ExecutionTimeout.Seconds)
	assert.Equal(t, "gs://b/user.sh", actions[1].ExecutableFile)

	metadata := req.Config.GceClusterConfig.Metadata
	assert.Equal(t, "gs://scripts", metadata[MetadataScriptLocation])
	assert.Equal(t, DefaultIdleTimeout, metadata[MetadataMaxIdle])
}

func TestBuildSingleTenancyConvergesOnCaller(t *testing.T) {
	const claimsOther = `
config:
  softwareConfig:
    properties:
      dataproc:dataproc.exclusive.user: mallory@example.com
`
	req := build(t, claimsOther, nil, testDefaults())
	assert.Equal(t, "alice@example.com", req.Config.SoftwareConfig.Properties[PropertyExclusiveUser])

	req = build(t, "", v1alpha1.FormSelection{v1alpha1.FormSingleUser: "on"}, testDefaults())
	assert.Equal(t, "alice@example.com", req.Config.SoftwareConfig.Properties[PropertyExclusiveUser])

	defaults := testDefaults()
	defaults.ForceSingleUser = true
	req = build(t, "", nil, defaults)
	assert.Equal(t, "alice@example.com", req.Config.SoftwareConfig.Properties[PropertyExclusiveUser])

	req = build(t, "", nil, testDefaults())
	assert.NotContains(t, req.Config.SoftwareConfig.Properties, PropertyExclusiveUser)
}

func TestBuildDefaultsIdentityAndNetwork(t *testing.T) {
	defaults := testDefaults()
	defaults.DefaultSubnet = "projects/hub-project/regions/us-central1/subnetworks/hub"
	defaults.ServiceAccount = "spawner@hub-project.iam.gserviceaccount.com"
	defaults.HostType = "GCE"
	defaults.NotebooksFolder = "gs://notebooks/alice"

	req := build(t, "", nil, defaults)
	gce := req.Config.GceClusterConfig
	assert.Equal(t, defaults.DefaultSubnet, gce.SubnetworkURI)
	assert.Equal(t, defaults.ServiceAccount, gce.ServiceAccount)
	assert.Equal(t, []string{CloudPlatformScope}, gce.ServiceAccountScopes)
	assert.Equal(t, "gce", req.Labels[LabelSpawnerHost])
	assert.Equal(t, "gs://notebooks/alice", req.Config.SoftwareConfig.Properties[PropertyNotebooksDir])
}

func TestBuildCustomImageVersion(t *testing.T) {
	const image = "projects/p/global/images/custom-spark"
	defaults := testDefaults()
	defaults.Images = fakeImages{image: "2.0.5-debian10"}

	req := build(t, "config:\n  masterConfig:\n    imageUri: "+image+"\n", nil, defaults)
	assert.Equal(t, "2.0.5-debian10", req.Config.SoftwareConfig.ImageVersion)
	assert.NotContains(t, req.Config.SoftwareConfig.OptionalComponents, v1alpha1.ComponentAnaconda)

	defaults.Images = fakeImages{}
	_, err := Build(context.Background(), mustTemplate(t, "config:\n  masterConfig:\n    imageUri: "+image+"\n"), nil, defaults)
	assert.True(t, spawnerrors.IsNotFound(err))
}

func TestBuildUnknownComponent(t *testing.T) {
	tmpl := mustTemplate(t, "config:\n  softwareConfig:\n    optionalComponents: [SPARKLY]\n")
	_, err := Build(context.Background(), tmpl, nil, testDefaults())
	assert.Equal(t, spawnerrors.KindUnknownComponent, spawnerrors.KindOf(err))
}

func TestBuildRequiresIdentity(t *testing.T) {
	defaults := testDefaults()
	defaults.ProjectID = ""
	_, err := Build(context.Background(), nil, nil, defaults)
	assert.True(t, spawnerrors.IsValidation(err))
}

func TestBuildDoesNotModifyTemplate(t *testing.T) {
	tmpl := mustTemplate(t, hostileTemplate)
	before := tmpl.Tree()

	_, err := Build(context.Background(), tmpl, nil, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, before, tmpl.Tree())
}
