package clusterconfig

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/imageversion"
	"github.com/jupyter-infra/dataproc-hub/internal/template"
)

// Build merges a template, a form selection and the operator defaults into
// the request submitted to the control plane. tmpl may be nil. Build does
// not modify its inputs; the only remote call it makes is through
// defaults.Images for custom images.
func Build(ctx context.Context, tmpl *template.Template, form v1alpha1.FormSelection, defaults Defaults) (*v1alpha1.ClusterRequest, error) {
	logger := logf.FromContext(ctx).WithName("cluster-config").WithValues("clusterName", defaults.ClusterName)

	if defaults.ProjectID == "" || defaults.ClusterName == "" {
		return nil, spawnerrors.New(spawnerrors.KindValidation, "project id and cluster name are required")
	}

	// 1. template or empty
	if tmpl == nil {
		tmpl = template.Empty()
	}
	req, err := tmpl.Decode(ctx)
	if err != nil {
		return nil, err
	}
	templateZoneURI := req.Config.GceClusterConfig.ZoneURI
	cfg := &req.Config

	// 2. structural defaults
	applyStructuralDefaults(req, defaults)

	// 3. idle shutdown ahead of template actions
	applyIdleChecker(cfg, defaults.IdleChecker)

	// 4. session owner
	cfg.GceClusterConfig.Metadata[MetadataSessionUser] = defaults.Username

	// 5. user overrides
	if defaults.AllowCustomClusters && form.Checked(v1alpha1.FormCustomCluster) {
		applyUserOverrides(ctx, req, form, defaults)
	}

	// 6. identity and zone, always last writer
	zone := ResolveZone(form.Get(v1alpha1.FormClusterZone), templateZoneURI, defaults.Zone, defaults.Region)
	if zone == "" {
		return nil, spawnerrors.New(spawnerrors.KindConfiguration, "no zone configured for cluster %s", defaults.ClusterName)
	}
	req.ProjectID = defaults.ProjectID
	req.Region = defaults.Region
	req.ClusterName = defaults.ClusterName
	cfg.GceClusterConfig.ZoneURI = ZoneURI(defaults.ProjectID, zone)

	// 7. hub bootstrap properties
	props := cfg.SoftwareConfig.Properties
	props[PropertyHubArgs] = defaults.HubArgs
	props[PropertyHubEnv] = defaults.HubEnv
	props[PropertyHubEnabled] = "true"
	props[PropertyHubMenuEnabled] = "true"
	if defaults.NotebooksFolder != "" {
		props[PropertyNotebooksDir] = defaults.NotebooksFolder
	}

	// 8. image version
	if err := resolveImageVersion(ctx, cfg, defaults); err != nil {
		return nil, err
	}

	// 9. single tenancy converges on the caller
	requested := props[PropertyExclusiveUser]
	if defaults.ForceSingleUser || form.Checked(v1alpha1.FormSingleUser) ||
		(requested != "" && !strings.EqualFold(requested, "false")) {
		identity := defaults.UserIdentity
		if identity == "" {
			identity = defaults.Username
		}
		props[PropertyExclusiveUser] = identity
	} else {
		delete(props, PropertyExclusiveUser)
	}

	// 10. component gateway
	cfg.EndpointConfig.EnableHTTPPortAccess = true
	if v, err := imageversion.Parse(cfg.SoftwareConfig.ImageVersion); err == nil && !v.SupportsComponentGateway() {
		logger.Info("Image version predates component gateway support for the hub",
			"imageVersion", cfg.SoftwareConfig.ImageVersion)
	}

	// 11. optional components
	cfg.SoftwareConfig.OptionalComponents = normalizeComponents(
		cfg.SoftwareConfig.OptionalComponents, cfg.SoftwareConfig.ImageVersion, defaults.ForceJupyterComponents)

	// 12. durations
	if err := normalizeDurations(cfg); err != nil {
		return nil, err
	}

	// 13. geo scope
	if subnet := cfg.GceClusterConfig.SubnetworkURI; subnet != "" {
		if err := validateSubnetworkRegion(subnet, defaults.Region); err != nil {
			return nil, err
		}
	}

	// 14. zone-free machine and accelerator types
	// 15. export artifacts
	for _, group := range []*v1alpha1.InstanceGroupConfig{cfg.MasterConfig, cfg.WorkerConfig, cfg.SecondaryWorkerConfig} {
		stripZoneQualification(group)
		if group != nil {
			group.Preemptibility = ""
		}
	}
	for _, key := range instanceSpecificProperties {
		delete(props, key)
	}

	// 16. host label
	hostType := strings.ToLower(defaults.HostType)
	if hostType == "" {
		hostType = "unknown"
	}
	req.Labels[LabelSpawnerHost] = hostType

	logger.V(1).Info("Built cluster request", "zone", zone,
		"imageVersion", cfg.SoftwareConfig.ImageVersion,
		"initActions", len(cfg.InitializationActions))
	return req, nil
}

func applyStructuralDefaults(req *v1alpha1.ClusterRequest, defaults Defaults) {
	cfg := &req.Config
	if cfg.MasterConfig == nil {
		cfg.MasterConfig = &v1alpha1.InstanceGroupConfig{}
	}
	if cfg.WorkerConfig == nil {
		cfg.WorkerConfig = &v1alpha1.InstanceGroupConfig{}
	}
	if cfg.InitializationActions == nil {
		cfg.InitializationActions = []v1alpha1.NodeInitializationAction{}
	}
	if cfg.SoftwareConfig.Properties == nil {
		cfg.SoftwareConfig.Properties = map[string]string{}
	}
	if cfg.GceClusterConfig.Metadata == nil {
		cfg.GceClusterConfig.Metadata = map[string]string{}
	}
	if req.Labels == nil {
		req.Labels = map[string]string{}
	}

	gce := &cfg.GceClusterConfig
	if gce.SubnetworkURI == "" && gce.NetworkURI == "" && defaults.DefaultSubnet != "" {
		gce.SubnetworkURI = defaults.DefaultSubnet
	}
	if gce.ServiceAccount == "" && defaults.ServiceAccount != "" {
		gce.ServiceAccount = defaults.ServiceAccount
		gce.ServiceAccountScopes = []string{CloudPlatformScope}
	}
}

func applyIdleChecker(cfg *v1alpha1.ClusterConfig, idle IdleChecker) {
	if !idle.Enabled() {
		return
	}
	action := v1alpha1.NodeInitializationAction{
		ExecutableFile:   idle.JobPath,
		ExecutionTimeout: &v1alpha1.Duration{Seconds: idleCheckerTimeoutSeconds},
	}
	cfg.InitializationActions = append([]v1alpha1.NodeInitializationAction{action}, cfg.InitializationActions...)

	location := strings.TrimSuffix(idle.ScriptPath, idleCheckerScriptSuffix)
	location = strings.TrimSuffix(location, "/")
	timeout := idle.Timeout
	if timeout == "" {
		timeout = DefaultIdleTimeout
	}
	cfg.GceClusterConfig.Metadata[MetadataScriptLocation] = location
	cfg.GceClusterConfig.Metadata[MetadataMaxIdle] = timeout
}

// resolveImageVersion keeps an explicit version, otherwise derives it from
// the master's custom image, otherwise falls back to the operator default
func resolveImageVersion(ctx context.Context, cfg *v1alpha1.ClusterConfig, defaults Defaults) error {
	if cfg.SoftwareConfig.ImageVersion != "" {
		return nil
	}

	if image := cfg.MasterConfig.ImageURI; image != "" && defaults.Images != nil {
		version, err := defaults.Images.ImageVersion(ctx, image)
		if err != nil {
			return fmt.Errorf("failed to resolve the version of custom image %s: %w", image, err)
		}
		if version != "" {
			cfg.SoftwareConfig.ImageVersion = version
			return nil
		}
		logf.FromContext(ctx).Info("Custom image carries no version label, using the fallback version",
			"image", image)
	}

	cfg.SoftwareConfig.ImageVersion = defaults.FallbackImageVersion
	if cfg.SoftwareConfig.ImageVersion == "" {
		cfg.SoftwareConfig.ImageVersion = DefaultImageVersion
	}
	return nil
}

// normalizeComponents folds duplicates, adds the notebook components when
// forced and drops ANACONDA from images that no longer ship it. An image
// version that does not parse is treated as supporting ANACONDA.
func normalizeComponents(components []v1alpha1.Component, imageVersion string, forceJupyter bool) []v1alpha1.Component {
	set := sets.New(components...)
	set.Delete(v1alpha1.ComponentUnspecified)

	anaconda := true
	if imageVersion != "" {
		if v, err := imageversion.Parse(imageVersion); err == nil {
			anaconda = v.SupportsAnaconda()
		}
	}

	if forceJupyter {
		set.Insert(v1alpha1.ComponentJupyter)
		if anaconda {
			set.Insert(v1alpha1.ComponentAnaconda)
		}
	}
	if !anaconda {
		set.Delete(v1alpha1.ComponentAnaconda)
	}
	return sets.List(set)
}
