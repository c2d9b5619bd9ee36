package clusterconfig

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/stringutil"
)

// minPrimaryWorkers is the smallest primary worker group of a standard cluster
const minPrimaryWorkers = 2

const (
	propsPrefixField = v1alpha1.FormClusterPropsPrefix + "prefix_"
	propsKeyField    = v1alpha1.FormClusterPropsPrefix + "key_"
	propsValueField  = v1alpha1.FormClusterPropsPrefix + "val_"
)

// applyUserOverrides writes the custom cluster fields of the form over the
// template. Malformed numbers are ignored.
func applyUserOverrides(ctx context.Context, req *v1alpha1.ClusterRequest, form v1alpha1.FormSelection, defaults Defaults) {
	logger := logf.FromContext(ctx).WithName("user-overrides")
	cfg := &req.Config
	metadata := cfg.GceClusterConfig.Metadata
	props := cfg.SoftwareConfig.Properties

	if form.Has(v1alpha1.FormPipPackages) {
		metadata[MetadataPipPackages] = mergePackages(metadata[MetadataPipPackages], form.Get(v1alpha1.FormPipPackages))
		appendInitActionOnce(cfg, PipInstallAction)
	}
	if form.Has(v1alpha1.FormCondaPackages) {
		metadata[MetadataCondaPackages] = mergePackages(metadata[MetadataCondaPackages], form.Get(v1alpha1.FormCondaPackages))
		appendInitActionOnce(cfg, CondaInstallAction)
	}

	for _, action := range stringutil.SplitList(form.Get(v1alpha1.FormInitActions)) {
		cfg.InitializationActions = append(cfg.InitializationActions, v1alpha1.NodeInitializationAction{ExecutableFile: action})
	}

	for key, value := range propertyTriples(form) {
		props[key] = value
	}

	if v := form.Get(v1alpha1.FormMasterNodeType); v != "" {
		cfg.MasterConfig.MachineTypeURI = v
	}
	if v := form.Get(v1alpha1.FormWorkerNodeType); v != "" {
		cfg.WorkerConfig.MachineTypeURI = v
	}

	setDiskType(cfg.MasterConfig, form.Get(v1alpha1.FormMasterDiskType))
	setDiskType(cfg.WorkerConfig, form.Get(v1alpha1.FormWorkerDiskType))

	floor := defaults.MinDiskSizeGB
	if size, ok := formInt(logger, form, v1alpha1.FormMasterDiskSize); ok {
		diskConfig(cfg.MasterConfig).BootDiskSizeGB = clamp(size, floor)
	}
	if size, ok := formInt(logger, form, v1alpha1.FormWorkerDiskSize); ok {
		diskConfig(cfg.WorkerConfig).BootDiskSizeGB = clamp(size, floor)
	}
	if n, ok := formInt(logger, form, v1alpha1.FormWorkerNodeAmount); ok {
		cfg.WorkerConfig.NumInstances = clamp(n, minPrimaryWorkers)
	}

	if form.Has(v1alpha1.FormSecWorkerDiskType) || form.Has(v1alpha1.FormSecWorkerDiskSize) || form.Has(v1alpha1.FormSecWorkerNodeAmount) {
		if cfg.SecondaryWorkerConfig == nil {
			cfg.SecondaryWorkerConfig = &v1alpha1.InstanceGroupConfig{}
		}
		setDiskType(cfg.SecondaryWorkerConfig, form.Get(v1alpha1.FormSecWorkerDiskType))
		if size, ok := formInt(logger, form, v1alpha1.FormSecWorkerDiskSize); ok {
			diskConfig(cfg.SecondaryWorkerConfig).BootDiskSizeGB = clamp(size, floor)
		}
		if n, ok := formInt(logger, form, v1alpha1.FormSecWorkerNodeAmount); ok {
			cfg.SecondaryWorkerConfig.NumInstances = clamp(n, 0)
		}
	}

	applyImageChoice(cfg, form)

	if policy := form.Get(v1alpha1.FormAutoscalingPolicy); policy != "" && policy != v1alpha1.AutoscalingPolicyNone {
		cfg.AutoscalingConfig = &v1alpha1.AutoscalingConfig{
			PolicyURI: AutoscalingPolicyURI(defaults.ProjectID, defaults.Region, policy),
		}
	}

	if host, db, user, password := form.Get(v1alpha1.FormHiveHost), form.Get(v1alpha1.FormHiveDB),
		form.Get(v1alpha1.FormHiveUser), form.Get(v1alpha1.FormHivePassword); host != "" && db != "" && user != "" && password != "" {
		props["hive:hive.metastore.schema.verification"] = "false"
		props["hive:javax.jdo.option.ConnectionURL"] = fmt.Sprintf("jdbc:mysql://%s/%s", host, db)
		props["hive:javax.jdo.option.ConnectionUserName"] = user
		props["hive:javax.jdo.option.ConnectionPassword"] = password
	}

	for key, value := range ParseLabels(form.Get(v1alpha1.FormCustomLabels)) {
		req.Labels[key] = value
	}
}

// applyImageChoice sets either a published image version or a custom image.
// A custom image clears the version so it is derived from the image later.
func applyImageChoice(cfg *v1alpha1.ClusterConfig, form v1alpha1.FormSelection) {
	version := form.Get(v1alpha1.FormImageVersion)
	image := form.Get(v1alpha1.FormCustomImage)

	switch {
	case version == v1alpha1.ImageVersionCustom || (version == "" && image != ""):
		if image == "" {
			return
		}
		cfg.SoftwareConfig.ImageVersion = ""
		for _, group := range []*v1alpha1.InstanceGroupConfig{cfg.MasterConfig, cfg.WorkerConfig, cfg.SecondaryWorkerConfig} {
			if group != nil {
				group.ImageURI = image
			}
		}
	case version != "":
		cfg.SoftwareConfig.ImageVersion = version
		for _, group := range []*v1alpha1.InstanceGroupConfig{cfg.MasterConfig, cfg.WorkerConfig, cfg.SecondaryWorkerConfig} {
			if group != nil {
				group.ImageURI = ""
			}
		}
	}
}

// mergePackages returns the union of two space separated package lists,
// keeping first-seen order
func mergePackages(existing, added string) string {
	seen := map[string]bool{}
	var out []string
	for _, pkg := range append(strings.Fields(existing), strings.Fields(added)...) {
		if !seen[pkg] {
			seen[pkg] = true
			out = append(out, pkg)
		}
	}
	return strings.Join(out, " ")
}

func appendInitActionOnce(cfg *v1alpha1.ClusterConfig, executable string) {
	for _, action := range cfg.InitializationActions {
		if action.ExecutableFile == executable {
			return
		}
	}
	cfg.InitializationActions = append(cfg.InitializationActions, v1alpha1.NodeInitializationAction{ExecutableFile: executable})
}

// propertyTriples reads cluster_props_prefix_N / key_N / val_N. Triples are
// applied in index order so a later index wins on the same key.
func propertyTriples(form v1alpha1.FormSelection) map[string]string {
	var indexes []int
	for field := range form {
		if suffix, ok := strings.CutPrefix(field, propsKeyField); ok {
			if n, err := strconv.Atoi(suffix); err == nil {
				indexes = append(indexes, n)
			}
		}
	}
	sort.Ints(indexes)

	props := map[string]string{}
	for _, n := range indexes {
		idx := strconv.Itoa(n)
		key := form.Get(propsKeyField + idx)
		if key == "" {
			continue
		}
		if prefix := form.Get(propsPrefixField + idx); prefix != "" {
			key = prefix + ":" + key
		}
		props[key] = form.Get(propsValueField + idx)
	}
	return props
}

// ParseLabels parses "k1:v1,k2:v2". Pairs without a key are skipped.
func ParseLabels(value string) map[string]string {
	labels := map[string]string{}
	for _, pair := range stringutil.SplitList(value) {
		key, val, _ := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		labels[key] = strings.TrimSpace(val)
	}
	return labels
}

func setDiskType(group *v1alpha1.InstanceGroupConfig, diskType string) {
	if diskType != "" {
		diskConfig(group).BootDiskType = diskType
	}
}

func diskConfig(group *v1alpha1.InstanceGroupConfig) *v1alpha1.DiskConfig {
	if group.DiskConfig == nil {
		group.DiskConfig = &v1alpha1.DiskConfig{}
	}
	return group.DiskConfig
}

func clamp(value, floor int64) int64 {
	if value < floor {
		return floor
	}
	return value
}

func formInt(logger logr.Logger, form v1alpha1.FormSelection, field string) (int64, bool) {
	raw := form.Get(field)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.V(1).Info("Ignoring non numeric form value", "field", field, "value", raw)
		return 0, false
	}
	return n, true
}
