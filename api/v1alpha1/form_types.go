package v1alpha1

import "strings"

// Form field names recognized in a user's spawn form
const (
	FormClusterType   = "cluster_type"
	FormClusterZone   = "cluster_zone"
	FormCustomCluster = "custom_cluster"
	FormSingleUser    = "single_user"

	FormPipPackages   = "pip_packages"
	FormCondaPackages = "conda_packages"
	FormInitActions   = "init_actions"
	FormCustomLabels  = "custom_labels"

	FormImageVersion = "image_version"
	FormCustomImage  = "custom_image"

	FormMasterNodeType = "master_node_type"
	FormMasterDiskType = "master_disk_type"
	FormMasterDiskSize = "master_disk_size"

	FormWorkerNodeType   = "worker_node_type"
	FormWorkerDiskType   = "worker_disk_type"
	FormWorkerDiskSize   = "worker_disk_size"
	FormWorkerNodeAmount = "worker_node_amount"

	FormSecWorkerDiskType   = "sec_worker_disk_type"
	FormSecWorkerDiskSize   = "sec_worker_disk_size"
	FormSecWorkerNodeAmount = "sec_worker_node_amount"

	FormAutoscalingPolicy = "autoscaling_policy"

	FormHiveHost     = "hive_host"
	FormHiveDB       = "hive_db"
	FormHiveUser     = "hive_user"
	FormHivePassword = "hive_passwd"

	// FormClusterPropsPrefix starts the generic property triples:
	// cluster_props_prefix_N, cluster_props_key_N, cluster_props_val_N
	FormClusterPropsPrefix = "cluster_props_"
)

// AutoscalingPolicyNone is the sentinel submitted when no policy is chosen
const AutoscalingPolicyNone = "None"

// ImageVersionCustom is the image_version value selecting a custom image
const ImageVersionCustom = "custom"

// FormSelection is the flat set of values submitted in the spawn form.
// A missing key and an empty value are equivalent.
type FormSelection map[string]string

// Get returns the trimmed value of a field
func (f FormSelection) Get(key string) string {
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f[key])
}

// Has returns true when the field carries a non-empty value
func (f FormSelection) Has(key string) bool {
	return f.Get(key) != ""
}

// Checked interprets a checkbox-style value
func (f FormSelection) Checked(key string) bool {
	switch strings.ToLower(f.Get(key)) {
	case "", "false", "off", "0", "no":
		return false
	default:
		return true
	}
}

// NewFormSelection flattens multi-valued form data, keeping the first value of each field
func NewFormSelection(formdata map[string][]string) FormSelection {
	out := make(FormSelection, len(formdata))
	for k, v := range formdata {
		if len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

// Option is one selectable value in the options schema
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// OptionsSchema lists what the form-rendering layer may offer a user
type OptionsSchema struct {
	Templates           []Option `json:"templates"`
	Zones               []Option `json:"zones"`
	AllowCustomClusters bool     `json:"allowCustomClusters"`
	ShowInListing       bool     `json:"showInListing"`
	MachineTypes        []string `json:"machineTypes,omitempty"`
	AutoscalingPolicies []string `json:"autoscalingPolicies,omitempty"`
	ImageVersions       []Option `json:"imageVersions,omitempty"`
	Fields              []string `json:"fields"`
}
