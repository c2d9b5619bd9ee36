/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package v1alpha1 holds the cluster request tree submitted to the control
// plane, the records read back from it, and the values exchanged with the hub.
package v1alpha1

// ClusterRequest is the final structure submitted to the control plane.
// ProjectID and ClusterName are always written by the lifecycle controller.
type ClusterRequest struct {
	ProjectID   string            `json:"project_id"`
	Region      string            `json:"region,omitempty"`
	ClusterName string            `json:"cluster_name"`
	Config      ClusterConfig     `json:"config"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ClusterConfig is the config section of a cluster request
type ClusterConfig struct {
	ConfigBucket string `json:"config_bucket,omitempty"`
	TempBucket   string `json:"temp_bucket,omitempty"`

	GceClusterConfig      GceClusterConfig     `json:"gce_cluster_config"`
	MasterConfig          *InstanceGroupConfig `json:"master_config,omitempty"`
	WorkerConfig          *InstanceGroupConfig `json:"worker_config,omitempty"`
	SecondaryWorkerConfig *InstanceGroupConfig `json:"secondary_worker_config,omitempty"`

	SoftwareConfig        SoftwareConfig             `json:"software_config"`
	InitializationActions []NodeInitializationAction `json:"initialization_actions,omitempty"`
	AutoscalingConfig     *AutoscalingConfig         `json:"autoscaling_config,omitempty"`
	LifecycleConfig       *LifecycleConfig           `json:"lifecycle_config,omitempty"`
	EndpointConfig        EndpointConfig             `json:"endpoint_config"`
}

// GceClusterConfig holds network, identity and instance metadata settings
type GceClusterConfig struct {
	ZoneURI              string            `json:"zone_uri,omitempty"`
	NetworkURI           string            `json:"network_uri,omitempty"`
	SubnetworkURI        string            `json:"subnetwork_uri,omitempty"`
	InternalIPOnly       bool              `json:"internal_ip_only,omitempty"`
	ServiceAccount       string            `json:"service_account,omitempty"`
	ServiceAccountScopes []string          `json:"service_account_scopes,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// InstanceGroupConfig describes one node group (master, worker or secondary worker)
type InstanceGroupConfig struct {
	NumInstances   int64               `json:"num_instances,omitempty"`
	ImageURI       string              `json:"image_uri,omitempty"`
	MachineTypeURI string              `json:"machine_type_uri,omitempty"`
	MinCPUPlatform string              `json:"min_cpu_platform,omitempty"`
	Preemptibility string              `json:"preemptibility,omitempty"`
	DiskConfig     *DiskConfig         `json:"disk_config,omitempty"`
	Accelerators   []AcceleratorConfig `json:"accelerators,omitempty"`
}

// DiskConfig describes the disks attached to each node of a group
type DiskConfig struct {
	BootDiskType   string `json:"boot_disk_type,omitempty"`
	BootDiskSizeGB int64  `json:"boot_disk_size_gb,omitempty"`
	NumLocalSSDs   int64  `json:"num_local_ssds,omitempty"`
}

// AcceleratorConfig attaches accelerators to each node of a group
type AcceleratorConfig struct {
	AcceleratorTypeURI string `json:"accelerator_type_uri,omitempty"`
	AcceleratorCount   int64  `json:"accelerator_count,omitempty"`
}

// SoftwareConfig selects the image and the software installed on the cluster.
// Keys of Properties are opaque strings interpreted by the cluster.
type SoftwareConfig struct {
	ImageVersion       string            `json:"image_version,omitempty"`
	Properties         map[string]string `json:"properties,omitempty"`
	OptionalComponents []Component       `json:"optional_components,omitempty"`
}

// NodeInitializationAction is an executable run on every node after creation
type NodeInitializationAction struct {
	ExecutableFile   string    `json:"executable_file"`
	ExecutionTimeout *Duration `json:"execution_timeout,omitempty"`
}

// AutoscalingConfig references an autoscaling policy
type AutoscalingConfig struct {
	PolicyURI string `json:"policy_uri,omitempty"`
}

// LifecycleConfig holds scheduled deletion settings
type LifecycleConfig struct {
	IdleDeleteTTL  *Duration `json:"idle_delete_ttl,omitempty"`
	AutoDeleteTime string    `json:"auto_delete_time,omitempty"`
	AutoDeleteTTL  *Duration `json:"auto_delete_ttl,omitempty"`
}

// EndpointConfig controls the component gateway
type EndpointConfig struct {
	HTTPPorts            map[string]string `json:"http_ports,omitempty"`
	EnableHTTPPortAccess bool              `json:"enable_http_port_access"`
}
