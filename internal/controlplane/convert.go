package controlplane

import (
	dataproc "google.golang.org/api/dataproc/v1"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
)

func toCluster(req *v1alpha1.ClusterRequest) *dataproc.Cluster {
	cfg := req.Config
	out := &dataproc.ClusterConfig{
		ConfigBucket:          cfg.ConfigBucket,
		TempBucket:            cfg.TempBucket,
		GceClusterConfig:      toGceClusterConfig(cfg.GceClusterConfig),
		MasterConfig:          toInstanceGroup(cfg.MasterConfig),
		WorkerConfig:          toInstanceGroup(cfg.WorkerConfig),
		SecondaryWorkerConfig: toInstanceGroup(cfg.SecondaryWorkerConfig),
		SoftwareConfig:        toSoftwareConfig(cfg.SoftwareConfig),
		EndpointConfig: &dataproc.EndpointConfig{
			EnableHttpPortAccess: cfg.EndpointConfig.EnableHTTPPortAccess,
		},
	}
	for _, action := range cfg.InitializationActions {
		out.InitializationActions = append(out.InitializationActions, &dataproc.NodeInitializationAction{
			ExecutableFile:   action.ExecutableFile,
			ExecutionTimeout: durationString(action.ExecutionTimeout),
		})
	}
	if cfg.AutoscalingConfig != nil {
		out.AutoscalingConfig = &dataproc.AutoscalingConfig{PolicyUri: cfg.AutoscalingConfig.PolicyURI}
	}
	if lc := cfg.LifecycleConfig; lc != nil {
		out.LifecycleConfig = &dataproc.LifecycleConfig{
			IdleDeleteTtl:  durationString(lc.IdleDeleteTTL),
			AutoDeleteTime: lc.AutoDeleteTime,
			AutoDeleteTtl:  durationString(lc.AutoDeleteTTL),
		}
	}

	return &dataproc.Cluster{
		ProjectId:   req.ProjectID,
		ClusterName: req.ClusterName,
		Labels:      req.Labels,
		Config:      out,
	}
}

func toGceClusterConfig(gce v1alpha1.GceClusterConfig) *dataproc.GceClusterConfig {
	return &dataproc.GceClusterConfig{
		ZoneUri:              gce.ZoneURI,
		NetworkUri:           gce.NetworkURI,
		SubnetworkUri:        gce.SubnetworkURI,
		InternalIpOnly:       gce.InternalIPOnly,
		ServiceAccount:       gce.ServiceAccount,
		ServiceAccountScopes: gce.ServiceAccountScopes,
		Tags:                 gce.Tags,
		Metadata:             gce.Metadata,
	}
}

func toInstanceGroup(group *v1alpha1.InstanceGroupConfig) *dataproc.InstanceGroupConfig {
	if group == nil {
		return nil
	}
	out := &dataproc.InstanceGroupConfig{
		NumInstances:   group.NumInstances,
		ImageUri:       group.ImageURI,
		MachineTypeUri: group.MachineTypeURI,
		MinCpuPlatform: group.MinCPUPlatform,
		Preemptibility: group.Preemptibility,
	}
	if d := group.DiskConfig; d != nil {
		out.DiskConfig = &dataproc.DiskConfig{
			BootDiskType:   d.BootDiskType,
			BootDiskSizeGb: d.BootDiskSizeGB,
			NumLocalSsds:   d.NumLocalSSDs,
		}
	}
	for _, acc := range group.Accelerators {
		out.Accelerators = append(out.Accelerators, &dataproc.AcceleratorConfig{
			AcceleratorTypeUri: acc.AcceleratorTypeURI,
			AcceleratorCount:   acc.AcceleratorCount,
		})
	}
	return out
}

func toSoftwareConfig(sw v1alpha1.SoftwareConfig) *dataproc.SoftwareConfig {
	out := &dataproc.SoftwareConfig{
		ImageVersion: sw.ImageVersion,
		Properties:   sw.Properties,
	}
	for _, c := range sw.OptionalComponents {
		out.OptionalComponents = append(out.OptionalComponents, c.String())
	}
	return out
}

func durationString(d *v1alpha1.Duration) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func toRecord(cluster *dataproc.Cluster) *v1alpha1.ClusterRecord {
	record := &v1alpha1.ClusterRecord{
		Name:   cluster.ClusterName,
		UUID:   cluster.ClusterUuid,
		State:  v1alpha1.ClusterStateUnknown,
		Labels: cluster.Labels,
	}
	if cluster.Status != nil {
		record.State = v1alpha1.ClusterState(cluster.Status.State)
		record.StateDetail = cluster.Status.Detail
	}
	if cfg := cluster.Config; cfg != nil {
		if cfg.GceClusterConfig != nil {
			record.ZoneURI = cfg.GceClusterConfig.ZoneUri
		}
		if cfg.EndpointConfig != nil {
			record.Endpoints = cfg.EndpointConfig.HttpPorts
		}
	}
	return record
}
