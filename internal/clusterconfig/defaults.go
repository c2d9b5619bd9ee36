/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package clusterconfig builds the cluster request for one spawn from an
// admin template, the user's form selection and the operator settings.
package clusterconfig

import (
	"context"
	"fmt"
)

// Software properties and metadata keys stamped on every cluster
const (
	PropertyHubArgs        = "dataproc:jupyter.hub.args"
	PropertyHubEnv         = "dataproc:jupyter.hub.env"
	PropertyHubEnabled     = "dataproc:jupyter.hub.enabled"
	PropertyHubMenuEnabled = "dataproc:jupyter.hub.menu.enabled"
	PropertyNotebooksDir   = "dataproc:jupyter.notebook.gcs.dir"
	PropertyExclusiveUser  = "dataproc:dataproc.exclusive.user"

	MetadataSessionUser     = "session-user"
	MetadataScriptLocation  = "script_storage_location"
	MetadataMaxIdle         = "max-idle"
	MetadataPipPackages     = "PIP_PACKAGES"
	MetadataCondaPackages   = "CONDA_PACKAGES"
	LabelSpawnerHost        = "goog-dataproc-notebook-spawner"
	CloudPlatformScope      = "https://www.googleapis.com/auth/cloud-platform"
	DefaultImageVersion     = "1.4-debian9"
	DefaultIdleTimeout      = "60m"
	PipInstallAction        = "gs://dataproc-initialization-actions/python/pip-install.sh"
	CondaInstallAction      = "gs://dataproc-initialization-actions/python/conda-install.sh"
	idleCheckerScriptSuffix = "isIdle.sh"
)

// Properties of a cluster exported from a running instance that must not be
// carried to a new cluster
var instanceSpecificProperties = []string{
	"hdfs:dfs.namenode.lifeline.rpc-address",
	"hdfs:dfs.namenode.servicerpc-address",
}

// idleCheckerTimeoutSeconds bounds the idle checker initialization action
const idleCheckerTimeoutSeconds = 1800

// IdleChecker configures the idle shutdown job installed on every cluster
type IdleChecker struct {
	// JobPath is the initialization action that installs the checker
	JobPath string
	// ScriptPath locates the checker script; a trailing isIdle.sh is dropped
	ScriptPath string
	// Timeout is the idle time before shutdown, e.g. "60m"
	Timeout string
}

// Enabled returns true when both scripts are configured
func (i IdleChecker) Enabled() bool {
	return i.JobPath != "" && i.ScriptPath != ""
}

// ImageResolver finds the image version a custom image was built from
type ImageResolver interface {
	ImageVersion(ctx context.Context, imageURI string) (string, error)
}

// Defaults are the operator settings and per-spawn identity applied on top of
// a template and form
type Defaults struct {
	ProjectID   string
	Region      string
	Zone        string
	ClusterName string

	// Username is the normalized user name, UserIdentity the caller's
	// identity as known to the hub
	Username     string
	UserIdentity string

	DefaultSubnet  string
	ServiceAccount string
	IdleChecker    IdleChecker

	AllowCustomClusters    bool
	ForceSingleUser        bool
	ForceJupyterComponents bool

	HubArgs         string
	HubEnv          string
	NotebooksFolder string
	HostType        string

	// FallbackImageVersion is used when neither template nor form picks an image
	FallbackImageVersion string
	// MinDiskSizeGB clamps user-submitted disk sizes; 0 disables clamping
	MinDiskSizeGB int64

	Images ImageResolver
}

// ZoneURI formats a zone as a compute API resource URI
func ZoneURI(project, zone string) string {
	return fmt.Sprintf("https://www.googleapis.com/compute/v1/projects/%s/zones/%s", project, zone)
}

// AutoscalingPolicyURI formats an autoscaling policy reference
func AutoscalingPolicyURI(project, region, policy string) string {
	return fmt.Sprintf("https://www.googleapis.com/compute/v1/projects/%s/locations/%s/autoscalingPolicies/%s",
		project, region, policy)
}
