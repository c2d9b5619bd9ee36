// Package spawner wires the template loader, configuration merger, lifecycle
// controller and progress reporter behind the hooks a hub calls for each
// user server.
package spawner

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jupyter-infra/dataproc-hub/internal/clusterconfig"
	"github.com/jupyter-infra/dataproc-hub/internal/lifecycle"
	"github.com/jupyter-infra/dataproc-hub/internal/stringutil"
)

// Environment variable names
const (
	// Server configuration
	EnvPort            = "PORT"
	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	// Placement configuration
	EnvProject         = "SPAWNER_PROJECT"
	EnvRegion          = "SPAWNER_REGION"
	EnvZone            = "SPAWNER_ZONE"
	EnvZoneLetters     = "SPAWNER_ZONE_LETTERS"
	EnvCredentialsFile = "SPAWNER_CREDENTIALS_FILE"

	// Cluster configuration
	EnvClusterNamePattern      = "SPAWNER_CLUSTER_NAME_PATTERN"
	EnvClusterNameRandomSuffix = "SPAWNER_CLUSTER_NAME_RANDOM_SUFFIX"
	EnvTemplateLocations       = "SPAWNER_TEMPLATE_LOCATIONS"
	EnvDefaultSubnet           = "SPAWNER_DEFAULT_SUBNET"
	EnvServiceAccount          = "SPAWNER_SERVICE_ACCOUNT"
	EnvAllowCustomClusters     = "SPAWNER_ALLOW_CUSTOM_CLUSTERS"
	EnvForceSingleUser         = "SPAWNER_FORCE_SINGLE_USER"
	EnvForceJupyterComponents  = "SPAWNER_FORCE_JUPYTER_COMPONENTS"
	EnvShowInListing           = "SPAWNER_SHOW_IN_LISTING"
	EnvHostType                = "SPAWNER_HOST_TYPE"
	EnvMachineTypes            = "SPAWNER_MACHINE_TYPES"
	EnvMinDiskSizeGB           = "SPAWNER_MIN_DISK_SIZE_GB"
	EnvFallbackImageVersion    = "SPAWNER_FALLBACK_IMAGE_VERSION"

	// Idle shutdown configuration
	EnvIdleJobPath    = "SPAWNER_IDLE_JOB_PATH"
	EnvIdleScriptPath = "SPAWNER_IDLE_SCRIPT_PATH"
	EnvIdleTimeout    = "SPAWNER_IDLE_TIMEOUT"

	// Notebooks configuration
	EnvNotebooksBucket        = "SPAWNER_NOTEBOOKS_BUCKET"
	EnvDefaultNotebooksPath   = "SPAWNER_DEFAULT_NOTEBOOKS_PATH"
	EnvDefaultNotebooksFolder = "SPAWNER_DEFAULT_NOTEBOOKS_FOLDER"

	// Progress configuration
	EnvProgressInterval = "SPAWNER_PROGRESS_INTERVAL"
	EnvMilestoneMethods = "SPAWNER_MILESTONE_METHODS"

	// Parameter store overlay
	EnvSSMParameterPath = "SPAWNER_SSM_PARAMETER_PATH"
)

// Default values
const (
	// Server defaults
	DefaultPort            = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 0 // progress streams stay open
	DefaultShutdownTimeout = 30 * time.Second

	// Placement defaults
	DefaultRegion = "us-central1"
	DefaultZone   = "us-central1-a"

	// Cluster defaults
	DefaultClusterNamePattern     = lifecycle.DefaultNamePattern
	DefaultAllowCustomClusters    = false
	DefaultForceSingleUser        = false
	DefaultForceJupyterComponents = true
	DefaultShowInListing          = false

	// Idle defaults
	DefaultIdleTimeout = clusterconfig.DefaultIdleTimeout

	// Notebooks defaults
	DefaultNotebooksFolder = "examples/"

	// Progress defaults
	DefaultProgressInterval = time.Second
)

// Config holds all configuration for the spawner service
type Config struct {
	// Server configuration
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Placement configuration
	ProjectID       string
	Region          string
	Zone            string
	ZoneLetters     []string // Zones of Region offered to users and used for retries
	CredentialsFile string

	// Cluster configuration
	ClusterNamePattern      string
	ClusterNameRandomSuffix bool
	TemplateLocations       []string // Template files or folders offered to users
	DefaultSubnet           string
	ServiceAccount          string
	AllowCustomClusters     bool
	ForceSingleUser         bool
	ForceJupyterComponents  bool
	ShowInListing           bool // Spawned clusters are listed alongside user notebooks
	HostType                string
	MachineTypes            []string
	MinDiskSizeGB           int64
	FallbackImageVersion    string

	// Idle shutdown configuration
	IdleJobPath    string
	IdleScriptPath string
	IdleTimeout    string

	// Notebooks configuration
	NotebooksBucket        string
	DefaultNotebooksPath   string
	DefaultNotebooksFolder string

	// Progress configuration
	ProgressInterval time.Duration
	MilestoneMethods []string

	SSMParameterPath string
}

// NewConfig creates a Config with values from environment variables
// or defaults if not set
func NewConfig() (*Config, error) {
	return newConfig(os.Getenv)
}

// NewConfigWithOverlay is NewConfig where unset environment variables are
// looked up in overlay
func NewConfigWithOverlay(overlay map[string]string) (*Config, error) {
	return newConfig(func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return overlay[key]
	})
}

func newConfig(getenv func(string) string) (*Config, error) {
	config := createDefaultConfig()

	if err := applyServerConfig(config, getenv); err != nil {
		return nil, err
	}

	applyPlacementConfig(config, getenv)

	if err := applyClusterConfig(config, getenv); err != nil {
		return nil, err
	}

	applyIdleConfig(config, getenv)
	applyNotebooksConfig(config, getenv)

	if err := applyProgressConfig(config, getenv); err != nil {
		return nil, err
	}

	config.SSMParameterPath = getenv(EnvSSMParameterPath)

	return config, nil
}

// createDefaultConfig creates a new Config with default values
func createDefaultConfig() *Config {
	return &Config{
		// Server defaults
		Port:            DefaultPort,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,

		// Placement defaults
		Region: DefaultRegion,
		Zone:   DefaultZone,

		// Cluster defaults
		ClusterNamePattern:     DefaultClusterNamePattern,
		AllowCustomClusters:    DefaultAllowCustomClusters,
		ForceSingleUser:        DefaultForceSingleUser,
		ForceJupyterComponents: DefaultForceJupyterComponents,
		ShowInListing:          DefaultShowInListing,

		// Idle defaults
		IdleTimeout: DefaultIdleTimeout,

		// Notebooks defaults
		DefaultNotebooksFolder: DefaultNotebooksFolder,

		// Progress defaults
		ProgressInterval: DefaultProgressInterval,
	}
}

// applyServerConfig applies server-related environment variable overrides
func applyServerConfig(config *Config, getenv func(string) string) error {
	if port := getenv(EnvPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		config.Port = p
	}

	for env, target := range map[string]*time.Duration{
		EnvReadTimeout:     &config.ReadTimeout,
		EnvWriteTimeout:    &config.WriteTimeout,
		EnvShutdownTimeout: &config.ShutdownTimeout,
	} {
		if value := getenv(env); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
			*target = d
		}
	}

	return nil
}

// applyPlacementConfig applies project, region and zone overrides
func applyPlacementConfig(config *Config, getenv func(string) string) {
	if project := getenv(EnvProject); project != "" {
		config.ProjectID = project
	}
	if region := getenv(EnvRegion); region != "" {
		config.Region = region
	}
	if zone := getenv(EnvZone); zone != "" {
		config.Zone = zone
	}
	if letters := getenv(EnvZoneLetters); letters != "" {
		config.ZoneLetters = stringutil.SplitList(letters)
	}
	config.CredentialsFile = getenv(EnvCredentialsFile)
}

// applyClusterConfig applies cluster-related environment variable overrides
func applyClusterConfig(config *Config, getenv func(string) string) error {
	if pattern := getenv(EnvClusterNamePattern); pattern != "" {
		config.ClusterNamePattern = pattern
	}
	if locations := getenv(EnvTemplateLocations); locations != "" {
		config.TemplateLocations = stringutil.SplitList(locations)
	}
	if machineTypes := getenv(EnvMachineTypes); machineTypes != "" {
		config.MachineTypes = stringutil.SplitList(machineTypes)
	}
	config.DefaultSubnet = getenv(EnvDefaultSubnet)
	config.ServiceAccount = getenv(EnvServiceAccount)
	config.HostType = getenv(EnvHostType)
	config.FallbackImageVersion = getenv(EnvFallbackImageVersion)

	for env, target := range map[string]*bool{
		EnvClusterNameRandomSuffix: &config.ClusterNameRandomSuffix,
		EnvAllowCustomClusters:     &config.AllowCustomClusters,
		EnvForceSingleUser:         &config.ForceSingleUser,
		EnvForceJupyterComponents:  &config.ForceJupyterComponents,
		EnvShowInListing:           &config.ShowInListing,
	} {
		if value := getenv(env); value != "" {
			enable, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
			*target = enable
		}
	}

	if minDisk := getenv(EnvMinDiskSizeGB); minDisk != "" {
		size, err := strconv.ParseInt(minDisk, 10, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("invalid %s: %q", EnvMinDiskSizeGB, minDisk)
		}
		config.MinDiskSizeGB = size
	}

	return nil
}

// applyIdleConfig applies idle shutdown overrides
func applyIdleConfig(config *Config, getenv func(string) string) {
	config.IdleJobPath = getenv(EnvIdleJobPath)
	config.IdleScriptPath = getenv(EnvIdleScriptPath)
	if timeout := getenv(EnvIdleTimeout); timeout != "" {
		config.IdleTimeout = timeout
	}
}

// applyNotebooksConfig applies notebook storage overrides
func applyNotebooksConfig(config *Config, getenv func(string) string) {
	config.NotebooksBucket = getenv(EnvNotebooksBucket)
	config.DefaultNotebooksPath = getenv(EnvDefaultNotebooksPath)
	if folder := getenv(EnvDefaultNotebooksFolder); folder != "" {
		config.DefaultNotebooksFolder = folder
	}
}

// applyProgressConfig applies progress reporting overrides
func applyProgressConfig(config *Config, getenv func(string) string) error {
	if interval := getenv(EnvProgressInterval); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvProgressInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", EnvProgressInterval, d)
		}
		config.ProgressInterval = d
	}
	if methods := getenv(EnvMilestoneMethods); methods != "" {
		config.MilestoneMethods = stringutil.SplitList(methods)
	}
	return nil
}

// Validate checks the settings every spawn needs
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("%s environment variable must be set", EnvProject)
	}
	if c.Region == "" {
		return fmt.Errorf("%s environment variable must be set", EnvRegion)
	}
	return nil
}
