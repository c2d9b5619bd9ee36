package spawner

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Hub environment keys rewritten for the remote notebook server
const (
	EnvNewHubAPIURL   = "NEW_JUPYTERHUB_API_URL"
	EnvHubAPIURL      = "JUPYTERHUB_API_URL"
	EnvHubActivityURL = "JUPYTERHUB_ACTIVITY_URL"
	EnvPath           = "PATH"
)

// RemotePath is the PATH of the notebook server on the cluster
const RemotePath = "/opt/conda/bin:/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// hubEnv returns the environment handed to the notebook server on the
// cluster. A hub reachable under another address publishes it as
// NEW_JUPYTERHUB_API_URL.
func hubEnv(env map[string]string, username string) (map[string]string, error) {
	out := make(map[string]string, len(env)+2)
	for k, v := range env {
		out[k] = v
	}
	if apiURL := out[EnvNewHubAPIURL]; apiURL != "" {
		activity, err := url.JoinPath(apiURL, "users", username, "activity")
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvNewHubAPIURL, err)
		}
		out[EnvHubAPIURL] = apiURL
		out[EnvHubActivityURL] = activity
	}
	out[EnvPath] = RemotePath
	return out, nil
}

// encodeHubEnv serializes env for the hub env cluster property
func encodeHubEnv(env map[string]string) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode hub environment: %w", err)
	}
	return string(data), nil
}

func encodeHubArgs(args []string) string {
	return strings.Join(args, " ")
}
