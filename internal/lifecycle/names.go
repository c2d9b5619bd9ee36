package lifecycle

import (
	"fmt"
	"strings"

	utilrand "k8s.io/apimachinery/pkg/util/rand"

	"github.com/jupyter-infra/dataproc-hub/internal/stringutil"
)

// DefaultNamePattern is the cluster name format; {} is replaced by the user name
const DefaultNamePattern = "dataprochub-{}"

const randomSuffixLength = 5

// Namer derives cluster names from user names
type Namer struct {
	Pattern string
	// RandomSuffix appends a disambiguator to every name
	RandomSuffix bool
}

// Name returns the cluster name of a user's server. serverName is empty for
// the default server.
func (n Namer) Name(username, serverName string) string {
	pattern := n.Pattern
	if pattern == "" {
		pattern = DefaultNamePattern
	}
	user := strings.ToLower(stringutil.NormalizeUsername(username))

	var name string
	if strings.Contains(pattern, "{}") {
		name = strings.ReplaceAll(pattern, "{}", user)
	} else {
		name = fmt.Sprintf("%s-%s", pattern, user)
	}
	if serverName != "" {
		name += "-" + strings.ToLower(stringutil.NormalizeUsername(serverName))
	}
	if n.RandomSuffix {
		name += "-" + utilrand.String(randomSuffixLength)
	}
	return name
}

// MasterFQDN returns the internal DNS name of a cluster's master node.
// Domain-scoped projects ("example.com:project") put the domain after the project.
func MasterFQDN(clusterName, zone, project string) string {
	if domain, name, ok := strings.Cut(project, ":"); ok {
		return fmt.Sprintf("%s-m.%s.c.%s.%s.internal", clusterName, zone, name, domain)
	}
	return fmt.Sprintf("%s-m.%s.c.%s.internal", clusterName, zone, project)
}
