package lifecycle

import (
	"time"

	utilrand "k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/clusterconfig"
)

// DefaultCreateBackoff allows three creation attempts three seconds apart
var DefaultCreateBackoff = wait.Backoff{
	Steps:    3,
	Duration: 3 * time.Second,
	Factor:   1.0,
}

// candidateZones expands zone letters ("a", "b") into zone names of region
func candidateZones(region string, letters []string) []string {
	zones := make([]string, 0, len(letters))
	for _, letter := range letters {
		if letter == "" {
			continue
		}
		if len(letter) == 1 {
			zones = append(zones, region+"-"+letter)
		} else {
			zones = append(zones, letter)
		}
	}
	return zones
}

// nextZone picks the zone for the next attempt: the last candidate other
// than current, or a random candidate when every candidate is current.
// With no candidates the current zone is kept.
func nextZone(current string, candidates []string) string {
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i] != current {
			return candidates[i]
		}
	}
	if len(candidates) == 0 {
		return current
	}
	return candidates[utilrand.Intn(len(candidates))]
}

// retryZone picks the zone of the attempt following tried. Attempts span at
// most two zones: once two were tried, one of them is reused at random.
func retryZone(tried []string, candidates []string) string {
	if len(tried) == 0 {
		return ""
	}
	distinct := sets.List(sets.New(tried...))
	if len(distinct) >= 2 {
		return distinct[utilrand.Intn(len(distinct))]
	}
	return nextZone(tried[len(tried)-1], candidates)
}

// withZone returns a copy of req placed in zone
func withZone(req *v1alpha1.ClusterRequest, zone string) *v1alpha1.ClusterRequest {
	next := *req
	next.Config.GceClusterConfig.ZoneURI = clusterconfig.ZoneURI(req.ProjectID, zone)
	return &next
}
