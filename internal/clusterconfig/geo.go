package clusterconfig

import (
	"strings"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

const globalLocation = "global"

// lastSegment returns the trailing path segment of a resource URI
func lastSegment(uri string) string {
	uri = strings.TrimRight(uri, "/")
	return uri[strings.LastIndex(uri, "/")+1:]
}

// ResolveZone picks the zone of a request: form, then template, then the
// operator default. A bare zone letter is qualified with the region.
func ResolveZone(formZone, templateZoneURI, defaultZone, region string) string {
	for _, candidate := range []string{formZone, lastSegment(templateZoneURI), defaultZone} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if len(candidate) == 1 && region != "" {
			return region + "-" + candidate
		}
		return candidate
	}
	return ""
}

// ZoneFromURI returns the zone name of a zone URI
func ZoneFromURI(uri string) string {
	return lastSegment(uri)
}

// validateSubnetworkRegion checks that a subnetwork URI such as
// "projects/p/regions/us-central1/subnetworks/default" lies in region.
// Bare subnetwork names are accepted.
func validateSubnetworkRegion(uri, region string) error {
	parts := strings.Split(strings.TrimRight(uri, "/"), "/")
	if len(parts) < 3 {
		return nil
	}
	location := parts[len(parts)-3]
	if location == region || location == globalLocation {
		return nil
	}
	return spawnerrors.New(spawnerrors.KindValidation,
		"the location %s of subnetwork %s does not match the hub region %s, contact your administrator",
		location, uri, region)
}

// stripZoneQualification reduces machine type and accelerator URIs to bare
// names so they resolve in whichever zone the cluster lands in
func stripZoneQualification(group *v1alpha1.InstanceGroupConfig) {
	if group == nil {
		return
	}
	if group.MachineTypeURI != "" {
		group.MachineTypeURI = lastSegment(group.MachineTypeURI)
	}
	for i := range group.Accelerators {
		if uri := group.Accelerators[i].AcceleratorTypeURI; uri != "" {
			group.Accelerators[i].AcceleratorTypeURI = lastSegment(uri)
		}
	}
}
