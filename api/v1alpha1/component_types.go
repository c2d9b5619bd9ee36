package v1alpha1

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Component is an optional software package installed at cluster creation.
// Values match the control plane's enumeration.
type Component int32

const (
	ComponentUnspecified Component = 0
	ComponentJupyter     Component = 1
	ComponentHiveWebhcat Component = 3
	ComponentZeppelin    Component = 4
	ComponentAnaconda    Component = 5
	ComponentPresto      Component = 6
	ComponentKerberos    Component = 7
	ComponentZookeeper   Component = 8
	ComponentDruid       Component = 9
	ComponentSolr        Component = 10
	ComponentHBase       Component = 11
	ComponentRanger      Component = 12
	ComponentDocker      Component = 13
	ComponentFlink       Component = 14
)

var componentNames = map[Component]string{
	ComponentUnspecified: "COMPONENT_UNSPECIFIED",
	ComponentJupyter:     "JUPYTER",
	ComponentHiveWebhcat: "HIVE_WEBHCAT",
	ComponentZeppelin:    "ZEPPELIN",
	ComponentAnaconda:    "ANACONDA",
	ComponentPresto:      "PRESTO",
	ComponentKerberos:    "KERBEROS",
	ComponentZookeeper:   "ZOOKEEPER",
	ComponentDruid:       "DRUID",
	ComponentSolr:        "SOLR",
	ComponentHBase:       "HBASE",
	ComponentRanger:      "RANGER",
	ComponentDocker:      "DOCKER",
	ComponentFlink:       "FLINK",
}

// UnknownComponentError is returned when a component name or value is not
// part of the enumeration
type UnknownComponentError struct {
	Name string
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("unknown optional component %q", e.Name)
}

// ParseComponent converts a component name (case-insensitive) to its enum value
func ParseComponent(name string) (Component, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for c, n := range componentNames {
		if n == upper {
			return c, nil
		}
	}
	return ComponentUnspecified, &UnknownComponentError{Name: name}
}

// ComponentFromValue converts a numeric enum value, rejecting unknown values
func ComponentFromValue(v int64) (Component, error) {
	c := Component(v)
	if _, ok := componentNames[c]; !ok {
		return ComponentUnspecified, &UnknownComponentError{Name: fmt.Sprintf("%d", v)}
	}
	return c, nil
}

func (c Component) String() string {
	if n, ok := componentNames[c]; ok {
		return n
	}
	return fmt.Sprintf("COMPONENT(%d)", int32(c))
}

// MarshalJSON writes the component name
func (c Component) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either the component name or its numeric value
func (c *Component) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseComponent(name)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var value int64
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("component must be a name or a number: %w", err)
	}
	parsed, err := ComponentFromValue(value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
