/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package template loads admin cluster templates from object storage and
// decodes them into cluster requests.
package template

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v2"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/blobstore"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

// opaqueSubtree is a subtree whose keys are interpreted by the cluster and
// must not be rewritten
type opaqueSubtree struct {
	section string
	key     string
}

var opaqueSubtrees = []opaqueSubtree{
	{section: "software_config", key: "properties"},
	{section: "gce_cluster_config", key: "metadata"},
}

// Template is a parsed cluster template with snake_case structural keys.
// It is not modified after parsing.
type Template struct {
	path string
	tree map[string]interface{}
}

// Loader reads templates from a blob store
type Loader struct {
	store blobstore.Store
}

// NewLoader creates a loader backed by store
func NewLoader(store blobstore.Store) *Loader {
	return &Loader{store: store}
}

// Load downloads and parses the template at path ("gs://bucket/a.yaml" or "bucket/a.yaml")
func (l *Loader) Load(ctx context.Context, path string) (*Template, error) {
	logger := logf.FromContext(ctx).WithName("template-loader")

	data, err := blobstore.ReadPath(ctx, l.store, path)
	if err != nil {
		if spawnerrors.IsNotFound(err) {
			return nil, spawnerrors.Wrap(err, spawnerrors.KindNotFound, "cluster template %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to read cluster template %s: %w", path, err)
	}

	tmpl, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	logger.V(1).Info("Loaded cluster template", "path", path, "sections", len(tmpl.tree))
	return tmpl, nil
}

// Parse parses raw template YAML
func Parse(path string, data []byte) (*Template, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, spawnerrors.Wrap(err, spawnerrors.KindParse, "cluster template %s is not valid YAML", path)
	}
	if raw == nil {
		return &Template{path: path, tree: map[string]interface{}{}}, nil
	}
	root, ok := stringKeys(raw).(map[string]interface{})
	if !ok {
		return nil, spawnerrors.New(spawnerrors.KindParse, "cluster template %s must be a mapping", path)
	}
	return &Template{path: path, tree: normalizeKeys(root)}, nil
}

// Empty returns a template without content
func Empty() *Template {
	return &Template{tree: map[string]interface{}{}}
}

// Path returns where the template was loaded from
func (t *Template) Path() string {
	return t.path
}

// Tree returns a deep copy of the normalized tree
func (t *Template) Tree() map[string]interface{} {
	return deepCopy(t.tree).(map[string]interface{})
}

// normalizeKeys rewrites structural keys to snake_case. The opaque subtrees
// under config are set aside first and spliced back verbatim.
func normalizeKeys(root map[string]interface{}) map[string]interface{} {
	saved := map[opaqueSubtree]interface{}{}
	if config, ok := root["config"].(map[string]interface{}); ok {
		for _, sub := range opaqueSubtrees {
			for key, value := range config {
				if toSnakeCase(key) != sub.section {
					continue
				}
				section, ok := value.(map[string]interface{})
				if !ok {
					continue
				}
				if opaque, ok := section[sub.key]; ok {
					saved[sub] = opaque
					delete(section, sub.key)
				}
			}
		}
	}

	out := snakeCaseKeys(root).(map[string]interface{})

	if len(saved) > 0 {
		config := out["config"].(map[string]interface{})
		for sub, opaque := range saved {
			section, ok := config[sub.section].(map[string]interface{})
			if !ok {
				section = map[string]interface{}{}
				config[sub.section] = section
			}
			section[sub.key] = opaque
		}
	}
	return out
}

func snakeCaseKeys(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, value := range typed {
			out[toSnakeCase(key)] = snakeCaseKeys(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, value := range typed {
			out[i] = snakeCaseKeys(value)
		}
		return out
	default:
		return v
	}
}

// toSnakeCase converts "bootDiskSizeGb" to "boot_disk_size_gb". Keys
// without upper case letters are returned unchanged.
func toSnakeCase(key string) string {
	var b strings.Builder
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stringKeys converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]interface{}
func stringKeys(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, value := range typed {
			out[fmt.Sprintf("%v", key)] = stringKeys(value)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, value := range typed {
			out[key] = stringKeys(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, value := range typed {
			out[i] = stringKeys(value)
		}
		return out
	default:
		return v
	}
}

func deepCopy(v interface{}) interface{} {
	return stringKeys(v)
}

// Label returns the display name of a template path
func Label(path string) string {
	_, object := blobstore.SplitPath(path)
	name := object[strings.LastIndex(object, "/")+1:]
	for _, ext := range []string{".yaml", ".yml"} {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return path
	}
	return name
}

func isTemplateFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

// List resolves the configured template locations into options. A location
// is either a template file or a folder whose templates are listed.
func (l *Loader) List(ctx context.Context, locations []string) ([]v1alpha1.Option, error) {
	var options []v1alpha1.Option
	for _, location := range locations {
		location = strings.TrimSpace(location)
		if location == "" {
			continue
		}
		if isTemplateFile(location) {
			path := blobstore.Scheme + strings.TrimPrefix(location, blobstore.Scheme)
			options = append(options, v1alpha1.Option{Label: Label(path), Value: path})
			continue
		}

		bucket, folder := blobstore.SplitFolder(location)
		objects, err := l.store.List(ctx, bucket, folder)
		if err != nil {
			return nil, fmt.Errorf("failed to list cluster templates in %s: %w", location, err)
		}
		for _, object := range objects {
			if !isTemplateFile(object) {
				continue
			}
			path := blobstore.JoinPath(bucket, object)
			options = append(options, v1alpha1.Option{Label: Label(path), Value: path})
		}
	}
	return options, nil
}
