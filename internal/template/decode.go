package template

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

var (
	durationType  = reflect.TypeOf(v1alpha1.Duration{})
	componentType = reflect.TypeOf(v1alpha1.ComponentUnspecified)
)

// Decode converts the template tree into a typed cluster request.
// Durations written as strings are kept in Duration.Raw. Component names are
// resolved against the enumeration. Keys without a matching field, such as
// the status of an exported cluster, are ignored.
func (t *Template) Decode(ctx context.Context) (*v1alpha1.ClusterRequest, error) {
	logger := logf.FromContext(ctx).WithName("template-decoder")

	var (
		req          v1alpha1.ClusterRequest
		meta         mapstructure.Metadata
		componentErr error
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Metadata:         &meta,
		Result:           &req,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(durationHook),
			componentHook(&componentErr),
			mapstructure.DecodeHookFuncKind(scalarStringHook),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template decoder: %w", err)
	}

	if err := decoder.Decode(t.Tree()); err != nil {
		if componentErr != nil {
			return nil, fmt.Errorf("cluster template %s: %w", t.path, componentErr)
		}
		return nil, spawnerrors.Wrap(err, spawnerrors.KindParse, "cluster template %s does not match the cluster schema", t.path)
	}

	if len(meta.Unused) > 0 {
		logger.V(1).Info("Ignoring unknown template keys", "path", t.path, "keys", strings.Join(meta.Unused, ","))
	}
	return &req, nil
}

// durationHook keeps scalar durations ("10m", 600) for later normalization
func durationHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return v1alpha1.Duration{Raw: strings.TrimSpace(v)}, nil
	case int, int64, uint64, float64:
		return v1alpha1.Duration{Raw: fmt.Sprintf("%v", v)}, nil
	default:
		return data, nil
	}
}

// scalarStringHook writes unquoted YAML scalars into string fields as they
// read, so a property set to true stays "true" rather than the weak "1"
func scalarStringHook(_ reflect.Kind, to reflect.Kind, data interface{}) (interface{}, error) {
	if to != reflect.String {
		return data, nil
	}
	switch v := data.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	default:
		return data, nil
	}
}

// componentHook resolves component names. mapstructure flattens hook errors
// into strings, so the first typed error is kept in *captured.
func componentHook(captured *error) mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != componentType {
			return data, nil
		}
		var (
			c   v1alpha1.Component
			err error
		)
		switch v := data.(type) {
		case string:
			c, err = v1alpha1.ParseComponent(v)
		case int:
			c, err = v1alpha1.ComponentFromValue(int64(v))
		case int64:
			c, err = v1alpha1.ComponentFromValue(v)
		case float64:
			c, err = v1alpha1.ComponentFromValue(int64(v))
		default:
			return data, nil
		}
		if err != nil {
			var unknown *v1alpha1.UnknownComponentError
			if *captured == nil && errors.As(err, &unknown) {
				*captured = err
			}
			return nil, err
		}
		return c, nil
	}
}
