package clusterconfig

import (
	"strconv"
	"strings"
	"time"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseDuration parses "600", "600s", "1.5s", "10m", "2h" or "1d"
func ParseDuration(value string) (*v1alpha1.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, spawnerrors.New(spawnerrors.KindValidation, "empty duration")
	}

	unit := time.Second
	if u, ok := durationUnits[s[len(s)-1]]; ok {
		unit = u
		s = s[:len(s)-1]
	}

	if unit == time.Second && strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return nil, spawnerrors.New(spawnerrors.KindValidation, "invalid duration %q", value)
		}
		return v1alpha1.DurationFromTime(time.Duration(f * float64(time.Second))), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return nil, spawnerrors.New(spawnerrors.KindValidation, "invalid duration %q", value)
	}
	return &v1alpha1.Duration{Seconds: n * int64(unit/time.Second)}, nil
}

// normalizeDuration replaces a string duration by its structured form.
// Structured values are returned unchanged.
func normalizeDuration(d *v1alpha1.Duration) (*v1alpha1.Duration, error) {
	if d == nil || d.IsNormalized() {
		return d, nil
	}
	return ParseDuration(d.Raw)
}

func normalizeDurations(cfg *v1alpha1.ClusterConfig) error {
	for i := range cfg.InitializationActions {
		action := &cfg.InitializationActions[i]
		d, err := normalizeDuration(action.ExecutionTimeout)
		if err != nil {
			return spawnerrors.Wrap(err, spawnerrors.KindValidation,
				"execution timeout of initialization action %s", action.ExecutableFile)
		}
		action.ExecutionTimeout = d
	}

	if lc := cfg.LifecycleConfig; lc != nil {
		d, err := normalizeDuration(lc.IdleDeleteTTL)
		if err != nil {
			return spawnerrors.Wrap(err, spawnerrors.KindValidation, "lifecycle idle delete ttl")
		}
		lc.IdleDeleteTTL = d

		d, err = normalizeDuration(lc.AutoDeleteTTL)
		if err != nil {
			return spawnerrors.Wrap(err, spawnerrors.KindValidation, "lifecycle auto delete ttl")
		}
		lc.AutoDeleteTTL = d
	}
	return nil
}
