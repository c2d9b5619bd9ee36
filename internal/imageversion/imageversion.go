/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package imageversion parses cluster image versions such as "1.5-debian10",
// "1.4.30-debian9" or "2.0.0-RC5-debian10" and answers feature-support questions.
package imageversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// LabelKey is the image label carrying the version a custom image was built from
const LabelKey = "goog-dataproc-version"

var (
	versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(?:-(.+))?$`)
	rcRegex      = regexp.MustCompile(`^RC(\d+)`)
)

// anacondaCutover is the first image that ships without the ANACONDA component
var anacondaCutover = MustParse("2.0.0-RC12")

// minGatewaySubminor maps a minor version to its first sub-minor that
// supports the component gateway with the hub
var minGatewaySubminor = map[string]uint64{
	"1.3": 59,
	"1.4": 30,
	"1.5": 5,
	"2.0": 0,
}

// ImageVersion is a parsed, comparable image version.
// The suffix after the first '-' is either an OS flavor ("debian10") or a
// release candidate marker ("RC5", "RC5-debian10").
type ImageVersion struct {
	core     *semver.Version
	hasPatch bool
	rc       int
	isRC     bool
	suffix   string
	raw      string
}

// Parse parses an image version string
func Parse(s string) (*ImageVersion, error) {
	raw := strings.TrimSpace(s)
	m := versionRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("invalid image version %q", s)
	}

	core := m[1] + "." + m[2]
	if m[3] != "" {
		core += "." + m[3]
	} else {
		core += ".0"
	}
	sv, err := semver.StrictNewVersion(core)
	if err != nil {
		return nil, fmt.Errorf("invalid image version %q: %w", s, err)
	}

	v := &ImageVersion{
		core:     sv,
		hasPatch: m[3] != "",
		suffix:   m[4],
		raw:      raw,
	}
	if rc := rcRegex.FindStringSubmatch(strings.ToUpper(m[4])); rc != nil {
		n, err := strconv.Atoi(rc[1])
		if err != nil {
			return nil, fmt.Errorf("invalid release candidate in image version %q: %w", s, err)
		}
		v.isRC = true
		v.rc = n
	}
	return v, nil
}

// MustParse is Parse for constants
func MustParse(s string) *ImageVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *ImageVersion) String() string {
	return v.raw
}

// Major returns the major version
func (v *ImageVersion) Major() uint64 { return v.core.Major() }

// Minor returns the minor version
func (v *ImageVersion) Minor() uint64 { return v.core.Minor() }

// Patch returns the sub-minor version and whether it was present
func (v *ImageVersion) Patch() (uint64, bool) { return v.core.Patch(), v.hasPatch }

// ReleaseCandidate returns the release candidate number, if any
func (v *ImageVersion) ReleaseCandidate() (int, bool) { return v.rc, v.isRC }

// Compare returns -1, 0 or 1. Release candidates sort before the release
// they precede and compare numerically among themselves. OS suffixes are ignored.
func (v *ImageVersion) Compare(o *ImageVersion) int {
	if c := v.core.Compare(o.core); c != 0 {
		return c
	}
	switch {
	case v.isRC && o.isRC:
		switch {
		case v.rc < o.rc:
			return -1
		case v.rc > o.rc:
			return 1
		}
		return 0
	case v.isRC:
		return -1
	case o.isRC:
		return 1
	}
	return 0
}

// LessThan is Compare(o) < 0
func (v *ImageVersion) LessThan(o *ImageVersion) bool {
	return v.Compare(o) < 0
}

// SupportsAnaconda returns true when the image still ships the ANACONDA component
func (v *ImageVersion) SupportsAnaconda() bool {
	return v.LessThan(anacondaCutover)
}

// SupportsComponentGateway returns true when the component gateway works with
// the hub on this image. Head images and unknown minors are accepted.
func (v *ImageVersion) SupportsComponentGateway() bool {
	if !v.hasPatch {
		return true
	}
	minor := fmt.Sprintf("%d.%d", v.Major(), v.Minor())
	floor, ok := minGatewaySubminor[minor]
	if !ok {
		return true
	}
	return v.core.Patch() >= floor
}

// FromLabel converts the version label of a custom image ("1-5-35-debian10")
// into an image version string ("1.5.35-debian10")
func FromLabel(label string) (string, error) {
	parts := strings.Split(strings.TrimSpace(label), "-")
	numeric := 0
	for numeric < len(parts) && numeric < 3 {
		if _, err := strconv.ParseUint(parts[numeric], 10, 64); err != nil {
			break
		}
		numeric++
	}
	if numeric < 2 {
		return "", fmt.Errorf("image version label %q does not start with major-minor", label)
	}
	version := strings.Join(parts[:numeric], ".")
	if numeric < len(parts) {
		version += "-" + strings.Join(parts[numeric:], "-")
	}
	if _, err := Parse(version); err != nil {
		return "", err
	}
	return version, nil
}
