package controlplane

import (
	"context"
	"fmt"
	"strings"

	compute "google.golang.org/api/compute/v1"

	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/gcp"
	"github.com/jupyter-infra/dataproc-hub/internal/imageversion"
)

// ImageRef identifies a compute image by name or by family
type ImageRef struct {
	Project string
	Name    string
	Family  string
}

// ParseImageURI accepts "projects/p/global/images/name",
// "projects/p/global/images/family/f", their full https forms, or a bare
// image name resolved in defaultProject
func ParseImageURI(uri, defaultProject string) (ImageRef, error) {
	trimmed := strings.Trim(strings.TrimSpace(uri), "/")
	if idx := strings.Index(trimmed, "projects/"); idx >= 0 {
		trimmed = trimmed[idx:]
	}
	parts := strings.Split(trimmed, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		return ImageRef{Project: defaultProject, Name: parts[0]}, nil
	case len(parts) == 5 && parts[0] == "projects" && parts[2] == "global" && parts[3] == "images":
		return ImageRef{Project: parts[1], Name: parts[4]}, nil
	case len(parts) == 6 && parts[0] == "projects" && parts[2] == "global" && parts[3] == "images" && parts[4] == "family":
		return ImageRef{Project: parts[1], Family: parts[5]}, nil
	}
	return ImageRef{}, spawnerrors.New(spawnerrors.KindValidation, "invalid image uri %q", uri)
}

// ComputeImageResolver reads the version label of custom images
type ComputeImageResolver struct {
	service        *compute.Service
	defaultProject string
}

// NewComputeImageResolver creates a resolver backed by the Compute Engine API
func NewComputeImageResolver(ctx context.Context, defaultProject string, cfg gcp.ClientConfig) (*ComputeImageResolver, error) {
	service, err := compute.NewService(ctx, cfg.Options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	return &ComputeImageResolver{service: service, defaultProject: defaultProject}, nil
}

// ImageVersion returns the cluster image version a custom image was built
// from, or "" when the image carries no version label
func (r *ComputeImageResolver) ImageVersion(ctx context.Context, imageURI string) (string, error) {
	ref, err := ParseImageURI(imageURI, r.defaultProject)
	if err != nil {
		return "", err
	}

	var image *compute.Image
	if ref.Family != "" {
		image, err = r.service.Images.GetFromFamily(ref.Project, ref.Family).Context(ctx).Do()
	} else {
		image, err = r.service.Images.Get(ref.Project, ref.Name).Context(ctx).Do()
	}
	if err != nil {
		return "", gcp.ClassifyError(err, "failed to read image %s", imageURI)
	}

	label, ok := image.Labels[imageversion.LabelKey]
	if !ok || label == "" {
		return "", nil
	}
	version, err := imageversion.FromLabel(label)
	if err != nil {
		return "", spawnerrors.Wrap(err, spawnerrors.KindValidation, "image %s has an unreadable version label", imageURI)
	}
	return version, nil
}
