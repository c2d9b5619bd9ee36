/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package gcp holds helpers shared by the Google Cloud REST adapters.
package gcp

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

// ClientConfig selects how the REST clients authenticate and where they connect
type ClientConfig struct {
	// CredentialsFile is a service account key; empty uses application default credentials
	CredentialsFile string
	// Endpoint overrides the service endpoint, mostly for tests
	Endpoint string
	// HTTPClient replaces the authenticated transport entirely
	HTTPClient *http.Client
	// UserAgent is appended to requests
	UserAgent string
}

// Options converts the config to client options
func (c ClientConfig) Options() []option.ClientOption {
	var opts []option.ClientOption
	if c.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.HTTPClient))
	} else if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	if c.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(c.UserAgent))
	}
	return opts
}

// ClassifyError maps a Google API error onto the spawner error kinds
func ClassifyError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return spawnerrors.Wrap(err, spawnerrors.KindRemoteAPI, "%s", msg)
	}

	switch apiErr.Code {
	case http.StatusNotFound:
		return spawnerrors.Wrap(err, spawnerrors.KindNotFound, "%s", msg)
	case http.StatusConflict:
		return spawnerrors.Wrap(err, spawnerrors.KindConflict, "%s", msg)
	case http.StatusTooManyRequests:
		return spawnerrors.Wrap(err, spawnerrors.KindRateLimit, "%s", msg)
	case http.StatusForbidden:
		// permission denied and exhausted quota share the status code
		return spawnerrors.Wrap(err, spawnerrors.KindQuota, "%s", msg)
	case http.StatusBadRequest:
		if hasReason(apiErr, "quotaExceeded", "rateLimitExceeded") {
			return spawnerrors.Wrap(err, spawnerrors.KindQuota, "%s", msg)
		}
		return spawnerrors.Wrap(err, spawnerrors.KindValidation, "%s", msg)
	default:
		return spawnerrors.Wrap(err, spawnerrors.KindRemoteAPI, "%s", msg)
	}
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
