/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package redirect sends browsers straight to a cluster's component gateway
// instead of proxying notebook traffic through the hub.
package redirect

import (
	"context"
	"net/http"
	"regexp"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/stringutil"
)

var gatewayPattern = regexp.MustCompile(`^(https://)*[a-zA-Z0-9]*-dot-[a-z1-9-]*\.dataproc\.googleusercontent\.com`)

// IsGatewayURL returns true when target is served by a component gateway
func IsGatewayURL(target string) bool {
	return gatewayPattern.MatchString(target)
}

// Routable returns true when target should be added to the hub proxy.
// Gateway targets are reached by redirect and would 404 behind the proxy.
func Routable(target string) bool {
	return !IsGatewayURL(target)
}

// Resolver finds the gateway of a user's default server
type Resolver interface {
	GatewayURL(ctx context.Context, username string) (string, error)
}

// ResolverFunc adapts a function to a Resolver
type ResolverFunc func(ctx context.Context, username string) (string, error)

// GatewayURL calls f
func (f ResolverFunc) GatewayURL(ctx context.Context, username string) (string, error) {
	return f(ctx, username)
}

// Handler serves /user/{user}/... by redirecting to the user's gateway
type Handler struct {
	Resolver Resolver
}

// ServeHTTP redirects to the gateway, or answers 404 while there is none
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("user")
	logger := logf.FromContext(r.Context()).WithName("redirect").WithValues("user", stringutil.SanitizeUsername(username))

	if username == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	target, err := h.Resolver.GatewayURL(r.Context(), username)
	if err != nil {
		if spawnerrors.IsNotFound(err) {
			logger.V(1).Info("No gateway to redirect to", "reason", err.Error())
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Error(err, "Failed to resolve gateway")
		http.Error(w, "failed to resolve notebook address", http.StatusBadGateway)
		return
	}
	if !IsGatewayURL(target) {
		logger.Info("Refusing to redirect outside the component gateway", "target", target)
		http.Error(w, "notebook address is not a component gateway", http.StatusBadGateway)
		return
	}

	logger.Info("Redirecting to notebook", "target", target)
	http.Redirect(w, r, target, http.StatusFound)
}
