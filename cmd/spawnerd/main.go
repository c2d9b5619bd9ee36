/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package main provides the entry point for the spawner service that creates
// one Dataproc cluster per JupyterHub user server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"
	"sigs.k8s.io/yaml"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/blobstore"
	"github.com/jupyter-infra/dataproc-hub/internal/controlplane"
	"github.com/jupyter-infra/dataproc-hub/internal/gcp"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
	"github.com/jupyter-infra/dataproc-hub/internal/metrics"
	"github.com/jupyter-infra/dataproc-hub/internal/server"
	"github.com/jupyter-infra/dataproc-hub/internal/spawner"
)

const userAgent = "dataproc-hub-spawner"

// renderBucket holds local templates in render mode
const renderBucket = "local"

func main() {
	var renderPath string
	var renderForm string
	var renderUser string

	flag.StringVar(&renderPath, "render", "",
		"Print the cluster request built from this local template file and exit, without contacting any cloud API.")
	flag.StringVar(&renderForm, "form", "",
		"Form selection used with -render, as a query string (e.g. \"custom_cluster=on&worker_node_amount=4\").")
	flag.StringVar(&renderUser, "user", "render-user", "User name used with -render.")
	opts := zap.Options{}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	// Setup logger
	log.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	logger := log.Log.WithName("spawnerd")

	ctx := signals.SetupSignalHandler()

	cfg, err := loadConfig(ctx)
	if err != nil {
		logger.Error(err, "Failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error(err, "Invalid configuration")
		os.Exit(1)
	}

	if renderPath != "" {
		if err := render(ctx, cfg, renderPath, renderForm, renderUser); err != nil {
			logger.Error(err, "Failed to render cluster request")
			os.Exit(1)
		}
		return
	}

	deps, err := newDependencies(ctx, cfg)
	if err != nil {
		logger.Error(err, "Failed to create cloud clients")
		os.Exit(1)
	}
	collector := metrics.NewCollector()
	deps.Recorder = collector

	srv := server.NewServer(cfg, spawner.New(cfg, deps), collector, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error(err, "Server failed")
		os.Exit(1)
	}
}

// loadConfig reads the environment, overlaid by the parameter store when a
// parameter path is set
func loadConfig(ctx context.Context) (*spawner.Config, error) {
	prefix := os.Getenv(spawner.EnvSSMParameterPath)
	if prefix == "" {
		return spawner.NewConfig()
	}
	store, err := spawner.NewParameterStore(ctx)
	if err != nil {
		return nil, err
	}
	overlay, err := store.LoadOverlay(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return spawner.NewConfigWithOverlay(overlay)
}

func newDependencies(ctx context.Context, cfg *spawner.Config) (spawner.Dependencies, error) {
	clientConfig := gcp.ClientConfig{
		CredentialsFile: cfg.CredentialsFile,
		UserAgent:       userAgent,
	}

	client, err := controlplane.NewDataprocClient(ctx, cfg.Region, clientConfig)
	if err != nil {
		return spawner.Dependencies{}, err
	}
	store, err := blobstore.NewGCSStore(ctx, clientConfig)
	if err != nil {
		return spawner.Dependencies{}, err
	}
	sink, err := logsink.NewCloudLoggingSink(ctx, clientConfig)
	if err != nil {
		return spawner.Dependencies{}, err
	}
	images, err := controlplane.NewComputeImageResolver(ctx, cfg.ProjectID, clientConfig)
	if err != nil {
		return spawner.Dependencies{}, err
	}

	return spawner.Dependencies{
		Client: client,
		Store:  store,
		Sink:   sink,
		Images: images,
	}, nil
}

// render prints the request built from a local template as YAML
func render(ctx context.Context, cfg *spawner.Config, path, form, username string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	values, err := url.ParseQuery(form)
	if err != nil {
		return fmt.Errorf("invalid form %q: %w", form, err)
	}

	store := blobstore.NewMemoryStore()
	name := filepath.Base(path)
	store.Put(renderBucket, name, data)

	req, err := spawner.New(cfg, spawner.Dependencies{Store: store}).Render(ctx,
		spawner.User{Name: username}, blobstore.JoinPath(renderBucket, name), v1alpha1.NewFormSelection(values))
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode cluster request: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
