// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/buildgate/buildgate/pkg/artifacts"
	"github.com/buildgate/buildgate/pkg/registry"
	"github.com/buildgate/buildgate/pkg/steps"
	"github.com/buildgate/buildgate/pkg/steps/build"
	"github.com/buildgate/buildgate/pkg/steps/testrun"
)

func registerNativeSteps(reg *registry.Registry, store artifacts.Store, runner steps.CommandRunner) {
	reg.RegisterStep(build.NewFactory(store, runner))
	reg.RegisterStep(testrun.NewFactory(store, runner))
}

func NewRegistry(logger *slog.Logger, store artifacts.Store) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerNativeSteps(reg, store, steps.ExecRunner)

	return reg
}
