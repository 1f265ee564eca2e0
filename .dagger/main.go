// Streamline CI/CD
//
// Package main provides reproducible builds and tests for streamline, locally
// and in GitHub actions.
package main

import (
	"context"

	"dagger/streamline/internal/dagger"
)

// Streamline is the CI/CD module for the streamline client
type Streamline struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Streamline CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".streamline", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Streamline {
	return &Streamline{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm Go container with the sqlite headers
// installed, CGO enabled and the project source mounted.
func (s *Streamline) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", s.Source)
}

// Test runs the unit and integration specs via "go test"
//
// +check
func (s *Streamline) Test(ctx context.Context) (string, error) {
	return s.goContainer("").
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}

// Vet runs "go vet" over every package
//
// +check
func (s *Streamline) Vet(ctx context.Context) (string, error) {
	return s.goContainer("").
		WithExec([]string{"go", "vet", "./..."}).
		Stdout(ctx)
}
