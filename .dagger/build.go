package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/streamline/internal/dagger"
)

// platforms streamline is released for. The sqlite driver needs cgo, so each
// platform is built natively in its own container.
var platforms = []dagger.Platform{
	"linux/amd64",
	"linux/arm64",
}

// Build compiles the streamline binary for every release platform and returns
// a directory laid out as <os>/<arch>/streamline
func (s *Streamline) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	outputs := dag.Directory()

	for _, platform := range platforms {
		path := strings.TrimSuffix(string(platform), "/") + "/"

		build := s.goContainer(platform).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/streamline"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles release binaries with the version info embedded
func (s *Streamline) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	const pkg = "github.com/papercomputeco/streamline/pkg/utils"

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", pkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", pkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", pkg, time.Now().UTC().Format(time.RFC3339)),
	}

	return s.Build(ctx, strings.Join(ldflags, " "))
}
