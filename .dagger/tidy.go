package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/streamline/internal/dagger"
)

// CheckGoModTidy fails when "go mod tidy" would change go.mod or go.sum
//
// +check
func (s *Streamline) CheckGoModTidy(ctx context.Context) (string, error) {
	out, err := s.goContainer("").
		WithExec([]string{"cp", "go.mod", "/tmp/go.mod"}).
		WithExec([]string{"cp", "go.sum", "/tmp/go.sum"}).
		WithExec([]string{"go", "mod", "tidy"}).
		WithExec([]string{"sh", "-c", "diff -u /tmp/go.mod go.mod && diff -u /tmp/go.sum go.sum"}).
		Stdout(ctx)

	var execErr *dagger.ExecError
	if errors.As(err, &execErr) {
		return "", fmt.Errorf("go.mod or go.sum need tidying, run 'go mod tidy':\n\n%s", execErr.Stdout)
	}
	if err != nil {
		return "", fmt.Errorf("running go mod tidy: %w", err)
	}

	return "go.mod and go.sum are tidy\n" + out, nil
}
