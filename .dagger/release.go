package main

import (
	"context"
	"fmt"
	"path"

	"dagger/streamline/internal/dagger"
)

// bucket holds the S3 compatible bucket release artifacts are synced to
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyID     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// sync copies artifacts into the bucket under prefix
func (b *bucket) sync(ctx context.Context, artifacts *dagger.Directory, prefix string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket name: %w", err)
	}

	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket endpoint: %w", err)
	}

	_, err = dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyID).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec([]string{
			"aws", "s3", "sync", ".",
			"s3://" + path.Join(name, prefix),
			"--endpoint-url", endpoint,
		}).
		Sync(ctx)
	if err != nil {
		return fmt.Errorf("syncing artifacts to %s: %w", prefix, err)
	}

	return nil
}

// Release builds versioned binaries and uploads them under both the version
// prefix and "latest"
func (s *Streamline) Release(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyID *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := &bucket{
		endpoint:        endpoint,
		name:            bucketName,
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
	}

	artifacts := s.BuildRelease(ctx, version, commit)
	for _, prefix := range []string{version, "latest"} {
		if err := b.sync(ctx, artifacts, prefix); err != nil {
			return artifacts, err
		}
	}

	return artifacts, nil
}
