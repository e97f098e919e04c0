package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options overrides the default AWS configuration chain.
type S3Options struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Location is a store together with the path of one file inside it.
type Location struct {
	Store FileStore
	Path  string
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("storage: %q is not an s3:// URI", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.Trim(key, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage: %q needs a bucket and a key", uri)
	}
	return bucket, key, nil
}

// Open resolves a file URI. s3://bucket/prefix/name selects an S3 store
// under bucket/prefix configured from the default AWS chain and opts;
// anything else is a local file path.
func Open(ctx context.Context, uri string, opts S3Options) (*Location, error) {
	if !strings.HasPrefix(uri, "s3://") {
		dir, name := filepath.Split(uri)
		if dir == "" {
			dir = "."
		}
		local, err := NewLocal(dir)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return &Location{Store: local, Path: name}, nil
	}
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	prefix, name := "", key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		prefix, name = key[:i], key[i+1:]
	}
	return &Location{Store: NewS3(client, bucket, prefix), Path: name}, nil
}
