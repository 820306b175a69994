// Package mirror reads a copy of the data repository from an S3-compatible
// bucket (AWS S3 or MinIO). Object keys below the configured prefix map to
// repository paths.
package mirror

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/logging"
	"github.com/cordoba-data/program-dashboard/internal/source"
)

// objectAPI is the subset of *s3.Client the mirror needs.
type objectAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store is a read-only Source over one bucket.
type Store struct {
	client objectAPI
	bucket string
	prefix string
	log    *zap.Logger
}

var _ source.Source = (*Store)(nil)

func init() {
	source.Register(config.SourceS3, func(ctx context.Context, cfg config.Config, log *zap.Logger) (source.Source, error) {
		return New(ctx, cfg.Mirror, log)
	})
}

// New creates a Store from configuration. Credentials come from the default
// AWS chain (AWS_ACCESS_KEY_ID, shared config, instance role).
func New(ctx context.Context, cfg config.Mirror, log *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, config.ErrMissingBucket
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client objectAPI, bucket, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: prefix, log: log.Named("mirror")}
}

func (s *Store) Name() string { return "s3:" + s.bucket }

// ListTree returns every object key below the prefix, relative to it, sorted.
// Directory markers are skipped.
func (s *Store) ListTree(ctx context.Context) ([]string, error) {
	start := time.Now()
	var paths []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			logging.LogError(s.log, s.Name(), "list", err)
			return nil, fmt.Errorf("list %s: %w", s.bucket, err)
		}
		for _, obj := range out.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			paths = append(paths, key)
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(paths)
	logging.LogResponse(s.log, s.Name(), 200, time.Since(start), len(paths))
	return paths, nil
}

// FetchFile reads one object.
func (s *Store) FetchFile(ctx context.Context, path string) ([]byte, error) {
	key := s.prefix + strings.TrimPrefix(path, "/")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		logging.LogError(s.log, s.Name(), "get", err)
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return body, nil
}
