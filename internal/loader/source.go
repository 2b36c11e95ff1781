package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"iam-platform/internal/config"
)

// Source lists and opens input files by name
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

// DefaultFileTypes are the extensions loaded when none are configured
var DefaultFileTypes = []string{"csv", "xlsx"}

func normalizeTypes(types []string) map[string]bool {
	if len(types) == 0 {
		types = DefaultFileTypes
	}
	out := make(map[string]bool, len(types))
	for _, t := range types {
		out["."+strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), ".")] = true
	}
	return out
}

func hasType(name string, types map[string]bool) bool {
	return types[strings.ToLower(path.Ext(name))]
}

// NewSource builds the source named by the ingest configuration
func NewSource(ctx context.Context, cfg config.IngestConfig) (Source, error) {
	switch cfg.Source {
	case "local", "":
		return DirSource{Dir: cfg.DataDir, FileTypes: cfg.FileTypes}, nil
	case "s3":
		return NewS3Source(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			FileTypes: cfg.FileTypes,
		})
	}
	return nil, fmt.Errorf("unknown ingest source %q", cfg.Source)
}

// DirSource reads files from one local directory, not recursing
type DirSource struct {
	Dir       string
	FileTypes []string
}

func (d DirSource) String() string { return "dir:" + d.Dir }

// List returns matching file names in lexical order
func (d DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.Dir, err)
	}
	types := normalizeTypes(d.FileTypes)
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if hasType(e.Name(), types) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	return os.Open(filepath.Join(d.Dir, name))
}

// s3API is the subset of the S3 client the loader needs
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config locates input files in a bucket
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional, e.g. a MinIO URL
	PathStyle bool
	FileTypes []string
}

// S3Source reads objects under a bucket prefix. Names are keys relative to
// the prefix.
type S3Source struct {
	client s3API
	cfg    S3Config
}

// NewS3Source builds a client from the default AWS credential chain
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Source(client, cfg), nil
}

func newS3Source(client s3API, cfg S3Config) *S3Source {
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	return &S3Source{client: client, cfg: cfg}
}

func (s *S3Source) String() string { return "s3://" + s.cfg.Bucket + "/" + s.cfg.Prefix }

// List pages through the prefix and returns matching keys, prefix stripped,
// in lexical order. Nested "directories" are skipped.
func (s *S3Source) List(ctx context.Context) ([]string, error) {
	types := normalizeTypes(s.cfg.FileTypes)
	var names []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(s.cfg.Prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", s, err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.Prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			if hasType(name, types) {
				names = append(names, name)
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Prefix + name),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s%s: %w", s, name, err)
	}
	return out.Body, nil
}
