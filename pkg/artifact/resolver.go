package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/primait/nembo/pkg/io/logging"
	"github.com/primait/nembo/tools/filesystem/files"
	"github.com/primait/nembo/tools/filesystem/zip"
	"github.com/primait/nembo/tools/yamler"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	req "github.com/imroc/req/v3"
	"github.com/sourcegraph/conc/iter"
)

// Resolver downloads or packages every function artifact into a local
// directory before compilation starts. Supported artifact forms: a local
// file, a local directory (zipped in place), an https:// URL and an
// s3://bucket/key URI.
type Resolver struct {
	Dir    string
	Region string

	logger     logging.LogManager
	httpClient *req.Client
}

func NewResolver(dir string, region string) *Resolver {
	return &Resolver{
		Dir:    dir,
		Region: region,
		logger: logging.GetLogManager(),
		httpClient: req.C().
			SetTimeout(5 * time.Minute).
			SetUserAgent("nembo"),
	}
}

type namedFunction struct {
	name string
	fn   *yamler.Function
}

type namedLayer struct {
	name  string
	layer *yamler.Layer
}

// ResolveAll fetches the artifacts of every declared function in parallel
// and records the resolved local path on each function. It returns only
// once every artifact is present on disk.
func (r *Resolver) ResolveAll(ctx context.Context, manifest *yamler.Manifest) error {
	if err := os.MkdirAll(r.Dir, 0775); err != nil {
		return fmt.Errorf("creating artifact directory %s: %w", r.Dir, err)
	}

	targets := make([]namedFunction, 0, len(manifest.Functions))
	for _, name := range manifest.FunctionNames() {
		targets = append(targets, namedFunction{name: name, fn: manifest.Functions[name]})
	}

	if _, err := iter.MapErr(targets, func(t *namedFunction) (string, error) {
		path, err := r.Resolve(ctx, t.name, t.fn)
		if err != nil {
			return "", err
		}
		t.fn.ArtifactPath = path
		return path, nil
	}); err != nil {
		return err
	}

	layers := make([]namedLayer, 0, len(manifest.Layers))
	for name, layer := range manifest.Layers {
		layers = append(layers, namedLayer{name: name, layer: layer})
	}
	_, err := iter.MapErr(layers, func(t *namedLayer) (string, error) {
		if t.layer.Package == nil || t.layer.Package.Artifact == "" {
			return "", fmt.Errorf("layer %s: no package artifact declared", t.name)
		}
		path, err := r.resolveSource(ctx, t.name, t.layer.Package.Artifact)
		if err != nil {
			return "", err
		}
		t.layer.ArtifactPath = path
		return path, nil
	})
	return err
}

// Resolve returns the local path of one function's artifact, fetching or
// packaging it if needed. Image-based functions carry their content in the
// image reference and resolve to no local artifact.
func (r *Resolver) Resolve(ctx context.Context, name string, fn *yamler.Function) (string, error) {
	if fn.Image != "" {
		return "", nil
	}
	if fn.Package == nil || fn.Package.Artifact == "" {
		return "", fmt.Errorf("function %s: no package artifact declared", name)
	}
	return r.resolveSource(ctx, name, fn.Package.Artifact)
}

func (r *Resolver) resolveSource(ctx context.Context, name string, source string) (string, error) {
	switch {
	case strings.HasPrefix(source, "https://"), strings.HasPrefix(source, "http://"):
		return r.download(ctx, name, source)
	case strings.HasPrefix(source, "s3://"):
		return r.downloadS3(ctx, name, source)
	default:
		return r.local(name, source)
	}
}

func (r *Resolver) local(name string, source string) (string, error) {
	path := files.NormalizePath(source)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("function %s: artifact %s: %w", name, source, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	dest := filepath.Join(r.Dir, name+".zip")
	r.logger.Debug("Packaging artifact directory", "function", name, "dir", path)
	if err := zip.ZipDirectory(path, dest); err != nil {
		return "", fmt.Errorf("function %s: packaging %s: %w", name, source, err)
	}
	return dest, nil
}

func (r *Resolver) download(ctx context.Context, name string, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("function %s: malformed url %s: %w", name, rawURL, err)
	}
	dest := filepath.Join(r.Dir, name+filepath.Ext(parsed.Path))
	r.logger.Debug("Downloading artifact", "function", name, "url", rawURL)

	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetOutputFile(dest).
		Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("function %s: downloading %s: %w", name, rawURL, err)
	}
	if resp.IsErrorState() {
		return "", fmt.Errorf("function %s: downloading %s: HTTP %d", name, rawURL, resp.StatusCode)
	}
	return dest, nil
}

func (r *Resolver) downloadS3(ctx context.Context, name string, uri string) (string, error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	bucket, key, found := strings.Cut(trimmed, "/")
	if !found || bucket == "" || key == "" {
		return "", fmt.Errorf("function %s: malformed s3 uri %s", name, uri)
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if r.Region != "" {
		opts = append(opts, awsconfig.WithRegion(r.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("function %s: loading AWS configuration: %w", name, err)
	}

	client := s3.NewFromConfig(cfg)
	r.logger.Debug("Downloading artifact from S3", "function", name, "bucket", bucket, "key", key)
	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("function %s: fetching %s: %w", name, uri, err)
	}
	defer output.Body.Close()

	dest := filepath.Join(r.Dir, name+filepath.Ext(key))
	file, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("function %s: writing artifact: %w", name, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, output.Body); err != nil {
		return "", fmt.Errorf("function %s: writing artifact: %w", name, err)
	}
	return dest, nil
}
