package channels

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Exporter writes unresolved channel names somewhere a curator can review them
type Exporter interface {
	Export(ctx context.Context, names []string) error
	Destination() string
}

// writeUnresolvedCSV writes one row per name with its normalised form
func writeUnresolvedCSV(w io.Writer, names []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"channel_name", "clean_channel"}); err != nil {
		return err
	}
	for _, name := range names {
		if err := cw.Write([]string{name, Normalise(name)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVExporter writes unresolved names to a local CSV file
type CSVExporter struct {
	path string
}

// NewCSVExporter creates an exporter for a file path
func NewCSVExporter(path string) *CSVExporter {
	return &CSVExporter{path: path}
}

// Destination returns the file path
func (e *CSVExporter) Destination() string {
	return e.path
}

// Export writes the names, replacing any existing file
func (e *CSVExporter) Export(_ context.Context, names []string) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(e.path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := writeUnresolvedCSV(f, names); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return f.Close()
}

// Uploader is the part of the S3 upload manager the exporter needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config holds the settings for an S3-compatible bucket
type S3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Exporter uploads unresolved names as a CSV object
type S3Exporter struct {
	uploader Uploader
	bucket   string
	prefix   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewS3Exporter creates an exporter using an existing uploader
func NewS3Exporter(uploader Uploader, bucket, prefix string, log zerolog.Logger) *S3Exporter {
	return &S3Exporter{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
		log:      log.With().Str("component", "s3_exporter").Logger(),
	}
}

// NewS3Uploader builds an upload manager from static credentials. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*manager.Uploader, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return manager.NewUploader(client), nil
}

// Destination returns the bucket and prefix
func (e *S3Exporter) Destination() string {
	return fmt.Sprintf("s3://%s/%s", e.bucket, e.prefix)
}

// objectKey names the upload after the export time
func (e *S3Exporter) objectKey() string {
	name := fmt.Sprintf("unresolved-channels-%s.csv", e.now().UTC().Format("2006-01-02-150405"))
	if e.prefix == "" {
		return name
	}
	return e.prefix + "/" + name
}

// Export uploads the names as a CSV object
func (e *S3Exporter) Export(ctx context.Context, names []string) error {
	var buf bytes.Buffer
	if err := writeUnresolvedCSV(&buf, names); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	key := e.objectKey()
	_, err := e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	e.log.Info().Str("bucket", e.bucket).Str("key", key).Int("names", len(names)).Msg("Uploaded unresolved channel names")
	return nil
}
