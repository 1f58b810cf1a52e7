package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/database"
)

const metadataFile = "backup-metadata.json"

// Uploader is the part of the S3 upload manager backups need
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// BackupMetadata is written next to the database inside each archive
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// BackupJob snapshots the engine database and uploads it as a tar.gz archive
type BackupJob struct {
	db       *database.DB
	uploader Uploader
	bucket   string
	prefix   string
	dataDir  string
	now      func() time.Time
	log      zerolog.Logger
}

// NewBackupJob creates a backup job. Archives are staged under dataDir.
func NewBackupJob(db *database.DB, uploader Uploader, bucket, dataDir string, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		db:       db,
		uploader: uploader,
		bucket:   bucket,
		prefix:   "backups",
		dataDir:  dataDir,
		now:      time.Now,
		log:      log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run creates and uploads one backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	_, err := j.CreateAndUpload(ctx)
	return err
}

// CreateAndUpload stages a snapshot, archives it with its metadata and uploads
// the archive. It returns the object key.
func (j *BackupJob) CreateAndUpload(ctx context.Context) (string, error) {
	start := time.Now()

	stagingDir := filepath.Join(j.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbFile := j.db.Name() + ".db"
	dbPath := filepath.Join(stagingDir, dbFile)
	if err := j.db.Backup(ctx, dbPath); err != nil {
		return "", err
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat backup: %w", err)
	}
	checksum, err := fileChecksum(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	timestamp := j.now().UTC()
	metadata := BackupMetadata{
		Timestamp: timestamp,
		Database:  j.db.Name(),
		Filename:  dbFile,
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := fmt.Sprintf("%s-backup-%s.tar.gz", j.db.Name(), timestamp.Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, []string{dbFile, metadataFile}); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := j.prefix + "/" + archiveName
	if _, err := j.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(j.bucket),
		Key:         aws.String(key),
		Body:        archive,
		ContentType: aws.String("application/gzip"),
	}); err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	j.log.Info().
		Str("bucket", j.bucket).
		Str("key", key).
		Int64("db_size_bytes", info.Size()).
		Dur("duration", time.Since(start)).
		Msg("Database backup uploaded")

	return key, nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
