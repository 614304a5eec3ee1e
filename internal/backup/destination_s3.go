package backup

import (
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Destination stores backups in AWS S3 or S3-compatible storage
type S3Destination struct {
	config   *DestinationConfig
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Destination creates a new S3 destination
func NewS3Destination(config *DestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	dest := &S3Destination{
		config:   config,
		s3Client: s3.New(sess),
		uploader: s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
			u.PartSize = 16 * 1024 * 1024
		}),
	}

	log.Printf("[S3Dest] Initialized S3 destination: bucket=%s, region=%s",
		config.Bucket, config.Region)

	return dest, nil
}

func (sd *S3Destination) key(filename string) string {
	prefix := strings.Trim(sd.config.Prefix, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

// Upload streams a backup file to S3, switching to multipart for large archives
func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Uploading %s to s3://%s/%s (%d bytes)",
		filename, sd.config.Bucket, key, sizeBytes)

	_, err := sd.uploader.Upload(&s3manager.UploadInput{
		Bucket:       aws.String(sd.config.Bucket),
		Key:          aws.String(key),
		Body:         reader,
		ContentType:  aws.String(contentType(detectCompressionFromFilename(filename))),
		StorageClass: aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Printf("[S3Dest] Upload complete: %s", filename)
	return nil
}

// Download downloads a backup file from S3
func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	result, err := sd.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.config.Bucket),
		Key:    aws.String(sd.key(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

// Delete removes a backup file from S3
func (sd *S3Destination) Delete(filename string) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Deleting s3://%s/%s", sd.config.Bucket, key)

	_, err := sd.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List returns all backup files under the configured prefix
func (sd *S3Destination) List() ([]BackupFile, error) {
	prefix := strings.Trim(sd.config.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	var files []BackupFile
	err := sd.s3Client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.config.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			// Skip "directories" and anything nested deeper than the prefix
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			files = append(files, BackupFile{
				Filename:  name,
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified).Unix(),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}

	return files, nil
}

// GetType returns the destination type
func (sd *S3Destination) GetType() string {
	return "s3"
}
