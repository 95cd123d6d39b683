package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cryptosentry/config"
	"cryptosentry/logger"
)

// Uploader ships finished archive files to an S3 bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Entry
}

func NewUploader(ctx context.Context, cfg config.S3Config, log *logger.Log) (*Uploader, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.WithComponent("s3_uploader"),
	}, nil
}

// Upload puts one local file under prefix/filename and removes the
// local copy on success.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := path.Join(u.prefix, filepath.Base(localPath))
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}

	if err := os.Remove(localPath); err != nil {
		u.log.WithError(err).WithFields(logger.Fields{"path": localPath}).Warn("failed to remove uploaded file")
	}
	u.log.WithFields(logger.Fields{"bucket": u.bucket, "key": key}).Info("archive file uploaded")
	return nil
}
