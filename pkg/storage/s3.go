package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/internal/models"
)

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // set for S3-compatible services
	AccessKey     string
	SecretKey     string
	PublicBaseURL string // when empty the upload location is returned
	Prefix        string
}

// S3Store uploads assets to an S3-compatible bucket.
type S3Store struct {
	config   S3Config
	uploader *s3manager.Uploader
}

func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Prefix == "" {
		config.Prefix = "sessions"
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		config:   config,
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *S3Store) Save(ctx context.Context, sessionID string, asset Asset) (models.StoredAsset, error) {
	if err := ValidateKey(sessionID, asset.Filename); err != nil {
		return models.StoredAsset{}, err
	}

	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = InferMimeType("", asset.Filename)
	}
	key := strings.Trim(s.config.Prefix, "/") + "/" + sessionID + "/" + asset.Filename

	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(asset.Data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return models.StoredAsset{}, fmt.Errorf("failed to upload asset to s3: %w", err)
	}

	url := out.Location
	if s.config.PublicBaseURL != "" {
		url = strings.TrimRight(s.config.PublicBaseURL, "/") + "/" + key
	}

	log.WithFields(logrus.Fields{
		"session": sessionID,
		"bucket":  s.config.Bucket,
		"key":     key,
	}).Debug("Stored asset in s3")

	asset.MimeType = mimeType
	return storedAsset(asset, url), nil
}
