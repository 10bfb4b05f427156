package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/tieubaoca/edu-assistant/utils"
	"go.uber.org/zap"
)

// Archiver keeps an encrypted copy of raw uploads and returns its storage key.
type Archiver interface {
	Archive(ctx context.Context, userID, filename string, data []byte) (string, error)
}

// ObjectPutter is the part of the S3 client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	sse    string
	key    []byte
	logger *zap.Logger
}

// NewArchiver returns an S3Archiver when cfg is complete and a NoopArchiver
// otherwise.
func NewArchiver(cfg config.ArchiveConfig, logger *zap.Logger) (Archiver, error) {
	if !cfg.Enabled() {
		logger.Info("archive storage not configured, uploads will not be archived")
		return NoopArchiver{}, nil
	}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})
	return NewS3Archiver(client, cfg, logger)
}

func NewS3Archiver(client ObjectPutter, cfg config.ArchiveConfig, logger *zap.Logger) (*S3Archiver, error) {
	key, err := utils.ParseEncryptionKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		sse:    cfg.SSE,
		key:    key,
		logger: logger,
	}, nil
}

// ObjectKey is the storage key of one upload: <prefix>/user_<id>/<uuid>_<filename>.
func (a *S3Archiver) ObjectKey(userID, filename string) string {
	name := utils.SanitizeFilename(filename)
	if name == "" {
		name = "upload"
	}
	return path.Join(a.prefix, "user_"+userID, uuid.NewString()+"_"+name)
}

func (a *S3Archiver) Archive(ctx context.Context, userID, filename string, data []byte) (string, error) {
	sealed, err := utils.Encrypt(a.key, data)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt upload: %w", err)
	}

	key := a.ObjectKey(userID, filename)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String("application/octet-stream"),
	}
	if strings.EqualFold(a.sse, "AES256") {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	a.logger.Info("archived upload",
		zap.String("user_id", userID),
		zap.String("filename", filename),
		zap.String("key", key))
	return key, nil
}

// NoopArchiver is used when archival is not configured.
type NoopArchiver struct{}

func (NoopArchiver) Archive(context.Context, string, string, []byte) (string, error) {
	return "", types.ErrArchiveDisabled
}
