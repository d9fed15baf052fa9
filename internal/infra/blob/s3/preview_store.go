// Package s3blob 把房间预览图保存到 S3 兼容的对象存储。
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"collaborative-canvas/internal/repository"
)

// objectAPI 是用到的 S3 客户端方法子集
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// PreviewStore 是 repository.PreviewStore 的 S3 实现
type PreviewStore struct {
	client objectAPI
	bucket string
	prefix string
}

var _ repository.PreviewStore = (*PreviewStore)(nil)

// NewPreviewStore 创建 S3 预览存储。endpoint 非空时启用 path-style 寻址 (MinIO 等)。
func NewPreviewStore(ctx context.Context, bucket, prefix, region, endpoint string) (*PreviewStore, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket must be set")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return newPreviewStore(s3.NewFromConfig(cfg, s3opts...), bucket, prefix), nil
}

func newPreviewStore(client objectAPI, bucket, prefix string) *PreviewStore {
	return &PreviewStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *PreviewStore) objectKey(roomID uint) string {
	return path.Join(s.prefix, "rooms", strconv.FormatUint(uint64(roomID), 10), "preview.png")
}

// PutPreview 上传预览图
func (s *PreviewStore) PutPreview(ctx context.Context, roomID uint, png []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(roomID)),
		Body:        bytes.NewReader(png),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("s3 put preview for room %d: %w", roomID, err)
	}
	return nil
}

// GetPreview 下载预览图，对象不存在映射为 ErrPreviewNotFound
func (s *PreviewStore) GetPreview(ctx context.Context, roomID uint) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(roomID)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, repository.ErrPreviewNotFound
		}
		return nil, fmt.Errorf("s3 get preview for room %d: %w", roomID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read preview for room %d: %w", roomID, err)
	}
	return data, nil
}
