// Package media stores uploaded profile images and returns their public URLs.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/utilities"
)

var ErrEmptyFile = errors.New("empty file")

// File is an upload in flight. Size is informational; Body is read to EOF.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Asset describes a stored object.
type Asset struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

type Uploader interface {
	Upload(ctx context.Context, f File) (*Asset, error)
}

// Config for the S3 compatible backend.
type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Folder        string
	PublicBaseURL string
}

// ObjectPutter is the part of *s3.Client the uploader uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client ObjectPutter
	cfg    Config
}

// NewS3Uploader builds a path-style client from static credentials.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return NewS3UploaderWithClient(client, cfg), nil
}

func NewS3UploaderWithClient(client ObjectPutter, cfg Config) *S3Uploader {
	return &S3Uploader{client: client, cfg: cfg}
}

func (u *S3Uploader) Upload(ctx context.Context, f File) (*Asset, error) {
	data, contentType, err := readFile(f)
	if err != nil {
		return nil, err
	}
	key := objectKey(u.cfg.Folder, f.Name)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}
	return &Asset{Key: key, URL: u.publicURL(key), ContentType: contentType, Size: int64(len(data))}, nil
}

func (u *S3Uploader) publicURL(key string) string {
	switch {
	case u.cfg.PublicBaseURL != "":
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	case u.cfg.Endpoint != "":
		return strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
	}
}

// objectKey is folder/<ksuid><ext>; the client file name never reaches the key
// beyond its extension.
func objectKey(folder, name string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) > 10 || strings.ContainsAny(ext, " ?#%") {
		ext = ""
	}
	key := utilities.NewKSUID() + ext
	if folder = strings.Trim(folder, "/"); folder != "" {
		key = folder + "/" + key
	}
	return key
}

func readFile(f File) ([]byte, string, error) {
	if f.Body == nil {
		return nil, "", ErrEmptyFile
	}
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyFile
	}
	contentType := f.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// MemoryUploader keeps uploads in process memory. Used with STORE_DRIVER=memory.
type MemoryUploader struct {
	mu      sync.Mutex
	BaseURL string
	objects map[string][]byte
}

func NewMemoryUploader(baseURL string) *MemoryUploader {
	return &MemoryUploader{BaseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *MemoryUploader) Upload(ctx context.Context, f File) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, contentType, err := readFile(f)
	if err != nil {
		return nil, err
	}
	key := objectKey("", f.Name)
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return &Asset{Key: key, URL: m.BaseURL + "/" + key, ContentType: contentType, Size: int64(len(data))}, nil
}

// Object returns a stored upload.
func (m *MemoryUploader) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Len reports how many objects were stored.
func (m *MemoryUploader) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
