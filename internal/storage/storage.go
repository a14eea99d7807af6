// Package storage keeps listing images in S3: operator uploads, photos
// mirrored during enrichment, and the per-category default pools.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/config"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image exceeds upload limit")
	ErrEmptyListingID   = errors.New("listing id is required")
)

// S3API is the subset of the S3 client used by ImageStore.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures an ImageStore.
type Options struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	MaxWidth      int
	JPEGQuality   int
	MaxBytes      int64
	PoolTTL       time.Duration
}

// OptionsFromConfig maps the storage and images config sections.
func OptionsFromConfig(s config.StorageConfig, img config.ImagesConfig) Options {
	return Options{
		Bucket:        s.S3Bucket,
		Region:        s.AWSRegion,
		Endpoint:      s.Endpoint,
		PublicBaseURL: s.PublicBaseURL,
		MaxWidth:      img.MaxWidth,
		JPEGQuality:   img.JPEGQuality,
		MaxBytes:      img.MaxUploadBytes(),
		PoolTTL:       img.PoolTTL(),
	}
}

type poolEntry struct {
	urls    []string
	expires time.Time
}

// ImageStore reads and writes listing images. It implements
// imagery.CategoryPool.
type ImageStore struct {
	client S3API
	opts   Options
	now    func() time.Time

	mu   sync.Mutex
	pool map[domain.Category]poolEntry
}

// New creates an ImageStore over client.
func New(client S3API, opts Options) *ImageStore {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 1600
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	return &ImageStore{
		client: client,
		opts:   opts,
		now:    time.Now,
		pool:   make(map[domain.Category]poolEntry),
	}
}

// Bucket returns the configured bucket name.
func (s *ImageStore) Bucket() string { return s.opts.Bucket }

// PublicURL returns the browser-facing URL for key.
func (s *ImageStore) PublicURL(key string) string {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + key
	}
	if s.opts.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.opts.Endpoint, "/"), s.opts.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
}

// PutObject stores data under key and returns its public URL.
func (s *ImageStore) PutObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.opts.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to S3: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// CategoryPrefix is where a category's default images live.
func CategoryPrefix(c domain.Category) string {
	return "categories/" + c.Slug() + "/"
}

var poolExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true}

// Images returns the default image URLs for category, sorted by key. Listings
// are cached for PoolTTL.
func (s *ImageStore) Images(ctx context.Context, category domain.Category) ([]string, error) {
	now := s.now()
	s.mu.Lock()
	if e, ok := s.pool[category]; ok && now.Before(e.expires) {
		s.mu.Unlock()
		return e.urls, nil
	}
	s.mu.Unlock()

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(CategoryPrefix(category)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s pool: %w", category, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if poolExtensions[strings.ToLower(path.Ext(key))] {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)

	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		urls = append(urls, s.PublicURL(k))
	}

	if s.opts.PoolTTL > 0 {
		s.mu.Lock()
		s.pool[category] = poolEntry{urls: urls, expires: now.Add(s.opts.PoolTTL)}
		s.mu.Unlock()
	}
	return urls, nil
}

// InvalidatePool drops cached pool listings.
func (s *ImageStore) InvalidatePool() {
	s.mu.Lock()
	s.pool = make(map[domain.Category]poolEntry)
	s.mu.Unlock()
}
