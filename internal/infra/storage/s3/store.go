// Package s3 persists the shared store in an S3-compatible bucket (AWS
// S3 or MinIO), one object per key. Change propagation is ETag polling.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"tabala/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.KV = (*Store)(nil)

const (
	objectPrefix        = "state/"
	defaultPollInterval = 5 * time.Second
)

// api is the client subset the store needs; *s3.Client satisfies it and
// tests substitute a fake.
type api interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds explicit construction parameters. For production the
// environment variables consumed by core.OpenKV are the usual entry.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
	PollInterval    time.Duration
}

// Store is an S3-backed shared store adapter.
type Store struct {
	client api
	bucket string

	mu        sync.Mutex
	seen      map[string]string // key -> last observed ETag
	cache     map[string][]byte
	watchers  map[int]func(domain.ChangeSet)
	nextWatch int

	pollInterval time.Duration

	loopOnce  sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewStore creates an S3-backed store from Config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newWithClient(client, cfg.Bucket, cfg.PollInterval), nil
}

func newWithClient(client api, bucket string, pollInterval time.Duration) *Store {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Store{
		client:       client,
		bucket:       bucket,
		seen:         make(map[string]string),
		cache:        make(map[string][]byte),
		watchers:     make(map[int]func(domain.ChangeSet)),
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func objectKey(key string) string { return objectPrefix + key }

// Get returns the payload stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = out.Body.Close() }()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set stores payload under key. The returned ETag is recorded so the
// poller does not report this store's own write.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if out.ETag != nil {
		s.seen[key] = *out.ETag
	}
	s.cache[key] = append([]byte(nil), payload...)
	s.mu.Unlock()
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
	}); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.seen, key)
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// Watch registers fn for changes written by other contexts. The first
// registration starts the ETag polling loop.
func (s *Store) Watch(fn func(domain.ChangeSet)) (func(), error) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()

	s.loopOnce.Do(func() { go s.pollLoop() })

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

// Close stops the polling loop. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.loopOnce.Do(func() { close(s.doneCh) })
		<-s.doneCh
	})
	return nil
}

func (s *Store) pollLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scan(context.Background())
		}
	}
}

// scan lists the state objects, fetches those whose ETag moved, and
// delivers the resulting change set.
func (s *Store) scan(ctx context.Context) {
	etags := make(map[string]string)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(objectPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return
		}
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			key := strings.TrimPrefix(*obj.Key, objectPrefix)
			if obj.ETag != nil {
				etags[key] = *obj.ETag
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	s.mu.Lock()
	stale := make([]string, 0)
	for key, etag := range etags {
		if s.seen[key] != etag {
			stale = append(stale, key)
		}
	}
	removed := make([]string, 0)
	for key := range s.seen {
		if _, ok := etags[key]; !ok {
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()

	changes := domain.ChangeSet{}
	for _, key := range stale {
		payload, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		s.mu.Lock()
		changes[key] = domain.KeyChange{Old: s.cache[key], New: payload}
		s.seen[key] = etags[key]
		s.cache[key] = payload
		s.mu.Unlock()
	}
	for _, key := range removed {
		s.mu.Lock()
		changes[key] = domain.KeyChange{Old: s.cache[key]}
		delete(s.seen, key)
		delete(s.cache, key)
		s.mu.Unlock()
	}
	if len(changes) == 0 {
		return
	}

	s.mu.Lock()
	targets := make([]func(domain.ChangeSet), 0, len(s.watchers))
	for _, fn := range s.watchers {
		targets = append(targets, fn)
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(changes)
	}
}
