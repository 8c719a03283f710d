package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	s3sdk "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"tabala/pkg/domain"
)

type fakeObject struct {
	payload []byte
	etag    string
}

// fakeClient is an in-memory stand-in for the S3 API subset the store
// consumes.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	etagSeq int
	pageLen int
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string]fakeObject)}
}

func (f *fakeClient) GetObject(_ context.Context, in *s3sdk.GetObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3sdk.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(append([]byte(nil), obj.payload...))),
		ETag: aws.String(obj.etag),
	}, nil
}

func (f *fakeClient) PutObject(_ context.Context, in *s3sdk.PutObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.PutObjectOutput, error) {
	payload, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.etagSeq++
	etag := fmt.Sprintf("\"etag-%d\"", f.etagSeq)
	f.objects[*in.Key] = fakeObject{payload: payload, etag: etag}
	return &s3sdk.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeClient) DeleteObject(_ context.Context, in *s3sdk.DeleteObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3sdk.DeleteObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(_ context.Context, in *s3sdk.ListObjectsV2Input, _ ...func(*s3sdk.Options)) (*s3sdk.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if in.Prefix == nil || strings.HasPrefix(key, *in.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, key := range keys {
			if key > *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	pageLen := f.pageLen
	if pageLen <= 0 {
		pageLen = len(keys)
	}
	end := start + pageLen
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3sdk.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(key),
			ETag: aws.String(f.objects[key].etag),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func TestRoundTripAgainstFakeClient(t *testing.T) {
	client := newFakeClient()
	s := newWithClient(client, "bucket", time.Hour)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "links"); err != nil || ok {
		t.Fatalf("empty get = %v %v", ok, err)
	}
	if err := s.Set(ctx, "links", []byte(`[1]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	payload, ok, err := s.Get(ctx, "links")
	if err != nil || !ok || string(payload) != `[1]` {
		t.Fatalf("get = %q %v %v", payload, ok, err)
	}
	if err := s.Remove(ctx, "links"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "links"); ok {
		t.Fatal("key survived removal")
	}
}

func TestObjectsLiveUnderStatePrefix(t *testing.T) {
	client := newFakeClient()
	s := newWithClient(client, "bucket", time.Hour)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Set(context.Background(), "links", []byte(`[1]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	client.mu.Lock()
	_, ok := client.objects["state/links"]
	client.mu.Unlock()
	if !ok {
		t.Fatal("object not stored under the state/ prefix")
	}
}

func TestScanReportsForeignWritesOnly(t *testing.T) {
	client := newFakeClient()
	local := newWithClient(client, "bucket", time.Hour)
	remote := newWithClient(client, "bucket", time.Hour)
	t.Cleanup(func() { _ = local.Close() })
	t.Cleanup(func() { _ = remote.Close() })
	ctx := context.Background()

	var got []domain.ChangeSet
	cancel, err := local.Watch(func(cs domain.ChangeSet) { got = append(got, cs) })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	// Own write: the returned ETag is recorded, scan stays silent.
	if err := local.Set(ctx, "links", []byte(`local`)); err != nil {
		t.Fatalf("local set: %v", err)
	}
	local.scan(ctx)
	if len(got) != 0 {
		t.Fatalf("own write reported: %+v", got)
	}

	// Foreign write moves the ETag; scan reports it with old and new.
	if err := remote.Set(ctx, "links", []byte(`remote`)); err != nil {
		t.Fatalf("remote set: %v", err)
	}
	local.scan(ctx)
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	change := got[0]["links"]
	if string(change.Old) != "local" || string(change.New) != "remote" {
		t.Fatalf("change = %+v", change)
	}
}

func TestScanReportsRemoteRemoval(t *testing.T) {
	client := newFakeClient()
	local := newWithClient(client, "bucket", time.Hour)
	remote := newWithClient(client, "bucket", time.Hour)
	t.Cleanup(func() { _ = local.Close() })
	t.Cleanup(func() { _ = remote.Close() })
	ctx := context.Background()

	if err := remote.Set(ctx, "links", []byte(`[1]`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	local.scan(ctx) // adopt the seed without a watcher registered

	var got []domain.ChangeSet
	cancel, _ := local.Watch(func(cs domain.ChangeSet) { got = append(got, cs) })
	defer cancel()

	if err := remote.Remove(ctx, "links"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	local.scan(ctx)
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if change := got[0]["links"]; change.New != nil || string(change.Old) != `[1]` {
		t.Fatalf("change = %+v", change)
	}
}

func TestScanPaginatesListings(t *testing.T) {
	client := newFakeClient()
	client.pageLen = 1
	local := newWithClient(client, "bucket", time.Hour)
	remote := newWithClient(client, "bucket", time.Hour)
	t.Cleanup(func() { _ = local.Close() })
	t.Cleanup(func() { _ = remote.Close() })
	ctx := context.Background()

	for _, key := range []string{"links", "collections", "workspaces"} {
		if err := remote.Set(ctx, key, []byte(`[]`)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	var got []domain.ChangeSet
	cancel, _ := local.Watch(func(cs domain.ChangeSet) { got = append(got, cs) })
	defer cancel()

	local.scan(ctx)
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if len(got[0]) != 3 {
		t.Fatalf("changed keys = %d, want 3", len(got[0]))
	}
}

func TestNewStoreRequiresBucket(t *testing.T) {
	if _, err := NewStore(context.Background(), Config{}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}
