package artifact

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdmflow/pkg/interfaces"
)

// fakeS3 in-memory bucket with a small page size to exercise pagination
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	deletes  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3Store_PutGetWithPrefix(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "bucket", "/pdm/")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "exp/run-1/model/model.json", []byte("model")))
	assert.Contains(t, fake.objects, "pdm/exp/run-1/model/model.json")

	data, err := s.Get(ctx, "exp/run-1/model/model.json")
	require.NoError(t, err)
	assert.Equal(t, "model", string(data))
}

func TestS3Store_GetMissing(t *testing.T) {
	s := newS3Store(newFakeS3(), "bucket", "")
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrArtifactNotFound)
}

func TestS3Store_DeletePrefixAcrossPages(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "bucket", "")
	ctx := context.Background()

	for _, key := range []string{"exp/run-1/a", "exp/run-1/b", "exp/run-1/c", "exp/run-1/d", "exp/run-1/e", "exp/run-2/a"} {
		require.NoError(t, s.Put(ctx, key, []byte(key)))
	}

	require.NoError(t, s.DeletePrefix(ctx, "exp/run-1/"))

	assert.Len(t, fake.objects, 1)
	assert.Contains(t, fake.objects, "exp/run-2/a")
	assert.Equal(t, 1, fake.deletes)
}

func TestS3Store_DeletePrefixNothingToDelete(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "bucket", "")

	require.NoError(t, s.DeletePrefix(context.Background(), "exp/none/"))
	assert.Equal(t, 0, fake.deletes)
}
