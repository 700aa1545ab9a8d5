package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectImage(t *testing.T) {
	ct, ext, err := DetectImage(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, ".png", ext)

	_, _, err = DetectImage([]byte("hello, not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNewKey(t *testing.T) {
	key := NewKey(12, ".png")
	assert.True(t, strings.HasPrefix(key, "avatars/12/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.NotEqual(t, key, NewKey(12, ".png"))
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "/etc/passwd", "../x.png", "a/../../b", "a\\b", "a//b", "."} {
		_, err := cleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
	got, err := cleanKey("avatars/1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/1/a.png", got)
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "avatars/3/pic.png", "image/png", pngHeader))
	data, err := os.ReadFile(filepath.Join(dir, "avatars", "3", "pic.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	url, err := store.URL(ctx, "avatars/3/pic.png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/avatars/3/pic.png", url)

	require.NoError(t, store.Delete(ctx, "avatars/3/pic.png"))
	require.NoError(t, store.Delete(ctx, "avatars/3/pic.png"))
	assert.ErrorIs(t, store.Put(ctx, "../escape.png", "image/png", pngHeader), ErrInvalidKey)
}

type fakeObjects struct {
	put    *s3.PutObjectInput
	del    *s3.DeleteObjectInput
	putErr error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.del = in
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key) + "?sig=1"}, nil
}

func TestS3Store(t *testing.T) {
	objects := &fakeObjects{}
	presigner := &fakePresigner{}
	store := &S3Store{bucket: "pics", ttl: 5 * time.Minute, api: objects, presigner: presigner}
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "avatars/1/a.png", "image/png", pngHeader))
	assert.Equal(t, "pics", aws.ToString(objects.put.Bucket))
	assert.Equal(t, "image/png", aws.ToString(objects.put.ContentType))
	assert.Equal(t, int64(len(pngHeader)), aws.ToInt64(objects.put.ContentLength))

	url, err := store.URL(ctx, "avatars/1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/pics/avatars/1/a.png?sig=1", url)
	assert.Equal(t, 5*time.Minute, presigner.expires)

	require.NoError(t, store.Delete(ctx, "avatars/1/a.png"))
	assert.Equal(t, "avatars/1/a.png", aws.ToString(objects.del.Key))

	objects.putErr = errors.New("boom")
	assert.Error(t, store.Put(ctx, "avatars/1/b.png", "image/png", pngHeader))
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		assert.NotNil(t, lo.Credentials, "static credentials expected")
		return aws.Config{Region: lo.Region}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.NewFromConfig(cfg, optFns...)
	}

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:    "pics",
		Region:    "eu-west-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, store.ttl)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Store(context.Background(), S3Config{Bucket: "pics", Region: "eu-west-1"})
	assert.Error(t, err)
}
