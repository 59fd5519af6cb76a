package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	PutObjectFunc    func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	DeleteObjectFunc func(ctx context.Context, params *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params)
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return m.DeleteObjectFunc(ctx, params)
}

func newTestStore(client putObjectAPI) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        "yoked-media",
		publicBaseURL: "https://cdn.example.com",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestS3Store_Put(t *testing.T) {
	var got *s3.PutObjectInput
	store := newTestStore(&mockS3{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			got = params
			return &s3.PutObjectOutput{}, nil
		},
	})

	url, err := store.Put(context.Background(), "avatars/u1/a.png", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/avatars/u1/a.png", url)
	assert.Equal(t, "yoked-media", aws.ToString(got.Bucket))
	assert.Equal(t, "avatars/u1/a.png", aws.ToString(got.Key))
	assert.Equal(t, "image/png", aws.ToString(got.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(got.ContentLength))
}

func TestS3Store_Put_Error(t *testing.T) {
	store := newTestStore(&mockS3{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, errors.New("access denied")
		},
	})

	_, err := store.Put(context.Background(), "k", "image/png", strings.NewReader("x"), 1)
	assert.Error(t, err)
}

func TestS3Store_KeyFromURL(t *testing.T) {
	store := newTestStore(nil)

	assert.Equal(t, "avatars/u1/a.png", store.KeyFromURL("https://cdn.example.com/avatars/u1/a.png"))
	assert.Equal(t, "", store.KeyFromURL("https://gravatar.com/x.png"))
	assert.Equal(t, "", store.KeyFromURL(""))
}
