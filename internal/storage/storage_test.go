package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneAllocator(t *testing.T) {
	z := NewZoneAllocator("https://storage.bunnycdn.com/zone/", "https://pull.b-cdn.net", "storage-key")
	z.now = func() time.Time { return time.UnixMilli(1700000000123) }

	slot, err := z.AllocateThumbnail(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, slot.Complete())
	assert.Equal(t, "https://storage.bunnycdn.com/zone/thumbnails/1700000000123-abc-thumbnail", slot.UploadURL)
	assert.Equal(t, "https://pull.b-cdn.net/thumbnails/1700000000123-abc-thumbnail", slot.CDNURL)
	assert.Equal(t, "storage-key", slot.AccessKey)
}

func TestZoneAllocatorNamesDifferPerAsset(t *testing.T) {
	z := NewZoneAllocator("https://s", "https://c", "k")
	fixed := time.UnixMilli(1)
	z.now = func() time.Time { return fixed }

	a, err := z.AllocateThumbnail(context.Background(), "asset-a")
	require.NoError(t, err)
	b, err := z.AllocateThumbnail(context.Background(), "asset-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.UploadURL, b.UploadURL)

	_, err = z.AllocateThumbnail(context.Background(), "")
	assert.Error(t, err)
}

type fakePresigner struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{
		URL:    "https://thumbs.s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=sig",
		Method: "PUT",
	}, nil
}

func TestS3Allocator(t *testing.T) {
	p := &fakePresigner{}
	a := &S3Allocator{
		presigner:  p,
		bucketName: "thumbs",
		cdnBaseURL: "https://cdn.example",
		expires:    time.Minute,
		now:        func() time.Time { return time.UnixMilli(5) },
	}

	slot, err := a.AllocateThumbnail(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, slot.Complete())
	assert.Empty(t, slot.AccessKey)
	assert.Equal(t, "thumbs", aws.ToString(p.input.Bucket))
	assert.Equal(t, "thumbnails/5-abc-thumbnail", aws.ToString(p.input.Key))
	assert.Equal(t, "https://cdn.example/thumbnails/5-abc-thumbnail", slot.CDNURL)
	assert.Contains(t, slot.UploadURL, "X-Amz-Signature")
}

func TestS3AllocatorPresignFailure(t *testing.T) {
	a := &S3Allocator{presigner: &fakePresigner{err: errors.New("no credentials")}, bucketName: "b", now: time.Now}

	_, err := a.AllocateThumbnail(context.Background(), "abc")
	assert.ErrorContains(t, err, "no credentials")
}

func TestNewS3AllocatorDefaults(t *testing.T) {
	client := s3.New(s3.Options{Region: "us-west-1"})

	_, err := NewS3Allocator(client, "", "us-west-1", "")
	assert.Error(t, err)

	a, err := NewS3Allocator(client, "thumbs", "us-west-1", "")
	require.NoError(t, err)
	assert.Equal(t, "https://thumbs.s3.us-west-1.amazonaws.com", a.cdnBaseURL)
}
