package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Presigner is the subset of *s3.PresignClient the allocator needs.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Allocator issues presigned PUT URLs in a bucket. The URL carries its
// own credentials, so the slot's AccessKey is empty.
type S3Allocator struct {
	presigner  Presigner
	bucketName string
	cdnBaseURL string
	expires    time.Duration
	now        func() time.Time
}

var _ Allocator = (*S3Allocator)(nil)

// NewS3Allocator serves thumbnails from cdnBaseURL when set, otherwise from
// the bucket's virtual-hosted URL in region.
func NewS3Allocator(client *s3.Client, bucketName, region, cdnBaseURL string) (*S3Allocator, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3 bucket name cannot be empty")
	}
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucketName, region)
	}
	return &S3Allocator{
		presigner:  s3.NewPresignClient(client),
		bucketName: bucketName,
		cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"),
		expires:    15 * time.Minute,
		now:        time.Now,
	}, nil
}

func (a *S3Allocator) AllocateThumbnail(ctx context.Context, assetID string) (*Slot, error) {
	if assetID == "" {
		return nil, fmt.Errorf("asset id is required")
	}

	key := "thumbnails/" + SlotName(a.now(), assetID)
	req, err := a.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.expires))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &Slot{
		UploadURL: req.URL,
		CDNURL:    a.cdnBaseURL + "/" + key,
	}, nil
}
