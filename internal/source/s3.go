package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// GetObjectAPI is the subset of the S3 client used by S3Fetcher.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectRef identifies an S3 object.
type ObjectRef struct {
	Bucket string
	Key    string
	Size   int64
}

func (r ObjectRef) String() string { return "s3://" + r.Bucket + "/" + r.Key }

// digestDir is the key segment CloudTrail writes integrity digest files under.
// Digests share the trail bucket but carry no Records.
const digestDir = "CloudTrail-Digest"

// ObjectsFromEvent lists the objects referenced by an S3 notification. Keys
// arrive form-encoded and are unescaped here. Digest files are skipped.
func ObjectsFromEvent(event events.S3Event) ([]ObjectRef, error) {
	refs := make([]ObjectRef, 0, len(event.Records))
	for _, rec := range event.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("unescape object key %q: %w", rec.S3.Object.Key, err)
		}
		if IsDigestKey(key) {
			continue
		}
		refs = append(refs, ObjectRef{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
			Size:   rec.S3.Object.Size,
		})
	}
	return refs, nil
}

// IsDigestKey reports whether key is a CloudTrail digest file.
func IsDigestKey(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if segment == digestDir {
			return true
		}
	}
	return false
}

// ParseS3URI splits "s3://bucket/path/to/key" into an ObjectRef.
func ParseS3URI(uri string) (ObjectRef, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("parse S3 path %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return ObjectRef{}, fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, uri)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("empty bucket or key in S3 path %q", uri)
	}
	return ObjectRef{Bucket: u.Host, Key: key}, nil
}

// IsS3URI reports whether s looks like an s3:// URI.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// S3Fetcher downloads batch objects.
type S3Fetcher struct {
	client GetObjectAPI
	// MaxBytes caps the object size. Zero means unlimited.
	MaxBytes int64
}

// NewS3Fetcher creates a fetcher on client.
func NewS3Fetcher(client GetObjectAPI, maxBytes int64) *S3Fetcher {
	return &S3Fetcher{client: client, MaxBytes: maxBytes}
}

// Fetch returns the raw object body.
func (f *S3Fetcher) Fetch(ctx context.Context, ref ObjectRef) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", ref, err)
	}
	defer out.Body.Close()

	var r io.Reader = out.Body
	if f.MaxBytes > 0 {
		r = io.LimitReader(out.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", ref, err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("object %s exceeds %d bytes", ref, f.MaxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("object %s: %w", ref, ErrEmptyPayload)
	}
	return data, nil
}
