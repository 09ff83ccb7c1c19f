package s3blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

const (
	// multipartThreshold is the body size above which uploads are split.
	// S3 rejects parts smaller than 5 MiB.
	multipartThreshold = 5 * 1024 * 1024

	// maxObjectSize caps what GetObject will buffer.
	maxObjectSize = 64 * 1024 * 1024

	checksumMetaKey = "sha256"
)

// Objects implements domain.ObjectStore on the client's bucket. Every object
// carries a sha256 metadata entry that GetObject verifies.
type Objects struct {
	c        *Client
	uploader *manager.Uploader
}

var _ domain.ObjectStore = (*Objects)(nil)

// NewObjects creates an Objects store for c.
func NewObjects(c *Client) *Objects {
	return &Objects{
		c: c,
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = multipartThreshold
		}),
	}
}

// PutObject uploads body under key, as a multipart upload when it exceeds
// multipartThreshold.
func (o *Objects) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(o.c.bucket),
		Key:         aws.String(o.c.key(key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{checksumMetaKey: digest(body)},
	}

	var err error
	if len(body) > multipartThreshold {
		_, err = o.uploader.Upload(ctx, in)
	} else {
		_, err = o.c.s3.PutObject(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// GetObject reads the object at key. A missing object yields
// domain.ErrNotFound.
func (o *Objects) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := o.c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.c.bucket),
		Key:    aws.String(o.c.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	if len(body) > maxObjectSize {
		return nil, fmt.Errorf("s3blob: get %s: object exceeds %d bytes", key, maxObjectSize)
	}
	if err := verifyChecksum(out.Metadata, body); err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	return body, nil
}

// ListObjects returns every object under prefix with the client prefix
// stripped from each key.
func (o *Objects) ListObjects(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var infos []domain.ObjectInfo
	pages := s3.NewListObjectsV2Paginator(o.c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.c.bucket),
		Prefix: aws.String(o.c.key(prefix)),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, domain.ObjectInfo{
				Key:          strings.TrimPrefix(aws.ToString(obj.Key), o.c.prefix),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// verifyChecksum compares body with the stored digest. Objects written by
// other tools carry none and pass.
func verifyChecksum(meta map[string]string, body []byte) error {
	want, ok := meta[checksumMetaKey]
	if !ok {
		return nil
	}
	if got := digest(body); !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch: stored %s, read %s", want, got)
	}
	return nil
}

// isNotFound matches NoSuchKey, NotFound and bare 404 responses from
// S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound
}
