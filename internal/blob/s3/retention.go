package s3blob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// archivePrefix is the key space the pruner is allowed to touch. Nothing
// outside it is ever deleted.
const archivePrefix = "archive/"

// Pruner deletes archive objects older than the retention window.
type Pruner struct {
	client    *s3.Client
	bucket    string
	retention time.Duration
	logger    *slog.Logger
}

// NewPruner creates a Pruner for the client's configured bucket.
func NewPruner(c *Client, retention time.Duration, logger *slog.Logger) *Pruner {
	return &Pruner{
		client:    c.S3(),
		bucket:    c.Bucket(),
		retention: retention,
		logger:    logger.With(slog.String("component", "archive_pruner")),
	}
}

// Prune removes every archive object whose last modification is older than
// the retention window and returns the number of deletions. Pagination is
// followed transparently; a failed delete is logged and skipped so one bad
// key cannot stall the sweep.
func (p *Pruner) Prune(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-p.retention)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(archivePrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("s3blob: prune list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			key := aws.ToString(obj.Key)
			_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				p.logger.WarnContext(ctx, "prune delete failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
