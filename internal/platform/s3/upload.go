package s3

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/imamik/autoinstall/internal/util/retry"
)

const transcriptContentType = "text/plain; charset=utf-8"

// UploadTranscript copies the transcript at path to bucket under key.
// Transient failures are retried; a missing bucket or rejected credentials
// fail immediately.
func (c *Client) UploadTranscript(ctx context.Context, bucket, key, path string, opts ...retry.Option) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	opts = append([]retry.Option{
		retry.WithMaxRetries(3),
		retry.WithInitialDelay(2 * time.Second),
		retry.WithMaxDelay(15 * time.Second),
	}, opts...)

	return retry.WithExponentialBackoff(ctx, func() error {
		err := c.PutObject(ctx, bucket, key, transcriptContentType, data)
		if isNotFoundError(err) || isAccessDenied(err) {
			return retry.Fatal(err)
		}
		return err
	}, opts...)
}
