package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// MaxDownloadSize caps uploads; Telegram bots cannot fetch files above 20 MB.
const MaxDownloadSize = 20 << 20

type Downloader struct {
	client *resty.Client
	limit  int
}

func NewDownloader() *Downloader {
	return newDownloader(MaxDownloadSize)
}

func newDownloader(limit int) *Downloader {
	return &Downloader{
		client: resty.New().SetTimeout(60 * time.Second).SetResponseBodyLimit(limit),
		limit:  limit,
	}
}

// Download fetches url and returns the body. Reading stops once the body
// exceeds the size limit.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.client.R().SetContext(ctx).Get(url)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("file is larger than %d bytes", d.limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
