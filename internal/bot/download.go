package bot

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDownloadTimeout is the default timeout for image downloads
	DefaultDownloadTimeout = 30 * time.Second
	// DefaultMaxDownloadSize is the hard limit of a single download (10MB).
	// The scan wizard applies its own, smaller limit afterwards.
	DefaultMaxDownloadSize = 10 * 1024 * 1024
)

// DownloadedFile is a downloaded Telegram file with its detected mime type.
type DownloadedFile struct {
	Data     []byte
	MimeType string
}

// ImageDownloader downloads photos from Telegram's file server.
type ImageDownloader struct {
	client  *resty.Client
	maxSize int64
}

// NewImageDownloader creates a new ImageDownloader with default settings.
func NewImageDownloader() *ImageDownloader {
	return &ImageDownloader{
		client:  resty.New().SetTimeout(DefaultDownloadTimeout),
		maxSize: DefaultMaxDownloadSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (d *ImageDownloader) WithTimeout(timeout time.Duration) *ImageDownloader {
	d.client.SetTimeout(timeout)
	return d
}

// WithMaxSize sets a custom maximum file size.
func (d *ImageDownloader) WithMaxSize(maxSize int64) *ImageDownloader {
	d.maxSize = maxSize
	return d
}

// DownloadFromURL downloads a file. It respects context cancellation and
// enforces the size limit even when Content-Length is missing.
func (d *ImageDownloader) DownloadFromURL(ctx context.Context, fileURL string) (*DownloadedFile, error) {
	res, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	if cl := res.RawResponse.ContentLength; cl > d.maxSize {
		return nil, fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes", cl, d.maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, fmt.Errorf("file too large: exceeds limit of %d bytes", d.maxSize)
	}

	return &DownloadedFile{
		Data:     data,
		MimeType: detectMimeType(res.Header().Get("Content-Type"), data),
	}, nil
}

// DownloadFromTelegramFileID downloads a file from Telegram using a file ID.
// It uses the provided function to resolve the file ID to a direct URL.
func (d *ImageDownloader) DownloadFromTelegramFileID(
	ctx context.Context,
	getFileDirectURL func(fileID string) (string, error),
	fileID string,
) (*DownloadedFile, error) {
	log.Info().Str("fileID", fileID).Msg("downloading telegram file")

	url, err := getFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file URL: %w", err)
	}

	return d.DownloadFromURL(ctx, url)
}

// detectMimeType prefers an image type from the response header. Telegram
// often serves photos as application/octet-stream, so anything else is
// sniffed from the content.
func detectMimeType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
