package scanflow

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
)

const (
	MaxImages    = fastkale.MaxScanImages
	MaxImageSize = 2 * 1024 * 1024
)

// Rejection explains why a candidate image was skipped.
type Rejection struct {
	Name   string
	Reason string
}

// SelectImages keeps the first MaxImages candidates that are images of at
// most MaxImageSize bytes. Anything after the fifth valid image is dropped
// without a rejection.
func SelectImages(files []fastkale.ImageFile) ([]fastkale.ImageFile, []Rejection) {
	var valid []fastkale.ImageFile
	var rejected []Rejection
	for _, f := range files {
		if len(valid) >= MaxImages {
			break
		}
		if !strings.HasPrefix(f.MimeType, "image/") {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: "not an image"})
			continue
		}
		if len(f.Data) > MaxImageSize {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: "larger than 2MB"})
			continue
		}
		valid = append(valid, f)
	}
	return valid, rejected
}

// LoadImageFiles reads candidate images from disk. The mime type is
// sniffed from the content, so a misnamed file is still rejected by
// SelectImages.
func LoadImageFiles(paths []string) ([]fastkale.ImageFile, error) {
	files := make([]fastkale.ImageFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
		files = append(files, fastkale.ImageFile{
			Name:     filepath.Base(p),
			MimeType: mt,
			Data:     data,
		})
	}
	return files, nil
}
