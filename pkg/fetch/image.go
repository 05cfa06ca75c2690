package fetch

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/utils"
)

// ImageFetcher downloads map source images into a job working directory
// and probes their pixel dimensions for zoom planning.
type ImageFetcher struct {
	fetcher HTTPFetcher
	log     *logrus.Logger
}

// NewImageFetcher creates a new ImageFetcher instance
func NewImageFetcher(fetcher HTTPFetcher, log *logrus.Logger) *ImageFetcher {
	return &ImageFetcher{
		fetcher: fetcher,
		log:     log,
	}
}

// Download fetches imageURL and writes the body into dir, creating dir if
// needed. Returns the stored filename (relative to dir). Network and HTTP
// failures wrap utils.ErrFetch; local write failures wrap utils.ErrFilesystem.
func (f *ImageFetcher) Download(ctx context.Context, imageURL, dir string) (string, error) {
	dlLog := f.log.WithFields(logrus.Fields{"image_url": imageURL, "dir": dir})

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating request for '%s': %w", utils.ErrRequestCreation, imageURL, err)
	}

	resp, err := f.fetcher.FetchWithRetry(req, ctx)
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return "", fmt.Errorf("%w: downloading '%s': %w", utils.ErrFetch, imageURL, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating working dir '%s': %w", utils.ErrFilesystem, dir, err)
	}

	name := filenameFromURL(imageURL)
	dest := filepath.Join(dir, name)

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("%w: creating '%s': %w", utils.ErrFilesystem, dest, err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, dest, err)
	}

	dlLog.WithFields(logrus.Fields{"file": name, "bytes": written}).Info("Source image downloaded")
	return name, nil
}

// ProbeDimensions reads just enough of the image at path to report its pixel
// width and height. Undecodable images wrap utils.ErrImageProcessing, which
// is permanent: re-fetching the same bytes cannot fix a corrupt source.
func ProbeDimensions(path string) (width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: opening '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: decoding '%s': %w", utils.ErrImageProcessing, path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: '%s' (%s) has degenerate dimensions %dx%d",
			utils.ErrImageProcessing, path, format, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// filenameFromURL derives a safe local filename from the URL path,
// falling back to "source" when the path carries no usable base name.
func filenameFromURL(rawURL string) string {
	name := "source"
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			name = base
		}
	}
	if sanitized := utils.SanitizeFilename(name); sanitized != "" {
		name = sanitized
	}
	return name
}
