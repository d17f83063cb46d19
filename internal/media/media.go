// Package media resolves campaign media URIs to bytes and decoded images.
// Supported schemes are file://, http:// and https://; anything without a
// scheme is treated as a local path.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	// registered image decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxSize bounds a single fetched object.
const DefaultMaxSize = 256 << 20

// Fetcher loads media by URI.
type Fetcher struct {
	httpClient *http.Client
	maxSize    int64
}

// NewFetcher creates a fetcher with the given HTTP timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxSize:    DefaultMaxSize,
	}
}

// Fetch returns the object's bytes.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid uri: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, uri)
	case "file":
		return f.readFile(ctx, u.Path)
	case "":
		return f.readFile(ctx, uri)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// Open returns a reader over the object. Local files are streamed.
func (f *Fetcher) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err == nil && (u.Scheme == "file" || u.Scheme == "") {
		p := uri
		if u.Scheme == "file" {
			p = u.Path
		}
		return os.Open(p)
	}
	data, err := f.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// LocalPath returns the filesystem path for file:// and bare URIs.
func LocalPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "file":
		return u.Path, true
	case "":
		return uri, true
	}
	return "", false
}

func (f *Fetcher) readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() > f.maxSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, f.maxSize)
	}
	return os.ReadFile(path)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("response larger than %d bytes", f.maxSize)
	}
	return data, nil
}

// DecodeImage decodes any registered image format and reports its name.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// LoadImage fetches and decodes an image.
func (f *Fetcher) LoadImage(ctx context.Context, uri string) (image.Image, error) {
	data, err := f.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	img, _, err := DecodeImage(data)
	return img, err
}

// ContentType sniffs the MIME type of data.
func ContentType(data []byte) string {
	return http.DetectContentType(data)
}
