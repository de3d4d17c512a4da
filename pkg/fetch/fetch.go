// Package fetch opens model and texture resources by URL. Plain paths,
// file:// URLs and http(s):// URLs are supported.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a resource does not exist.
var ErrNotFound = errors.New("fetch: not found")

// Progress reports bytes read so far. Total is -1 when the size is unknown.
type Progress struct {
	URL    string
	Loaded int64
	Total  int64
}

// Fraction returns Loaded/Total, or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Loaded) / float64(p.Total)
}

// Fetcher resolves and reads URLs.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// New returns a Fetcher using client, or http.DefaultClient when nil.
func New(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Default is the Fetcher used when none is supplied.
var Default = New(nil, nil)

// Open returns a reader for rawURL and its size in bytes (-1 if unknown).
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	if isHTTP(rawURL) {
		return f.openHTTP(ctx, rawURL)
	}
	name, err := localPath(rawURL)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", rawURL, err)
	}
	size := int64(-1)
	if st, err := file.Stat(); err == nil {
		size = st.Size()
	}
	return file, size, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}
	f.logger.Debug("fetch", "url", rawURL, "size", resp.ContentLength)
	return resp.Body, resp.ContentLength, nil
}

// Get reads the whole resource, reporting progress after every read when
// onProgress is set.
func (f *Fetcher) Get(ctx context.Context, rawURL string, onProgress func(Progress)) ([]byte, error) {
	rc, size, err := f.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if onProgress != nil {
		r = &progressReader{r: rc, p: Progress{URL: rawURL, Total: size}, fn: onProgress}
	}
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return buf.Bytes(), nil
}

type progressReader struct {
	r  io.Reader
	p  Progress
	fn func(Progress)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.p.Loaded += int64(n)
		pr.fn(pr.p)
	}
	return n, err
}

// Resolve interprets ref relative to base, the way a browser resolves a
// relative link inside a document loaded from base.
func Resolve(base, ref string) string {
	if ref == "" || base == "" || isAbs(ref) {
		return ref
	}
	if isHTTP(base) || strings.HasPrefix(base, "file://") {
		b, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref))
}

// Dir returns the directory part of rawURL, keeping its scheme.
func Dir(rawURL string) string {
	if isHTTP(rawURL) || strings.HasPrefix(rawURL, "file://") {
		if u, err := url.Parse(rawURL); err == nil {
			u.Path = path.Dir(u.Path) + "/"
			u.RawQuery, u.Fragment = "", ""
			return u.String()
		}
	}
	return filepath.Dir(rawURL)
}

// Ext returns the lower-case extension of the URL path, without query.
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// FS exposes the resources next to base as an fs.FS, so decoders that load
// side files (buffers, textures) by relative name can read them over any
// transport.
func (f *Fetcher) FS(ctx context.Context, base string) fs.FS {
	return &urlFS{ctx: ctx, f: f, base: base}
}

type urlFS struct {
	ctx  context.Context
	f    *Fetcher
	base string
}

func (u *urlFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	target := Resolve(u.base, name)
	data, err := u.f.Get(u.ctx, target, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = fs.ErrNotExist
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memFile{Reader: bytes.NewReader(data), name: path.Base(name)}, nil
}

type memFile struct {
	*bytes.Reader
	name string
}

func (m *memFile) Stat() (fs.FileInfo, error) { return memInfo{m}, nil }
func (m *memFile) Close() error               { return nil }

type memInfo struct{ f *memFile }

func (i memInfo) Name() string       { return i.f.name }
func (i memInfo) Size() int64        { return i.f.Size() }
func (i memInfo) Mode() fs.FileMode  { return 0o444 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isAbs(s string) bool {
	return isHTTP(s) || strings.HasPrefix(s, "file://") || strings.HasPrefix(s, "data:") || filepath.IsAbs(s)
}

func localPath(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "file://") {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return filepath.FromSlash(u.Path), nil
}
