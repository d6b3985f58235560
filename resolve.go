package iconmaker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxFetchBytes    = 10 << 20
	defaultFetchConcurrency = 4
	defaultUserAgent        = "iconmaker/1.0"
)

// Resolver turns references into local, decodable source images.
type Resolver struct {
	Client      *http.Client
	UserAgent   string
	MaxBytes    int64
	Concurrency int
	Logger      *slog.Logger
}

// NewResolver returns a Resolver whose fetches time out after timeout.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{
		Client:      &http.Client{Timeout: timeout},
		UserAgent:   defaultUserAgent,
		MaxBytes:    defaultMaxFetchBytes,
		Concurrency: defaultFetchConcurrency,
	}
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve resolves refs in order. Remote references that cannot be fetched or
// decoded, and local files that are not supported images, are dropped with a
// notice. A local path that does not exist or cannot be read aborts the batch.
// Fetched files are written to scratch.
func (r *Resolver) Resolve(ctx context.Context, refs []string, scratch string) ([]Image, []Notice, error) {
	for _, ref := range refs {
		if IsRemote(ref) {
			continue
		}
		if err := checkReadable(ref); err != nil {
			return nil, nil, err
		}
	}

	paths := make([]string, len(refs))
	failures := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Concurrency, 1))
	for i, ref := range refs {
		if !IsRemote(ref) {
			paths[i] = ref
			continue
		}
		i, ref := i, ref
		g.Go(func() error {
			paths[i], failures[i] = r.fetch(gctx, ref, scratch, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, Wrap(KindFetch, "resolve", "cancelled", err)
	}

	var (
		images  []Image
		notices []Notice
	)
	for i, ref := range refs {
		if failures[i] != nil {
			notices = append(notices, Notice{Ref: ref, Stage: StateResolving, Err: failures[i]})
			continue
		}
		img, err := inspect(ref, paths[i])
		if err != nil {
			notices = append(notices, Notice{Ref: ref, Stage: StateResolving, Err: err})
			continue
		}
		images = append(images, img)
	}
	return images, notices, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return Wrap(KindImage, "resolve", fmt.Sprintf("local image %s", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Wrap(KindImage, "resolve", fmt.Sprintf("local image %s", path), err)
	}
	if info.IsDir() {
		return New(KindImage, "resolve", fmt.Sprintf("local image %s is a directory", path))
	}
	return nil
}

func (r *Resolver) fetch(ctx context.Context, ref, scratch string, i int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", Wrap(KindFetch, "fetch", "build request", err)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", Wrap(KindFetch, "fetch", "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", New(KindFetch, "fetch", fmt.Sprintf("unexpected status %s", resp.Status))
	}

	limit := r.MaxBytes
	if limit <= 0 {
		limit = defaultMaxFetchBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", Wrap(KindFetch, "fetch", "read body", err)
	}
	if int64(len(data)) > limit {
		return "", New(KindFetch, "fetch", fmt.Sprintf("body exceeds %d bytes", limit))
	}

	mt := mimetype.Detect(data)
	if !mt.Is("image/png") && !mt.Is("image/gif") {
		return "", New(KindImage, "fetch", fmt.Sprintf("unsupported content type %s", mt.String()))
	}

	path := filepath.Join(scratch, fmt.Sprintf("fetch-%03d%s", i, mt.Extension()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", Wrap(KindFetch, "fetch", "write scratch file", err)
	}
	if r.Logger != nil {
		r.Logger.Debug("fetched image", "ref", ref, "bytes", len(data), "type", mt.String())
	}
	return path, nil
}
