package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"textcast/internal/errs"
	"textcast/internal/models"
)

const (
	urlFetchTimeout = 30 * time.Second
	maxRedirects    = 5
	userAgent       = "textcast/1.0"
)

var allowedContentTypes = map[string]bool{
	"text/html":     true,
	"text/plain":    true,
	"text/markdown": true,
}

// URL fetches a document over HTTP with a bounded timeout, size cap and
// content-type allow-list. HTML goes through readability extraction.
func (ig *Ingestor) URL(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Result{}, errs.E(errs.KindFetchFailed, "invalid URL %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindFetchFailed, err, "could not build request for %q", rawURL)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, errs.E(errs.KindTimeout, "fetching %q timed out after %s", rawURL, urlFetchTimeout)
		}
		return Result{}, errs.Wrap(errs.KindFetchFailed, err, "could not fetch %q", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, errs.E(errs.KindFetchFailed, "fetching %q returned status %d", rawURL, resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if !allowedContentTypes[mediaType] {
		return Result{}, errs.E(errs.KindUnsupportedType, "unsupported content type %q", mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, errs.E(errs.KindTimeout, "fetching %q timed out after %s", rawURL, urlFetchTimeout)
		}
		return Result{}, errs.Wrap(errs.KindFetchFailed, err, "could not read body of %q", rawURL)
	}
	if len(body) > MaxContentBytes {
		return Result{}, errs.E(errs.KindTooLarge, "document at %q exceeds %d bytes", rawURL, MaxContentBytes)
	}

	raw := strings.ToValidUTF8(string(body), "�")
	title := ""

	if mediaType == "text/html" {
		// Readability runs at ingest time so the stored raw text is prose;
		// the user's cleaning options apply on top of it later.
		extractedTitle, body := ig.norm.ExtractArticle(raw)
		if strings.TrimSpace(body) == "" {
			return Result{}, errs.E(errs.KindFetchFailed, "could not extract readable text from %q", rawURL)
		}
		title = extractedTitle
		raw = body
	}

	if strings.TrimSpace(raw) == "" {
		return Result{}, errs.E(errs.KindEmptyContent, "document at %q contains no text", rawURL)
	}

	if title == "" {
		title = DeriveTitle(raw, titleFromURL(parsed))
	}

	ig.log.Info("ingested url", zap.String("url", rawURL), zap.Int("bytes", len(raw)))
	u := rawURL
	return Result{
		Title:       title,
		RawText:     raw,
		SourceType:  models.SourceTypeURL,
		OriginalURL: &u,
	}, nil
}

func titleFromURL(u *url.URL) string {
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return u.Host
	}
	last := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		last = path[i+1:]
	}
	last = strings.NewReplacer("-", " ", "_", " ").Replace(last)
	return cleanTitle(truncate(last, 80))
}
