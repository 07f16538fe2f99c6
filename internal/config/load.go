package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	maxSystemBytes = 2 << 20
	fetchTimeout   = 10 * time.Second
)

// LoadSystem resolves the system setting into prompt text. The source is
// taken verbatim unless it is an http(s) URL, which is fetched, or a
// file:// path, which is read. Markdown prompt files may open with YAML
// front matter; it is dropped.
func LoadSystem(ctx context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return fetchSystem(ctx, source)
	case strings.HasPrefix(source, "file://"):
		return readSystemFile(strings.TrimPrefix(source, "file://"))
	default:
		return source, nil
	}
}

func fetchSystem(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch system prompt: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch system prompt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSystemBytes+1))
	if err != nil {
		return "", fmt.Errorf("fetch system prompt %s: %w", url, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("fetch system prompt %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body[:min(len(body), 512)])))
	}
	if len(body) > maxSystemBytes {
		return "", fmt.Errorf("fetch system prompt %s: larger than %d bytes", url, maxSystemBytes)
	}
	return string(body), nil
}

func readSystemFile(path string) (string, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return string(bts), nil
	}
	return cutFrontMatter(string(bts))
}

// cutFrontMatter drops a leading "---" delimited YAML block. The block must
// parse and must be closed.
func cutFrontMatter(doc string) (string, error) {
	first, rest, ok := strings.Cut(doc, "\n")
	if !ok || strings.TrimSpace(first) != "---" {
		return doc, nil
	}

	var meta strings.Builder
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == "---" {
			var v map[string]any
			if err := yaml.Unmarshal([]byte(meta.String()), &v); err != nil {
				return "", fmt.Errorf("system prompt front matter: %w", err)
			}
			return strings.TrimLeft(tail, "\r\n"), nil
		}
		meta.WriteString(line)
		meta.WriteByte('\n')
		rest = tail
	}
	return "", errors.New("system prompt front matter: no closing ---")
}
