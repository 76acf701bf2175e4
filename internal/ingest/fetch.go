package ingest

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// Fetcher downloads source archives into a local directory for LoadDir.
type Fetcher struct {
	client *http.Client
	outDir string
}

func NewFetcher(outDir string) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 60 * time.Second},
		outDir: outDir,
	}
}

// FetchHTTP downloads one file over HTTP with exponential backoff. Rate
// limiting retries; any other non-200 status is permanent.
func (f *Fetcher) FetchHTTP(url string) (string, error) {
	var body []byte
	operation := func() error {
		resp, err := f.client.Get(url)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d", url, resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return "", err
	}

	return f.write(path.Base(url), body)
}

// FetchFTP retrieves every file matching the suffix from an FTP directory,
// e.g. the CRU anonymous archive.
func (f *Fetcher) FetchFTP(host, dir, suffix string) ([]string, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", host, err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	entries, err := conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", dir, err)
	}

	var written []string
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile || !strings.HasSuffix(e.Name, suffix) {
			continue
		}
		resp, err := conn.Retr(path.Join(dir, e.Name))
		if err != nil {
			log.Printf("ftp retr %s: %v", e.Name, err)
			continue
		}
		body, err := io.ReadAll(resp)
		resp.Close()
		if err != nil {
			log.Printf("ftp read %s: %v", e.Name, err)
			continue
		}
		p, err := f.write(e.Name, body)
		if err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if len(written) == 0 {
		return nil, fmt.Errorf("no files matching *%s under %s on %s", suffix, dir, host)
	}
	return written, nil
}

func (f *Fetcher) write(name string, body []byte) (string, error) {
	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(f.outDir, name)
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}
