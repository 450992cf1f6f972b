// Package static keeps the static GTFS feed behind the line topology fresh.
package static

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// ManifestName is written next to the downloaded feed.
const ManifestName = "manifest.json"

// Manifest records when and from where the feed was downloaded.
type Manifest struct {
	GeneratedAt string `json:"generated_at"`
	Source      string `json:"source"`
	Checksum    string `json:"checksum"`
	Size        int64  `json:"size"`
}

// Refresher downloads a GTFS zip into Dir when the local copy is missing
// or older than MaxAge.
type Refresher struct {
	URL    string
	Dir    string
	MaxAge time.Duration
	Client *http.Client
	Log    *logrus.Entry
	now    func() time.Time
}

// NewRefresher creates a refresher with a 5 minute download timeout.
func NewRefresher(url, dir string, maxAge time.Duration, log *logrus.Entry) *Refresher {
	return &Refresher{
		URL:    url,
		Dir:    dir,
		MaxAge: maxAge,
		Client: &http.Client{Timeout: 5 * time.Minute},
		Log:    log,
		now:    time.Now,
	}
}

// ZipPath is where the feed is stored.
func (r *Refresher) ZipPath() string {
	return filepath.Join(r.Dir, "feed.zip")
}

// RefreshIfStale downloads the feed when needed. It reports whether a new
// copy was written; an unchanged download does not count.
func (r *Refresher) RefreshIfStale(ctx context.Context) (bool, error) {
	manifestPath := filepath.Join(r.Dir, ManifestName)
	prev, fresh := r.check(manifestPath)
	if fresh {
		r.Log.WithField("generated_at", prev.GeneratedAt).Info("static feed is fresh, skipping refresh")
		return false, nil
	}

	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create feed directory: %w", err)
	}

	tmp := r.ZipPath() + ".tmp"
	sum, size, err := r.download(ctx, tmp)
	if err != nil {
		os.Remove(tmp)
		return false, err
	}

	changed := sum != prev.Checksum
	if changed {
		if err := os.Rename(tmp, r.ZipPath()); err != nil {
			return false, fmt.Errorf("failed to replace feed: %w", err)
		}
	} else {
		os.Remove(tmp)
	}

	manifest := Manifest{
		GeneratedAt: r.now().UTC().Format(time.RFC3339),
		Source:      r.URL,
		Checksum:    sum,
		Size:        size,
	}
	if err := writeJSON(manifestPath, manifest); err != nil {
		return false, err
	}

	r.Log.WithFields(logrus.Fields{"bytes": size, "changed": changed}).Info("static feed downloaded")
	return changed, nil
}

// check reads the manifest; fresh is false when it is missing, unreadable
// or older than MaxAge.
func (r *Refresher) check(manifestPath string) (Manifest, bool) {
	var m Manifest
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return m, false
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, false
	}
	generatedAt, err := time.Parse(time.RFC3339, m.GeneratedAt)
	if err != nil {
		return m, false
	}
	if _, err := os.Stat(r.ZipPath()); err != nil {
		return Manifest{}, false
	}
	return m, r.now().Sub(generatedAt) <= r.MaxAge
}

func (r *Refresher) download(ctx context.Context, dest string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("failed to download feed: unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write feed: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to write feed: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
