package files

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ScanResult summarizes a home scan.
type ScanResult struct {
	Folders int `json:"folders"`
	Files   int `json:"files"`
	Removed int `json:"removed"`
}

// Scanner indexes a user's files directory into the file cache.
type Scanner struct {
	cache   *Cache
	dataDir string
}

// NewScanner creates a scanner over dataDir, which holds one
// <uid>/files directory per user.
func NewScanner(cache *Cache, dataDir string) *Scanner {
	return &Scanner{cache: cache, dataDir: dataDir}
}

// UserDir returns the on-disk files directory of uid.
func (s *Scanner) UserDir(uid string) string {
	return filepath.Join(s.dataDir, uid, "files")
}

// Scan walks uid's files directory and upserts every entry into the user's
// home storage. Cache entries no longer present on disk are removed.
func (s *Scanner) Scan(uid string) (*ScanResult, error) {
	root := s.UserDir(uid)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading files directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	storage, _, err := s.cache.EnsureHome(uid)
	if err != nil {
		return nil, fmt.Errorf("preparing home for %s: %w", uid, err)
	}

	result := &ScanResult{}
	seen := map[string]bool{"": true}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		mime := DirectoryMimetype
		size := int64(0)
		if d.IsDir() {
			result.Folders++
		} else {
			if !d.Type().IsRegular() {
				return nil
			}
			detected, err := mimetype.DetectFile(p)
			if err != nil {
				return fmt.Errorf("detecting type of %s: %w", rel, err)
			}
			mime = baseMimetype(detected.String())
			size = fi.Size()
			result.Files++
		}

		if _, err := s.cache.Put(storage.NumericID, rel, mime, size, fi.ModTime().Unix()); err != nil {
			return err
		}
		seen[rel] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", uid, err)
	}

	known, err := s.cache.Paths(storage.NumericID)
	if err != nil {
		return nil, err
	}
	for p, id := range known {
		if seen[p] {
			continue
		}
		// A parent removed earlier in this loop already took the entry with it.
		if ok, err := s.cache.Exists(id); err != nil {
			return nil, err
		} else if !ok {
			continue
		}
		if err := s.cache.Remove(id); err != nil {
			return nil, err
		}
		result.Removed++
		slog.Debug("removed stale cache entry", "uid", uid, "path", p)
	}

	return result, nil
}

func baseMimetype(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.TrimSpace(m)
}
