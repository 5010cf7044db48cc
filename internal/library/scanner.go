// Package library reports installed titles by inspecting the download root.
// It is read-only and independent of the queue.
package library

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"steamfetch/internal/logging"
)

// Game is one installed title found under the download root.
type Game struct {
	Title      string    `json:"title"`
	AppID      int64     `json:"app_id,omitempty"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Scanner walks the download root on demand.
type Scanner struct {
	root   string
	logger *slog.Logger
	titler cases.Caser
}

func NewScanner(root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		root:   root,
		logger: logging.WithComponent(logger, "library"),
		titler: cases.Title(language.English),
	}
}

var appDirPattern = regexp.MustCompile(`^app_(\d+)$`)

// List returns installed titles sorted by name. A missing or empty root is
// not an error; it yields an empty list. Sizes are summed recursively per
// top-level title directory.
func (s *Scanner) List() ([]Game, error) {
	commonDir := filepath.Join(s.root, "steamapps", "common")
	entries, err := os.ReadDir(commonDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Game{}, nil
		}
		return nil, err
	}

	games := make([]Game, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(commonDir, entry.Name())
		size, modified, err := directorySize(path)
		if err != nil {
			s.logger.Warn("size scan failed",
				logging.String("path", path),
				logging.Error(err))
			continue
		}
		game := Game{
			Title:      s.titleFor(entry.Name()),
			Path:       path,
			SizeBytes:  size,
			ModifiedAt: modified,
		}
		if match := appDirPattern.FindStringSubmatch(entry.Name()); match != nil {
			game.AppID, _ = strconv.ParseInt(match[1], 10, 64)
		}
		games = append(games, game)
	}

	sort.Slice(games, func(i, j int) bool { return games[i].Title < games[j].Title })
	return games, nil
}

// titleFor derives a display name from an install directory name.
func (s *Scanner) titleFor(dir string) string {
	name := strings.NewReplacer("_", " ", ".", " ").Replace(dir)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return dir
	}
	return s.titler.String(name)
}

// directorySize sums file sizes recursively and tracks the newest mtime.
// Unreadable entries are skipped rather than failing the whole scan.
func directorySize(root string) (int64, time.Time, error) {
	var total int64
	var newest time.Time
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return total, newest, err
}
