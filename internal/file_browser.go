package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

const maxBrowseEntries = 12

// uploadCandidate is one entry shown when /upload points at a directory.
type uploadCandidate struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// browseDirectory lists the non-hidden entries of path, directories first.
func browseDirectory(path string) ([]uploadCandidate, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]uploadCandidate, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		item := uploadCandidate{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// defaultBrowsePath is where a bare /upload starts looking.
func defaultBrowsePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		for _, sub := range []string{"Documents", "Downloads"} {
			candidate := filepath.Join(home, sub)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// describeDirectory renders a short listing the user can pick an upload from.
func describeDirectory(path string) (string, error) {
	items, err := browseDirectory(path)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return path + " is empty", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:", path)
	for i, item := range items {
		if i == maxBrowseEntries {
			fmt.Fprintf(&b, "\n  … %d more", len(items)-maxBrowseEntries)
			break
		}
		if item.IsDir {
			fmt.Fprintf(&b, "\n  %s/", item.Name)
			continue
		}
		fmt.Fprintf(&b, "\n  %s (%s)", item.Name, humanize.IBytes(uint64(item.Size)))
	}
	return b.String(), nil
}
