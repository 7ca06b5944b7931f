package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/sliverarmory/chronohook/logging"
)

const DefaultMapsPath = "/proc/self/maps"

var ErrNoMaps = errors.New("registry: no memory map available")

// SeedFromMaps records every executable, file-backed mapping listed in a
// /proc/<pid>/maps style file, once per path, in the order they first
// appear. These are the libraries the target loaded at link time.
func (r *Registry) SeedFromMaps(fs afero.Fs, path string) (int, error) {
	if path == "" {
		path = DefaultMapsPath
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrNoMaps, path, err)
	}

	seen := make(map[string]struct{})
	count := 0
	for _, lib := range parseMaps(string(raw)) {
		if _, dup := seen[lib]; dup {
			continue
		}
		seen[lib] = struct{}{}
		r.Record(lib)
		r.log.Debugf(logging.Registry, "seeded %s", lib)
		count++
	}
	return count, nil
}

// parseMaps returns the paths of the executable, file-backed mappings in
// raw, in order and with duplicates.
func parseMaps(raw string) []string {
	var paths []string
	for _, line := range strings.Split(raw, "\n") {
		// address perms offset dev inode pathname
		fields := strings.Fields(line)
		if len(fields) < 6 || !strings.Contains(fields[1], "x") {
			continue
		}
		path := strings.TrimSuffix(strings.Join(fields[5:], " "), " (deleted)")
		if !strings.HasPrefix(path, "/") {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}
