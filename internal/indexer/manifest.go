package indexer

import (
	"bytes"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/fs"
	"github.com/skyline93/strvct/internal/strvct"
)

// ResolveManifest reads the manifest at manifestPath (slash separated,
// relative to root) and returns the flat, ordered list of resource paths it
// describes. Entries are relative to the directory of the manifest that lists
// them. An entry naming a nested manifest is expanded in place.
func ResolveManifest(root, manifestPath string) ([]string, error) {
	r := manifestResolver{root: root, active: make(map[string]struct{})}
	var result []string
	if err := r.resolve(path.Clean(manifestPath), &result); err != nil {
		return nil, err
	}

	log.Debugf("manifest %v resolved to %d paths", manifestPath, len(result))
	return result, nil
}

type manifestResolver struct {
	root string
	// manifests currently being expanded, used to detect include cycles
	active map[string]struct{}
}

func (r *manifestResolver) resolve(manifest string, result *[]string) error {
	if _, ok := r.active[manifest]; ok {
		return &strvct.ManifestFormatError{Path: manifest, Reason: "manifest includes itself"}
	}
	r.active[manifest] = struct{}{}
	defer delete(r.active, manifest)

	entries, err := r.read(manifest)
	if err != nil {
		return err
	}

	dir := path.Dir(manifest)
	for _, entry := range entries {
		p, err := joinEntry(dir, entry)
		if err != nil {
			return &strvct.ManifestFormatError{Path: manifest, Reason: err.Error()}
		}

		if strvct.IsManifest(p) {
			log.Debugf("expanding nested manifest %v", p)
			if err := r.resolve(p, result); err != nil {
				return err
			}
			continue
		}

		*result = append(*result, p)
	}

	return nil
}

// read loads a manifest and checks that it is a JSON array of strings.
func (r *manifestResolver) read(manifest string) ([]string, error) {
	buf, err := fs.ReadFile(filepath.Join(r.root, filepath.FromSlash(manifest)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &strvct.ManifestNotFoundError{Path: manifest, Err: err}
		}
		return nil, errors.Wrapf(err, "read manifest %v", manifest)
	}

	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &strvct.ManifestFormatError{Path: manifest, Reason: "top-level value is not an array"}
	}

	var entries []string
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, &strvct.ManifestFormatError{Path: manifest, Reason: err.Error()}
	}

	return entries, nil
}

// joinEntry resolves entry relative to dir and rejects paths that leave the
// root.
func joinEntry(dir, entry string) (string, error) {
	if entry == "" {
		return "", errors.New("empty entry")
	}
	if path.IsAbs(entry) || strings.Contains(entry, "\\") {
		return "", errors.Errorf("entry %q must be a relative slash separated path", entry)
	}

	p := path.Join(dir, entry)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", errors.Errorf("entry %q points outside the root", entry)
	}
	return p, nil
}
