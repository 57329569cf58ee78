package strvct

import (
	"path"
	"strings"
)

// FileType is the type of an artifact produced by the build step.
type FileType uint8

// These are the artifacts the build step publishes.
const (
	IndexArtifact FileType = 1 + iota
	CAMFile
	CAMArchive
)

func (t FileType) String() string {
	s := "invalid"
	switch t {
	case IndexArtifact:
		s = "index"
	case CAMFile:
		s = "cam"
	case CAMArchive:
		s = "cam archive"
	}
	return s
}

// Name returns the file name of the artifact.
func (t FileType) Name() string {
	switch t {
	case IndexArtifact:
		return "_index.json"
	case CAMFile:
		return "_cam.json"
	case CAMArchive:
		return "_cam.json.zip"
	}
	panic("invalid file type")
}

// BuildDir is the directory, relative to the app root, the artifacts are
// written to and served from.
const BuildDir = "build"

// ManifestName is the file name that marks a nested manifest.
const ManifestName = "_imports.json"

// HashSuffix is appended to an artifact name to form its sidecar hash file.
const HashSuffix = ".hash"

// ArtifactPath returns the slash separated path of artifact t relative to
// the app root.
func ArtifactPath(t FileType) string {
	return path.Join(BuildDir, t.Name())
}

// SidecarPath returns the path of the .hash file published next to p.
func SidecarPath(p string) string {
	return p + HashSuffix
}

// IsManifest reports whether p names a nested manifest.
func IsManifest(p string) bool {
	return path.Base(p) == ManifestName
}

// Ext returns the lowercase extension of p without the leading dot.
func Ext(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// camExtensions is the allow-list of extensions whose content is bundled in
// the CAM. Build and runtime use the same list. CAM values are UTF-8 strings,
// so binary formats such as fonts are left to per-resource loading.
var camExtensions = map[string]struct{}{
	"js":   {},
	"css":  {},
	"svg":  {},
	"json": {},
	"txt":  {},
	"html": {},
}

// CanBeBundled reports whether content at p belongs in the CAM.
func CanBeBundled(p string) bool {
	_, ok := camExtensions[Ext(p)]
	return ok
}

// textExtensions are decoded to strings when a resource value is requested.
var textExtensions = map[string]struct{}{
	"js":   {},
	"css":  {},
	"svg":  {},
	"txt":  {},
	"html": {},
	"md":   {},
}

// IsText reports whether the resource at p decodes to a string.
func IsText(p string) bool {
	_, ok := textExtensions[Ext(p)]
	return ok
}
