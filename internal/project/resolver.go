// Package project resolves the owning project identity for a hook
// invocation. Without an identity the whole pipeline is inert.
package project

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest locations, relative to a project root.
const (
	ManifestDir  = ".memhook"
	ManifestFile = "project.yaml"
)

// EnvProjectID is the process-level fallback identifier.
const EnvProjectID = "MEMHOOK_PROJECT_ID"

// manifest is the on-disk project manifest. Only the id field matters here.
type manifest struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
}

// Resolve walks from startDir to the filesystem root looking for a project
// manifest and returns its project id. Falls back to the MEMHOOK_PROJECT_ID
// environment variable. ok is false when neither is present: that is not an
// error, the caller simply skips the invocation.
func Resolve(startDir string) (id string, ok bool) {
	dir := startDir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}

	for dir != "" {
		if id := readManifestID(filepath.Join(dir, ManifestDir, ManifestFile)); id != "" {
			return id, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if id := os.Getenv(EnvProjectID); id != "" {
		return id, true
	}
	return "", false
}

// Root returns the directory containing the project manifest, walking
// ancestors like Resolve. Falls back to startDir when no manifest exists,
// so deferred-job markers still have a stable home.
func Root(startDir string) string {
	dir := startDir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}

	for probe := dir; probe != ""; {
		if _, err := os.Stat(filepath.Join(probe, ManifestDir, ManifestFile)); err == nil {
			return probe
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	return dir
}

// readManifestID reads the project id from a manifest path. Missing or
// malformed manifests yield "".
func readManifestID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Project.ID
}
