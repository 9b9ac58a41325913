// Package manifest loads the project manifest that tells the bridge
// which solver engine to boot.
//
// A project directory contains a fjord.yaml:
//
//	engine:
//	  module: build/engine.wasm
//	  name: riverine-dg
//	  memory_limit_pages: 4096
//	mounts:
//	  data: /data
//
// Paths are relative to the project directory. The project directory
// itself is always mounted at /project so the engine can read
// simulation description files.
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fjordsim/fjord/errors"
)

// FileName is the manifest file looked up inside a project directory.
const FileName = "fjord.yaml"

// Manifest describes a project environment.
type Manifest struct {
	Engine Engine            `yaml:"engine"`
	Mounts map[string]string `yaml:"mounts"`

	dir string
}

// Engine names the solver engine binary and its instance options.
type Engine struct {
	Module           string `yaml:"module"`
	Name             string `yaml:"name"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// Load reads and validates projectDir/fjord.yaml.
func Load(projectDir string) (*Manifest, error) {
	path := filepath.Join(projectDir, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(errors.PhaseManifest, "read "+path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Manifest("parse "+path, err)
	}
	m.dir = projectDir

	if m.Engine.Module == "" {
		return nil, errors.Manifest("engine.module is required", nil)
	}
	if filepath.IsAbs(m.Engine.Module) {
		return nil, errors.Manifest("engine.module must be relative to the project directory", nil)
	}
	if m.Engine.Name == "" {
		base := filepath.Base(m.Engine.Module)
		m.Engine.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	for host, guest := range m.Mounts {
		if !strings.HasPrefix(guest, "/") {
			return nil, errors.Manifest("mount target "+guest+" for "+host+" must be absolute", nil)
		}
	}

	return &m, nil
}

// ModulePath returns the absolute path of the engine binary.
func (m *Manifest) ModulePath() string {
	return filepath.Join(m.dir, m.Engine.Module)
}

// ReadModule reads the engine binary named by the manifest.
func (m *Manifest) ReadModule() ([]byte, error) {
	raw, err := os.ReadFile(m.ModulePath())
	if err != nil {
		return nil, errors.IO(errors.PhaseManifest, "read engine module", err)
	}
	return raw, nil
}

// HostMounts returns the mount table with host paths resolved against the
// project directory, including the implicit /project mount.
func (m *Manifest) HostMounts() map[string]string {
	mounts := map[string]string{m.dir: "/project"}
	for host, guest := range m.Mounts {
		if !filepath.IsAbs(host) {
			host = filepath.Join(m.dir, host)
		}
		mounts[host] = guest
	}
	return mounts
}
