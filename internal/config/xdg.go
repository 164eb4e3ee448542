package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "evolvedvault"

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetDataPath(filename string) string
	GetCachePath(purpose string) string
}

// XDGDirs provides XDG Base Directory compliant paths for EvolvedVault
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// GetConfigPaths returns prioritized paths where config files can be found
// Returns paths in search order: user config dir, then system config dirs
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	paths := make([]string, 0, 1+len(xdg.ConfigDirs))
	paths = append(paths, filepath.Join(xdg.ConfigHome, appDir, filename))
	for _, configDir := range xdg.ConfigDirs {
		paths = append(paths, filepath.Join(configDir, appDir, filename))
	}
	return paths
}

// GetDataPath returns the path of filename in the user data directory
func (x *XDGDirs) GetDataPath(filename string) string {
	return filepath.Join(xdg.DataHome, appDir, filename)
}

// GetCachePath returns the cache directory path for a specific purpose
func (x *XDGDirs) GetCachePath(purpose string) string {
	return filepath.Join(xdg.CacheHome, appDir, purpose)
}
