package packages

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// recordFile is the per-install record written into each install root.
const recordFile = "smpackage.json"

// SaveInstalled writes the install record into its install root.
func SaveInstalled(p *types.InstalledPackage) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(p.InstallRoot, recordFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write install record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write install record: %w", err)
	}
	return nil
}

// LoadInstalled reads the install record from an install root.
func LoadInstalled(installRoot string) (*types.InstalledPackage, error) {
	b, err := os.ReadFile(filepath.Join(installRoot, recordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInstalled(filepath.Base(installRoot))
		}
		return nil, err
	}
	var p types.InstalledPackage
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse install record: %w", err)
	}
	// The record may have been copied with the tree; trust the actual path.
	p.InstallRoot = installRoot
	return &p, nil
}

// ScanLibrary walks the packages directory and loads every install record
// found one level down. Directories without a record are skipped.
func ScanLibrary(packagesDir string) ([]*types.InstalledPackage, error) {
	entries, err := os.ReadDir(packagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read packages dir: %w", err)
	}
	var out []*types.InstalledPackage
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := LoadInstalled(filepath.Join(packagesDir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallRoot < out[j].InstallRoot })
	return out, nil
}
