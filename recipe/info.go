package recipe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// StaticDefine is defined for consumers of the static library so that
// the liblzma headers drop the dllimport/visibility decorations.
const StaticDefine = "LZMA_API_STATIC"

// InfoFile is the name of the metadata file written into a package.
const InfoFile = "package.json"

// PackageInfo is the consumption metadata of a built package.
type PackageInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Key         string   `json:"key"`
	Libs        []string `json:"libs"`
	Defines     []string `json:"defines,omitempty"`
	IncludeDirs []string `json:"include_dirs"`
	LibDirs     []string `json:"lib_dirs"`
	BinDirs     []string `json:"bin_dirs,omitempty"`
}

// Metadata renders info as pkg-config style compiler and linker flags,
// relative to the package root.
func (info *PackageInfo) Metadata() string {
	var parts []string
	for _, d := range info.Defines {
		parts = append(parts, "-D"+d)
	}
	for _, d := range info.IncludeDirs {
		parts = append(parts, "-I"+d)
	}
	for _, d := range info.LibDirs {
		parts = append(parts, "-L"+d)
	}
	for _, l := range info.Libs {
		parts = append(parts, "-l"+l)
	}
	return strings.Join(parts, " ")
}

// Save writes info to dir/package.json.
func (info *PackageInfo) Save(dir string) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, InfoFile), data, 0o644)
}

// LoadInfo reads dir/package.json.
func LoadInfo(dir string) (*PackageInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFile))
	if err != nil {
		return nil, err
	}
	var info PackageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
