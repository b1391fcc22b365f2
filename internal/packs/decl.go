package packs

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// PacksDeclarationFile is the default filename for pack declarations
// kept alongside config.yaml.
const PacksDeclarationFile = "packs.toml"

// PacksFile represents the root structure of packs.toml:
//
//	version = 1
//
//	[[pack]]
//	name = "auth"
//	files = ["src/auth/**"]
//	security_level = "critical"
type PacksFile struct {
	Version int    `toml:"version"`
	Packs   []Pack `toml:"pack"`
}

// ParsePacksFile parses a packs.toml file from the given path.
func ParsePacksFile(filePath string) (*PacksFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var f PacksFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	if f.Version < 1 {
		f.Version = 1
	}
	return &f, nil
}

// LoadPacksFile returns the packs declared in filePath, or nil if the file
// does not exist.
func LoadPacksFile(filePath string) ([]Pack, error) {
	f, err := ParsePacksFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f.Packs, nil
}

// WritePacksFile writes packs to filePath in packs.toml form.
func WritePacksFile(filePath string, packs []Pack) error {
	data, err := toml.Marshal(PacksFile{Version: 1, Packs: packs})
	if err != nil {
		return fmt.Errorf("marshal packs: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filePath, err)
	}
	return nil
}
