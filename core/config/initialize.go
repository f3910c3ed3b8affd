package config

import (
	"log"

	"github.com/spf13/afero"
)

// Initialize writes the default configuration into dir, creating it if
// needed. An existing configuration is left untouched.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return InitializeFs(afero.NewBasePathFs(osFs, dir), logger)
}

// InitializeFs is Initialize rooted at fsys.
func InitializeFs(fsys afero.Fs, logger *log.Logger) (*Configuration, error) {
	exists, err := afero.Exists(fsys, ConfigurationName)
	if err != nil {
		return nil, err
	}

	if exists {
		logger.Printf("%s already exists, skipping", ConfigurationName)
	} else {
		logger.Printf("writing %s", ConfigurationName)
		if err := afero.WriteFile(fsys, ConfigurationName, defaultConfigData, 0600); err != nil {
			return nil, err
		}
	}

	return LoadFs(fsys)
}
