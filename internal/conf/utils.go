package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/audio-annotator/internal/errors"
)

const (
	appDirName     = "audio-annotator"
	configFileName = "config.yaml"
)

// GetDefaultConfigPaths lists the directories searched for config.yaml.
// A directory that already holds one is returned alone.
func GetDefaultConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "home_directory").
			Build()
	}

	var paths []string
	if runtime.GOOS == "windows" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("configuration").
				Category(errors.CategorySystem).
				Context("operation", "executable_path").
				Build()
		}
		paths = []string{filepath.Dir(exe), filepath.Join(home, "AppData", "Roaming", appDirName)}
	} else {
		paths = []string{filepath.Join(home, ".config", appDirName), filepath.Join("/etc", appDirName)}
	}

	for _, p := range paths {
		if fileExists(filepath.Join(p, configFileName)) {
			return []string{p}, nil
		}
	}
	return paths, nil
}

// FindConfigFile returns the first config.yaml on the default paths
func FindConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if candidate := filepath.Join(p, configFileName); fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", errors.Newf("no %s found in %v", configFileName, paths).
		Component("configuration").
		Category(errors.CategoryNotFound).
		Build()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// moveFile renames src to dst, copying when they are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Remove(src)
}
