package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/goscan/internal/frame"
)

// discoverImageFiles expands files and directories into the list of image
// files to decode. Explicitly named files are subject to the same patterns
// as discovered ones. A file reached twice is listed once.
func discoverImageFiles(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var imageFiles []string
	seen := make(map[string]struct{})
	add := func(path string) {
		key := filepath.Clean(path)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		imageFiles = append(imageFiles, path)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			files, err := discoverInDirectory(arg, recursive, includePatterns, excludePatterns)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f)
			}
		} else if shouldIncludeFile(arg, includePatterns, excludePatterns) {
			add(arg)
		}
	}

	return imageFiles, nil
}

// discoverInDirectory walks dir, descending into subdirectories only when
// recursive is set.
func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIncludeFile(path, includePatterns, excludePatterns) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// shouldIncludeFile applies exclude patterns first. Without include
// patterns, any file with a supported image extension is included.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return frame.IsSupported(path)
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern matches the base name of path against shell patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
