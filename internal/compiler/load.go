package compiler

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Extensions lists the file extensions Load reads.
var Extensions = []string{".cue", ".yaml", ".yml", ".json"}

// Load reads definitions from files and directories. Directories are walked
// for files with a known extension, in lexical order. Assets from every
// file are merged into one set of definitions.
func Load(paths ...string) (*Definitions, error) {
	files, err := FindFiles(paths...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &CompileError{Code: ErrNoAssets, Field: "paths", Message: fmt.Sprintf("no definitions files in %s", strings.Join(paths, ", "))}
	}

	merged := &Definitions{}
	var errs ValidationErrors
	for _, file := range files {
		defs, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded definitions", "file", file, "assets", len(defs.Assets), "policies", len(defs.Policies))
		errs = append(errs, merged.Merge(defs)...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return merged, nil
}

// LoadFile reads one definitions file, choosing the decoder by extension.
func LoadFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	switch filepath.Ext(path) {
	case ".cue":
		return ParseCUE(data, path)
	case ".yaml", ".yml", ".json":
		return ParseYAML(data, path)
	}
	return nil, &CompileError{Code: ErrSyntax, Field: "file", Message: "unsupported extension", Source: Source{File: path}}
}

// FindFiles expands directories in paths into the definitions files they
// contain. Plain files are returned as given.
func FindFiles(paths ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("definitions path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && slices.Contains(Extensions, filepath.Ext(path)) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	return files, nil
}

// LoadProject loads and compiles definitions in one step.
func LoadProject(opts Options, paths ...string) (*Project, error) {
	defs, err := Load(paths...)
	if err != nil {
		return nil, err
	}
	return Compile(defs, opts)
}
