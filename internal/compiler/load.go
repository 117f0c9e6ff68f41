package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/build"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/glyph/internal/ir"
)

var (
	// ErrLoad wraps failures to load CUE instances.
	ErrLoad = errors.New("load CUE instances")
	// ErrBuild wraps failures to build a loaded instance into a value.
	ErrBuild = errors.New("build CUE value")
)

// BuildValue loads the CUE package at path and builds it into a value.
// path is a directory holding one package or a single .cue file.
func BuildValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	var instances []*build.Instance
	if info.IsDir() {
		instances = load.Instances([]string{"."}, &load.Config{Dir: path})
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		instances = load.Instances([]string{abs}, &load.Config{Dir: filepath.Dir(abs)})
	}
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("%w: no instances", ErrLoad)
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("%w: %w", ErrBuild, formatCUEError(err))
	}
	return value, nil
}

// LoadCatalog builds and compiles the catalog at path.
func LoadCatalog(path string) (*ir.Catalog, error) {
	value, err := BuildValue(path)
	if err != nil {
		return nil, err
	}
	return CompileCatalog(value)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
