// Package tool locates the external binaries the adapters shell out to.
package tool

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-multierror"

	yt2convert "github.com/hossez/yt2convert"
)

// A Resolver finds an external tool by probing the system search path first and
// the application's bundled directory second. Lookup functions are injectable so
// resolution is testable without real binaries.
type Resolver struct {
	// BundledDir is where bundled executables live; defaults to the directory
	// containing the running executable.
	BundledDir string

	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		lookPath: exec.LookPath,
		stat:     os.Stat,
	}
}

// NewFakeResolver returns a resolver backed by the supplied lookup functions,
// for tests.
func NewFakeResolver(lookPath func(string) (string, error), stat func(string) (os.FileInfo, error)) *Resolver {
	return &Resolver{lookPath: lookPath, stat: stat}
}

// Resolve returns the full path of the named tool, or an error wrapping
// ErrToolMissing that records every probe that failed.
func (r *Resolver) Resolve(name string) (string, error) {
	var probeErrs error

	if path, err := r.lookPath(name); err == nil {
		return path, nil
	} else {
		probeErrs = multierror.Append(probeErrs, multierror.Prefix(err, "[path]"))
	}

	bundledDir := r.BundledDir
	if bundledDir == "" {
		if exe, err := os.Executable(); err == nil {
			bundledDir = filepath.Dir(exe)
		}
	}
	if bundledDir != "" {
		candidate := filepath.Join(bundledDir, exeName(name))
		if _, err := r.stat(candidate); err == nil {
			return candidate, nil
		} else {
			probeErrs = multierror.Append(probeErrs, multierror.Prefix(err, "[bundled]"))
		}
	}

	return "", fmt.Errorf("%w: %s: %v", yt2convert.ErrToolMissing, name, probeErrs)
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
