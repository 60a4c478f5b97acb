package gotest

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/mod/modfile"
)

const sourceCacheSize = 256

// location is where a test function is declared.
type location struct {
	File string
	Line int
}

// sourceIndex finds test function declarations, caching one parse per package directory.
type sourceIndex struct {
	cache *lru.Cache[string, map[string]location]
}

func newSourceIndex(size int) (*sourceIndex, error) {
	if size <= 0 {
		size = sourceCacheSize
	}
	cache, err := lru.New[string, map[string]location](size)
	if err != nil {
		return nil, err
	}
	return &sourceIndex{cache: cache}, nil
}

// Lookup returns the declarations of test functions of pkgPath found under sourceDir.
func (s *sourceIndex) Lookup(pkgPath, sourceDir string) (map[string]location, error) {
	pkgDir, err := resolvePackageDir(pkgPath, sourceDir)
	if err != nil {
		return nil, err
	}
	if locs, ok := s.cache.Get(pkgDir); ok {
		return locs, nil
	}
	locs, err := findTestFunctions(pkgDir)
	if err != nil {
		return nil, err
	}
	s.cache.Add(pkgDir, locs)
	return locs, nil
}

// resolvePackageDir maps a package import path onto a directory. sourceDir is
// either the package directory itself or the root of the module containing it.
func resolvePackageDir(pkgPath, sourceDir string) (string, error) {
	if sourceDir == "" {
		return "", fmt.Errorf("no source directory configured")
	}
	if strings.HasPrefix(pkgPath, "./") {
		return filepath.Join(sourceDir, strings.TrimPrefix(pkgPath, "./")), nil
	}

	goModPath := filepath.Join(sourceDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		if os.IsNotExist(err) {
			return sourceDir, nil
		}
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}

	moduleName := modFile.Module.Mod.Path
	if pkgPath == "" || pkgPath == moduleName {
		return sourceDir, nil
	}
	if !strings.HasPrefix(pkgPath, moduleName+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}
	return filepath.Join(sourceDir, strings.TrimPrefix(pkgPath, moduleName+"/")), nil
}

// findTestFunctions parses the _test.go files of a directory and returns the
// location of every Test, Example and Fuzz function.
func findTestFunctions(pkgDir string) (map[string]location, error) {
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	locs := make(map[string]location)
	fset := token.NewFileSet()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}
			name := funcDecl.Name.Name
			if !isRunnable(name) {
				continue
			}
			pos := fset.Position(funcDecl.Pos())
			locs[name] = location{File: pos.Filename, Line: pos.Line}
		}
	}
	return locs, nil
}

// isRunnable reports whether a top-level function name is one the test binary runs.
func isRunnable(name string) bool {
	if name == "TestMain" {
		return false
	}
	for _, prefix := range []string{"Test", "Example", "Fuzz"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
