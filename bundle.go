package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// loadBundleSource reads a script bundle from disk and, when the source uses
// ES module syntax, packs it with esbuild into a single self-contained IIFE
// the VM can evaluate as a classic script. Plain scripts are returned as-is.
func loadBundleSource(root, bundleFile string) (string, error) {
	path := bundleFile
	if root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, bundleFile)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading bundle %s: %w", bundleFile, err)
	}

	src := string(source)
	if !needsPacking(src) {
		return src, nil
	}

	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{path},
		AbsWorkingDir: filepath.Dir(path),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2017,
		TreeShaking:   esbuild.TreeShakingFalse,
		Loader: map[string]esbuild.Loader{
			filepath.Ext(path): esbuild.LoaderJS,
		},
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("packing bundle %s: %s", bundleFile, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("packing bundle %s: no output produced", bundleFile)
	}

	return string(result.OutputFiles[0].Contents), nil
}

// needsPacking checks whether the source uses module syntax that a classic
// script eval cannot handle directly.
func needsPacking(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "export ") ||
		strings.Contains(source, "require(")
}
