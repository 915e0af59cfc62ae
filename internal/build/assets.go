package build

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/clubemkt/agendai-deploy/internal/envconfig"
)

// AssetFile is one file produced by the build.
type AssetFile struct {
	Path string
	Size int64
}

// Assets aggregates the build output by file class. TotalFiles always
// equals the sum of the category list lengths, and TotalSize the sum of
// all sizes.
type Assets struct {
	TotalFiles   int
	TotalSize    int64
	HTMLFiles    []AssetFile
	JSFiles      []AssetFile
	CSSFiles     []AssetFile
	StaticAssets []AssetFile
}

// OutputValidation is the result of inspecting the build output.
type OutputValidation struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Assets   *Assets
}

const (
	jsBundleWarnSize  = 1 << 20 // 1MB
	cssBundleWarnSize = 512 << 10
)

// Vite emits hashed bundles like index-BX3k9aQ2.js; a JS file without a
// hash segment will be cached stale by browsers and CDNs.
var contentHashRe = regexp.MustCompile(`[-.][0-9a-zA-Z_]{8,}\.(js|css)$`)

var devMarkerRe = regexp.MustCompile(`(?i)(^|[-._/])(dev|debug)([-._/]|$)`)

// ValidateOutput asserts the output directory and entry document exist,
// checks the entry document for the SPA mount point and module scripts,
// and classifies every produced file. Size and hygiene findings are
// warnings, not errors.
func (o *Orchestrator) ValidateOutput() *OutputValidation {
	v := &OutputValidation{}
	outDir := filepath.Join(o.rootDir, o.cfg.OutputDir)

	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		v.Errors = append(v.Errors, fmt.Sprintf("build output directory %s does not exist", o.cfg.OutputDir))
		return v
	}

	entry := filepath.Join(outDir, "index.html")
	data, err := os.ReadFile(entry)
	if err != nil {
		v.Errors = append(v.Errors, "build output has no index.html entry document")
		return v
	}

	html := string(data)
	if !strings.Contains(html, `id="root"`) && !strings.Contains(html, `id='root'`) {
		v.Warnings = append(v.Warnings, "index.html has no #root mount point; the app may not render")
	}
	if !strings.Contains(html, `type="module"`) {
		v.Warnings = append(v.Warnings, "index.html has no ES-module script tag; bundling may have failed")
	}

	assets, warnings, err := o.collectAssets(outDir)
	if err != nil {
		v.Errors = append(v.Errors, fmt.Sprintf("could not analyze build output: %v", err))
		return v
	}
	v.Assets = assets
	v.Warnings = append(v.Warnings, warnings...)
	v.Valid = true

	o.logger.Info("build output validated",
		"files", assets.TotalFiles,
		"total_size", assets.TotalSize,
		"js", len(assets.JSFiles),
		"css", len(assets.CSSFiles),
		"warnings", len(v.Warnings))
	return v
}

func (o *Orchestrator) collectAssets(outDir string) (*Assets, []string, error) {
	assets := &Assets{}
	var warnings []string

	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			return err
		}

		file := AssetFile{Path: rel, Size: info.Size()}
		assets.TotalFiles++
		assets.TotalSize += file.Size

		switch strings.ToLower(filepath.Ext(rel)) {
		case ".html":
			assets.HTMLFiles = append(assets.HTMLFiles, file)
		case ".js":
			assets.JSFiles = append(assets.JSFiles, file)
			if file.Size > jsBundleWarnSize {
				warnings = append(warnings, fmt.Sprintf("JS bundle %s is %d bytes (over 1MB); consider code splitting", rel, file.Size))
			}
			if !contentHashRe.MatchString(rel) {
				warnings = append(warnings, fmt.Sprintf("JS file %s has no content hash; browsers may cache a stale copy", rel))
			}
		case ".css":
			assets.CSSFiles = append(assets.CSSFiles, file)
			if file.Size > cssBundleWarnSize {
				warnings = append(warnings, fmt.Sprintf("CSS bundle %s is %d bytes (over 512KB)", rel, file.Size))
			}
		case ".map":
			assets.StaticAssets = append(assets.StaticAssets, file)
			if o.cfg.Name == envconfig.Production {
				warnings = append(warnings, fmt.Sprintf("source map %s present in a production build", rel))
			}
		default:
			assets.StaticAssets = append(assets.StaticAssets, file)
		}

		if devMarkerRe.MatchString(rel) {
			warnings = append(warnings, fmt.Sprintf("file %s looks like a development artifact", rel))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return assets, warnings, nil
}
