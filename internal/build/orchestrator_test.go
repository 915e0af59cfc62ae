package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clubemkt/agendai-deploy/internal/envconfig"
	"github.com/clubemkt/agendai-deploy/internal/resilience"
	"github.com/clubemkt/agendai-deploy/pkg/cmdrunner"
)

// fakeRunner scripts command results and records invocations.
type fakeRunner struct {
	result cmdrunner.Result
	onRun  func()
	calls  [][]string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) cmdrunner.Result {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.onRun != nil {
		f.onRun()
	}
	return f.result
}

func prodConfig(t *testing.T) *envconfig.EnvironmentConfig {
	t.Helper()
	cfg, err := envconfig.NewRegistry().Get(envconfig.Production)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// scaffoldProject creates a minimal valid project root.
func scaffoldProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifest := `{
  "name": "agendai",
  "scripts": {
    "build:development": "vite build --mode development",
    "build:staging": "vite build --mode staging",
    "build:production": "vite build --mode production"
  }
}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vite.config.ts"), []byte("export default {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func writeDist(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, "dist", name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

const goodIndexHTML = `<!doctype html><html><head><link rel="stylesheet" href="/assets/index-C4fR9xQ2.css"></head><body><div id="root"></div><script type="module" src="/assets/index-BX3k9aQ2.js"></script></body></html>`

func TestPreValidateAccumulatesAllErrors(t *testing.T) {
	o := NewOrchestrator(prodConfig(t), t.TempDir(), &fakeRunner{}, false, nil)

	err := o.PreValidate()
	if err == nil {
		t.Fatal("expected validation errors for empty project")
	}
	msg := err.Error()
	for _, want := range []string{"package.json", "vite config", "source directory"} {
		if !strings.Contains(msg, want) {
			t.Errorf("accumulated errors missing %q: %v", want, msg)
		}
	}
}

func TestPreValidateMissingBuildScript(t *testing.T) {
	dir := scaffoldProject(t)
	manifest := `{"name": "agendai", "scripts": {"build": "vite build"}}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(prodConfig(t), dir, &fakeRunner{}, false, nil)
	err := o.PreValidate()
	if err == nil {
		t.Fatal("expected error for missing build script")
	}
	if !strings.Contains(err.Error(), "build:production") {
		t.Errorf("error should name the missing script: %v", err)
	}
}

func TestPreValidateOK(t *testing.T) {
	o := NewOrchestrator(prodConfig(t), scaffoldProject(t), &fakeRunner{}, false, nil)
	if err := o.PreValidate(); err != nil {
		t.Errorf("expected valid project, got %v", err)
	}
}

func TestCleanRemovesPreviousOutput(t *testing.T) {
	root := scaffoldProject(t)
	writeDist(t, root, map[string]string{"stale.txt": "old"})

	o := NewOrchestrator(prodConfig(t), root, &fakeRunner{}, false, nil)
	if warning := o.Clean(); warning != "" {
		t.Errorf("unexpected warning: %s", warning)
	}
	if _, err := os.Stat(filepath.Join(root, "dist")); !os.IsNotExist(err) {
		t.Error("dist should have been removed")
	}

	// No-op when already absent.
	if warning := o.Clean(); warning != "" {
		t.Errorf("clean of absent dir should be silent, got %s", warning)
	}
}

func TestRunDryRunSkipsCommand(t *testing.T) {
	runner := &fakeRunner{}
	o := NewOrchestrator(prodConfig(t), scaffoldProject(t), runner, true, nil)

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("dry run should report success")
	}
	if res.BuildTime != 0 {
		t.Errorf("dry run build time should be 0, got %v", res.BuildTime)
	}
	if len(runner.calls) != 0 {
		t.Errorf("dry run must not invoke any command, got %v", runner.calls)
	}
}

func TestRunClassifiesFailureOutput(t *testing.T) {
	runner := &fakeRunner{result: cmdrunner.Result{
		Output:   "npm ERR! missing script: build:production",
		ExitCode: 1,
		Err:      errors.New("exit status 1"),
	}}
	o := NewOrchestrator(prodConfig(t), scaffoldProject(t), runner, false, nil)

	res, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Success {
		t.Error("result should be a failure")
	}
	var opErr *resilience.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OpError, got %T", err)
	}
	if opErr.Kind != resilience.KindConfiguration {
		t.Errorf("kind = %s, want configuration", opErr.Kind)
	}
	if !strings.Contains(opErr.RawOutput, "missing script") {
		t.Errorf("raw output not captured: %q", opErr.RawOutput)
	}
}

func TestRunBuildCommandInvoked(t *testing.T) {
	runner := &fakeRunner{}
	o := NewOrchestrator(prodConfig(t), scaffoldProject(t), runner, false, nil)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(runner.calls))
	}
	got := strings.Join(runner.calls[0], " ")
	if got != "npm run build:production" {
		t.Errorf("unexpected command %q", got)
	}
}

func TestValidateOutputMissingDir(t *testing.T) {
	o := NewOrchestrator(prodConfig(t), scaffoldProject(t), &fakeRunner{}, false, nil)

	v := o.ValidateOutput()
	if v.Valid {
		t.Error("missing output dir should be invalid")
	}
	if len(v.Errors) == 0 || !strings.Contains(v.Errors[0], "dist") {
		t.Errorf("unexpected errors: %v", v.Errors)
	}
}

func TestValidateOutputAssetsAndWarnings(t *testing.T) {
	root := scaffoldProject(t)
	writeDist(t, root, map[string]string{
		"index.html":                 goodIndexHTML,
		"assets/index-BX3k9aQ2.js":   "console.log('app')",
		"assets/vendor.js":           "console.log('vendor')", // no content hash
		"assets/index-C4fR9xQ2.css":  "body{margin:0}",
		"assets/index-BX3k9aQ2.js.map": "{}",
		"favicon.ico":                "icon",
		"debug-notes.txt":            "left over",
	})
	// Oversized JS bundle.
	big := strings.Repeat("x", jsBundleWarnSize+1)
	writeDist(t, root, map[string]string{"assets/chunk-Ab12Cd34.js": big})

	o := NewOrchestrator(prodConfig(t), root, &fakeRunner{}, false, nil)
	v := o.ValidateOutput()
	if !v.Valid {
		t.Fatalf("expected valid output, errors: %v", v.Errors)
	}

	a := v.Assets
	sum := len(a.HTMLFiles) + len(a.JSFiles) + len(a.CSSFiles) + len(a.StaticAssets)
	if a.TotalFiles != sum {
		t.Errorf("TotalFiles %d != category sum %d", a.TotalFiles, sum)
	}
	var sizeSum int64
	for _, list := range [][]AssetFile{a.HTMLFiles, a.JSFiles, a.CSSFiles, a.StaticAssets} {
		for _, f := range list {
			sizeSum += f.Size
		}
	}
	if a.TotalSize != sizeSum {
		t.Errorf("TotalSize %d != size sum %d", a.TotalSize, sizeSum)
	}
	if len(a.HTMLFiles) != 1 || len(a.JSFiles) != 3 || len(a.CSSFiles) != 1 {
		t.Errorf("unexpected classification: html=%d js=%d css=%d static=%d",
			len(a.HTMLFiles), len(a.JSFiles), len(a.CSSFiles), len(a.StaticAssets))
	}

	wantWarnings := []string{
		"over 1MB",          // oversized bundle
		"no content hash",   // vendor.js
		"source map",        // .map in production build
		"development artifact", // debug-notes.txt
	}
	for _, want := range wantWarnings {
		found := false
		for _, w := range v.Warnings {
			if strings.Contains(w, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a warning containing %q, got %v", want, v.Warnings)
		}
	}
}

func TestValidateOutputEntryMarkersWarnings(t *testing.T) {
	root := scaffoldProject(t)
	writeDist(t, root, map[string]string{
		"index.html": "<!doctype html><html><body><p>static</p></body></html>",
	})

	o := NewOrchestrator(prodConfig(t), root, &fakeRunner{}, false, nil)
	v := o.ValidateOutput()
	if !v.Valid {
		t.Fatalf("marker problems must be warnings, not errors: %v", v.Errors)
	}
	joined := strings.Join(v.Warnings, "\n")
	if !strings.Contains(joined, "#root") || !strings.Contains(joined, "ES-module") {
		t.Errorf("expected mount point and module warnings, got %v", v.Warnings)
	}
}

func TestOrchestrateShortCircuitsOnPreValidation(t *testing.T) {
	runner := &fakeRunner{}
	o := NewOrchestrator(prodConfig(t), t.TempDir(), runner, false, nil)

	res := o.Orchestrate(context.Background())
	if res.Success {
		t.Error("expected failure")
	}
	if res.FailedStage != StagePreValidation {
		t.Errorf("failed stage = %s, want pre-validation", res.FailedStage)
	}
	if len(runner.calls) != 0 {
		t.Error("build must not run after failed pre-validation")
	}
}

func TestOrchestrateFullSuccess(t *testing.T) {
	root := scaffoldProject(t)
	// Stale output that must be cleaned before the build.
	writeDist(t, root, map[string]string{"stale.txt": "old"})

	runner := &fakeRunner{}
	runner.onRun = func() {
		writeDist(t, root, map[string]string{
			"index.html":                goodIndexHTML,
			"assets/index-BX3k9aQ2.js":  "console.log('app')",
			"assets/index-C4fR9xQ2.css": "body{margin:0}",
		})
	}

	o := NewOrchestrator(prodConfig(t), root, runner, false, nil)
	res := o.Orchestrate(context.Background())
	if !res.Success {
		t.Fatalf("expected success, stage=%s error=%s", res.FailedStage, res.Error)
	}
	if res.Assets == nil || res.Assets.TotalFiles != 3 {
		t.Errorf("expected 3 fresh files, got %+v", res.Assets)
	}
	for _, f := range res.Assets.StaticAssets {
		if f.Path == "stale.txt" {
			t.Error("stale output survived the cleanup stage")
		}
	}
}

func TestOrchestrateTagsBuildFailure(t *testing.T) {
	root := scaffoldProject(t)
	runner := &fakeRunner{result: cmdrunner.Result{
		Output:   "connect ETIMEDOUT registry.npmjs.org",
		ExitCode: 1,
		Err:      errors.New("exit status 1"),
	}}

	o := NewOrchestrator(prodConfig(t), root, runner, false, nil)
	res := o.Orchestrate(context.Background())
	if res.Success {
		t.Error("expected failure")
	}
	if res.FailedStage != StageBuild {
		t.Errorf("failed stage = %s, want build", res.FailedStage)
	}
}
