package envconfig

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Environment
		wantErr bool
	}{
		{"production", Production, false},
		{"staging", Staging, false},
		{"development", Development, false},
		{"preview", Preview, false},
		{"PRODUCTION", Production, false},
		{"  staging  ", Staging, false},
		{"prod", "", true},
		{"", "", true},
		{"test", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRegistryGetUnknownEnvironment(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get(Environment("qa")); err == nil {
		t.Error("expected error for unknown environment")
	}
	if _, err := r.DeployTargetFor(Environment("qa")); err == nil {
		t.Error("expected error for unknown deploy target")
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	for _, env := range All() {
		cfg, err := r.Get(env)
		if err != nil {
			t.Fatalf("Get(%s): %v", env, err)
		}
		if cfg.Domain == "" {
			t.Errorf("%s: empty domain", env)
		}
		if len(cfg.BuildCommand) == 0 {
			t.Errorf("%s: empty build command", env)
		}
		if !strings.HasPrefix(cfg.VerifyURL, "https://") {
			t.Errorf("%s: verify URL %q is not https", env, cfg.VerifyURL)
		}
		if len(cfg.Deploy.SuccessMarkers) == 0 {
			t.Errorf("%s: no success markers configured", env)
		}
		if cfg.Deploy.Branch == "" {
			t.Errorf("%s: no deploy branch", env)
		}
	}

	prod, _ := r.Get(Production)
	if !prod.CustomDomain {
		t.Error("production should use a custom domain")
	}
	if prod.Domain != "agendai.clubemkt.digital" {
		t.Errorf("unexpected production domain %q", prod.Domain)
	}

	// Preview reuses the staging build script.
	preview, _ := r.Get(Preview)
	staging, _ := r.Get(Staging)
	if strings.Join(preview.BuildCommand, " ") != strings.Join(staging.BuildCommand, " ") {
		t.Errorf("preview build command %v should alias staging %v", preview.BuildCommand, staging.BuildCommand)
	}
}

func TestApplyOverrides(t *testing.T) {
	r := NewRegistry()

	src := `
environment "production" {
  domain          = "agendai.example.com"
  verify_url      = "https://agendai.example.com"
  success_markers = ["UPLOAD OK"]
}

environment "staging" {
  build_command = ["pnpm", "run", "build:staging"]
}
`
	if err := r.ApplyOverrides([]byte(src), "test.hcl"); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	prod, _ := r.Get(Production)
	if prod.Domain != "agendai.example.com" {
		t.Errorf("domain override not applied: %q", prod.Domain)
	}
	if len(prod.Deploy.SuccessMarkers) != 1 || prod.Deploy.SuccessMarkers[0] != "UPLOAD OK" {
		t.Errorf("success marker override not applied: %v", prod.Deploy.SuccessMarkers)
	}
	// Untouched attributes keep their defaults.
	if len(prod.BuildCommand) == 0 || prod.BuildCommand[0] != "npm" {
		t.Errorf("build command should keep default, got %v", prod.BuildCommand)
	}

	staging, _ := r.Get(Staging)
	if staging.BuildCommand[0] != "pnpm" {
		t.Errorf("staging build command override not applied: %v", staging.BuildCommand)
	}
}

func TestApplyOverridesRebuildsDeployCommands(t *testing.T) {
	r := NewRegistry()

	src := `
environment "staging" {
  project_name = "agendai-next"
  branch       = "next"
  output_dir   = "build"
}
`
	if err := r.ApplyOverrides([]byte(src), "test.hcl"); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	staging, _ := r.Get(Staging)
	got := strings.Join(staging.Deploy.Command, " ")
	want := "npx wrangler pages deploy build --project-name agendai-next --branch next"
	if got != want {
		t.Errorf("deploy command not rebuilt from overrides:\n got %q\nwant %q", got, want)
	}
	status := strings.Join(staging.Deploy.StatusCommand, " ")
	if !strings.Contains(status, "--project-name agendai-next") {
		t.Errorf("status command still targets the old project: %q", status)
	}
}

func TestApplyOverridesExplicitDeployCommandWins(t *testing.T) {
	r := NewRegistry()

	src := `
environment "production" {
  branch         = "release"
  deploy_command = ["npx", "wrangler", "pages", "deploy", "out"]
}
`
	if err := r.ApplyOverrides([]byte(src), "test.hcl"); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	prod, _ := r.Get(Production)
	got := strings.Join(prod.Deploy.Command, " ")
	if got != "npx wrangler pages deploy out" {
		t.Errorf("explicit deploy_command must be kept verbatim, got %q", got)
	}
}

func TestApplyOverridesUnknownEnvironment(t *testing.T) {
	r := NewRegistry()
	src := `
environment "qa" {
  domain = "qa.example.com"
}
`
	if err := r.ApplyOverrides([]byte(src), "test.hcl"); err == nil {
		t.Error("expected error for unknown environment block")
	}
}

func TestApplyOverridesFileMissingIsNoop(t *testing.T) {
	r := NewRegistry()
	if err := r.ApplyOverridesFile(t.TempDir() + "/does-not-exist.hcl"); err != nil {
		t.Errorf("missing override file should be a no-op, got %v", err)
	}
}
