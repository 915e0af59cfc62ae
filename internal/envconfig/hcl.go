package envconfig

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// overridesFile is the gohcl shape of an agendai-deploy.hcl file. Every
// attribute is optional; absent attributes keep the built-in value.
//
//	environment "production" {
//	  domain          = "agendai.clubemkt.digital"
//	  build_command   = ["npm", "run", "build:production"]
//	  verify_url      = "https://agendai.clubemkt.digital"
//	  required_vars   = ["VITE_SUPABASE_URL"]
//	  success_markers = ["✨", "Success"]
//	  branch          = "main"
//	}
type overridesFile struct {
	Environments []environmentBlock `hcl:"environment,block"`
}

type environmentBlock struct {
	Name           string    `hcl:"name,label"`
	Domain         *string   `hcl:"domain"`
	BuildCommand   *[]string `hcl:"build_command"`
	DeployCommand  *[]string `hcl:"deploy_command"`
	OutputDir      *string   `hcl:"output_dir"`
	SourceDir      *string   `hcl:"source_dir"`
	RequiredVars   *[]string `hcl:"required_vars"`
	VerifyURL      *string   `hcl:"verify_url"`
	SuccessMarkers *[]string `hcl:"success_markers"`
	Branch         *string   `hcl:"branch"`
	ProjectName    *string   `hcl:"project_name"`
}

// ApplyOverridesFile layers an HCL override file onto the registry. A
// missing file is not an error so the CLI can pass its default path
// unconditionally.
func (r *Registry) ApplyOverridesFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var overrides overridesFile
	if diags := gohcl.DecodeBody(file.Body, nil, &overrides); diags.HasErrors() {
		return fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}

	return r.apply(&overrides)
}

// ApplyOverrides parses and applies overrides from a byte slice.
func (r *Registry) ApplyOverrides(data []byte, filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse %s: %s", filename, diags.Error())
	}

	var overrides overridesFile
	if diags := gohcl.DecodeBody(file.Body, nil, &overrides); diags.HasErrors() {
		return fmt.Errorf("failed to decode %s: %s", filename, diags.Error())
	}

	return r.apply(&overrides)
}

func (r *Registry) apply(overrides *overridesFile) error {
	for _, block := range overrides.Environments {
		env, err := Parse(block.Name)
		if err != nil {
			return err
		}
		cfg := r.envs[env]

		if block.Domain != nil {
			cfg.Domain = *block.Domain
		}
		if block.BuildCommand != nil {
			cfg.BuildCommand = *block.BuildCommand
		}
		if block.DeployCommand != nil {
			cfg.Deploy.Command = *block.DeployCommand
		}
		if block.OutputDir != nil {
			cfg.OutputDir = *block.OutputDir
		}
		if block.SourceDir != nil {
			cfg.SourceDir = *block.SourceDir
		}
		if block.RequiredVars != nil {
			cfg.RequiredVars = *block.RequiredVars
		}
		if block.VerifyURL != nil {
			cfg.VerifyURL = *block.VerifyURL
		}
		if block.SuccessMarkers != nil {
			cfg.Deploy.SuccessMarkers = *block.SuccessMarkers
		}
		if block.Branch != nil {
			cfg.Deploy.Branch = *block.Branch
		}
		if block.ProjectName != nil {
			cfg.Deploy.ProjectName = *block.ProjectName
		}

		// The wrangler invocations carry the output dir, project and
		// branch as arguments, so they are rebuilt from the effective
		// fields. An explicit deploy_command wins over the rebuilt
		// default.
		if block.DeployCommand == nil {
			cfg.Deploy.Command = deployCommand(cfg.OutputDir, cfg.Deploy.ProjectName, cfg.Deploy.Branch)
		}
		cfg.Deploy.StatusCommand = statusCommand(cfg.Deploy.ProjectName)
	}
	return nil
}
