package resilience

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// RecoveryActionType enumerates what an operator (or the tool itself) can
// do about a failure.
type RecoveryActionType string

const (
	ActionRetry    RecoveryActionType = "retry"
	ActionRollback RecoveryActionType = "rollback"
	ActionManual   RecoveryActionType = "manual"
	ActionSkip     RecoveryActionType = "skip"
)

// RecoveryAction is one concrete suggestion produced from a classified
// error.
type RecoveryAction struct {
	Type        RecoveryActionType
	Description string
	Command     string
	Automated   bool
}

// ErrorReport is the operator-facing product of HandleError.
type ErrorReport struct {
	Stage    string
	Kind     ErrorKind
	Report   string
	Actions  []RecoveryAction
	Rollback *Rollback
}

// Handler is the deployment error handler: retry executor, ledger and
// report generator behind one dependency-injected instance. Each executor
// owns its handler; ledgers are never shared across instances.
type Handler struct {
	Retrier *Retrier
	Ledger  *Ledger

	logger hclog.Logger
}

// NewHandler builds a handler with the given retry configuration.
func NewHandler(cfg RetryConfig, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		Retrier: NewRetrier(cfg, logger),
		Ledger:  NewLedger(),
		logger:  logger,
	}
}

// HandleError classifies err, renders a multi-line report and proposes
// recovery actions. When the ledger holds a prior successful deployment,
// a rollback action is included.
func (h *Handler) HandleError(err error, stage string) *ErrorReport {
	kind := Classify(err)
	actions := actionsFor(kind)

	report := &ErrorReport{
		Stage:   stage,
		Kind:    kind,
		Actions: actions,
	}

	if rb, rbErr := h.Ledger.RollbackTarget(); rbErr == nil {
		report.Rollback = rb
		report.Actions = append(report.Actions, RecoveryAction{
			Type:        ActionRollback,
			Description: rb.Message,
			Command:     rb.Command,
			Automated:   false,
		})
	}

	report.Report = renderReport(err, stage, kind, report)
	h.logger.Debug("generated error report", "stage", stage, "kind", kind, "actions", len(report.Actions))
	return report
}

func actionsFor(kind ErrorKind) []RecoveryAction {
	switch kind {
	case KindTransient:
		return []RecoveryAction{{
			Type:        ActionRetry,
			Description: "transient failure; retry the deployment",
			Command:     "agendai-deploy deploy <environment>",
			Automated:   true,
		}}
	case KindConfiguration:
		return []RecoveryAction{{
			Type:        ActionManual,
			Description: "fix the missing file, script or variable named in the error, then re-run",
			Automated:   false,
		}}
	case KindDependency:
		return []RecoveryAction{{
			Type:        ActionManual,
			Description: "install the missing dependencies",
			Command:     "npm install",
			Automated:   false,
		}}
	case KindResource:
		return []RecoveryAction{{
			Type:        ActionManual,
			Description: "free disk space or raise the Node heap limit (NODE_OPTIONS=--max-old-space-size=4096), then re-run",
			Automated:   false,
		}}
	case KindAuthentication:
		return []RecoveryAction{{
			Type:        ActionManual,
			Description: "re-authenticate the platform CLI",
			Command:     "npx wrangler login",
			Automated:   false,
		}}
	default:
		return []RecoveryAction{{
			Type:        ActionManual,
			Description: "inspect the raw output below and re-run with --verbose for details",
			Automated:   false,
		}}
	}
}

var kindCauses = map[ErrorKind]string{
	KindTransient:      "temporary network or platform unavailability",
	KindConfiguration:  "a required file, script or variable is missing",
	KindDependency:     "a build tool or package is not installed",
	KindResource:       "the machine ran out of memory or disk space",
	KindAuthentication: "the platform CLI is not logged in",
	KindUnknown:        "cause could not be determined from the output",
}

func renderReport(err error, stage string, kind ErrorKind, report *ErrorReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Deployment failed during %s\n", stage)
	fmt.Fprintf(&sb, "  Error:        %v\n", err)
	fmt.Fprintf(&sb, "  Likely cause: %s (%s)\n", kindCauses[kind], kind)

	var opErr *OpError
	if errors.As(err, &opErr) && opErr.RawOutput != "" {
		out := strings.TrimSpace(opErr.RawOutput)
		if len(out) > 800 {
			out = out[:800] + "..."
		}
		fmt.Fprintf(&sb, "  Output:\n%s\n", indent(out, "    "))
	}

	sb.WriteString("  Suggested next steps:\n")
	for i, action := range report.Actions {
		fmt.Fprintf(&sb, "    %d. [%s] %s", i+1, action.Type, action.Description)
		if action.Command != "" {
			fmt.Fprintf(&sb, " (run: %s)", action.Command)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
