package resilience

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		text string
		want ErrorKind
	}{
		{"connect ETIMEDOUT 104.16.1.1:443", KindTransient},
		{"error: 503 Service Temporarily Unavailable", KindTransient},
		{"API rate limit exceeded, retry later", KindTransient},
		{"socket hang up", KindTransient},
		{"sh: wrangler: command not found", KindDependency},
		{"Error: Cannot find module 'vite'", KindDependency},
		{"npm ERR! missing script: build:production", KindConfiguration},
		{"ENOENT: no such file or directory, open 'package.json'", KindConfiguration},
		{"FATAL ERROR: JavaScript heap out of memory", KindResource},
		{"ENOSPC: no space left on device", KindResource},
		{"Error: Not logged in. Please run wrangler login", KindAuthentication},
		{"something completely different", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text[:min(len(tt.text), 30)], func(t *testing.T) {
			if got := ClassifyText(tt.text); got != tt.want {
				t.Errorf("ClassifyText(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyUnwrapsOpError(t *testing.T) {
	op := NewOpError(KindAuthentication, "not logged in", "", nil)
	wrapped := fmt.Errorf("deploy failed: %w", op)

	if got := Classify(wrapped); got != KindAuthentication {
		t.Errorf("Classify(wrapped) = %s, want authentication", got)
	}
	if Retryable(wrapped) {
		t.Error("authentication errors must not be retryable")
	}
	if !Retryable(NewOpError(KindTransient, "timeout", "", nil)) {
		t.Error("transient errors must be retryable")
	}
}

func TestNewOpErrorClassifiesFromRawOutput(t *testing.T) {
	op := NewOpError(KindUnknown, "build command failed", "FATAL ERROR: JavaScript heap out of memory", nil)
	if op.Kind != KindResource {
		t.Errorf("expected resource kind from raw output, got %s", op.Kind)
	}
}

func TestHandleErrorReport(t *testing.T) {
	h := NewHandler(DefaultRetryConfig(), nil)
	h.Ledger.Append("good1", "https://agendai.clubemkt.digital", true)
	h.Ledger.Append("bad1", "https://deploy-bad1.pages.dev", false)

	err := NewOpError(KindUnknown, "deploy command failed", "sh: wrangler: command not found", errors.New("exit status 127"))
	report := h.HandleError(err, "deploy")

	if report.Kind != KindDependency {
		t.Errorf("kind = %s, want dependency", report.Kind)
	}
	if report.Stage != "deploy" {
		t.Errorf("stage = %q", report.Stage)
	}
	if report.Rollback == nil || report.Rollback.Target.ID != "good1" {
		t.Errorf("expected rollback to good1, got %+v", report.Rollback)
	}

	hasInstall := false
	hasRollback := false
	for _, a := range report.Actions {
		if a.Type == ActionManual && strings.Contains(a.Command, "npm install") {
			hasInstall = true
		}
		if a.Type == ActionRollback {
			hasRollback = true
		}
	}
	if !hasInstall {
		t.Errorf("dependency error should suggest npm install, actions: %+v", report.Actions)
	}
	if !hasRollback {
		t.Errorf("report should offer rollback when history has a prior success")
	}

	for _, want := range []string{"deploy", "command not found", "Suggested next steps"} {
		if !strings.Contains(report.Report, want) {
			t.Errorf("rendered report missing %q:\n%s", want, report.Report)
		}
	}
}

func TestHandleErrorTransientSuggestsRetry(t *testing.T) {
	h := NewHandler(DefaultRetryConfig(), nil)

	report := h.HandleError(NewOpError(KindTransient, "network timeout", "", nil), "build")
	if len(report.Actions) == 0 || report.Actions[0].Type != ActionRetry {
		t.Errorf("transient failure should propose retry first, got %+v", report.Actions)
	}
	if !report.Actions[0].Automated {
		t.Error("retry action should be marked automated")
	}
	if report.Rollback != nil {
		t.Error("no rollback should be offered with an empty ledger")
	}
}
