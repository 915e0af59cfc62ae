package resilience

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Record is one append-only entry in the deployment ledger.
type Record struct {
	ID        string
	URL       string
	Timestamp time.Time
	Success   bool
}

// Ledger is the in-memory deployment history for one executor instance.
// It lives for the process lifetime only; rollback history does not
// survive restarts.
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records a deployment outcome. Entries keep insertion order,
// oldest first.
func (l *Ledger) Append(id, url string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{
		ID:        id,
		URL:       url,
		Timestamp: time.Now(),
		Success:   success,
	})
}

// History returns a copy of the ledger, oldest first.
func (l *Ledger) History() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Rollback describes the most recent known-good deployment and how to
// restore it.
type Rollback struct {
	Target      Record
	PreviousURL string
	Command     string
	Message     string
}

// RollbackTarget scans the ledger backward for the latest successful
// deployment that is not the current one and describes how to restore it.
// The most recent entry is treated as the current deployment, so it is
// never a rollback target even when it succeeded.
func (l *Ledger) RollbackTarget() (*Rollback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) == 0 {
		return nil, fmt.Errorf("no deployments recorded in this session")
	}

	for i := len(l.records) - 2; i >= 0; i-- {
		rec := l.records[i]
		if !rec.Success {
			continue
		}
		return &Rollback{
			Target:      rec,
			PreviousURL: rec.URL,
			Command:     fmt.Sprintf("npx wrangler pages deployment rollback %s", rec.ID),
			Message:     fmt.Sprintf("roll back to deployment %s (%s, deployed %s)", rec.ID, rec.URL, rec.Timestamp.Format(time.RFC3339)),
		}, nil
	}

	// The current deployment may itself be the only success on record.
	if last := l.records[len(l.records)-1]; last.Success && len(l.records) == 1 {
		return nil, fmt.Errorf("only the current deployment is recorded; nothing to roll back to")
	}
	return nil, fmt.Errorf("no prior successful deployment found in %d recorded deployment(s)", len(l.records))
}

// FormatHistory renders the ledger for the operator.
func FormatHistory(records []Record) string {
	if len(records) == 0 {
		return "no deployments recorded in this session\n"
	}
	var sb strings.Builder
	for i, rec := range records {
		status := "failed"
		if rec.Success {
			status = "success"
		}
		fmt.Fprintf(&sb, "%2d. [%s] %s  %s  %s\n", i+1, status, rec.Timestamp.Format(time.RFC3339), rec.ID, rec.URL)
	}
	return sb.String()
}
