package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/clubemkt/agendai-deploy/pkg/statusreport"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	pubErr   error
	closed   bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Flush() error { return nil }
func (f *fakeConn) Close()       { f.closed = true }

func TestNotifyPublishesEvent(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc, logger: hclog.NewNullLogger()}

	update := statusreport.Update{
		Status:      statusreport.StatusFailure,
		Environment: "staging",
		Description: "deploy failed",
		Error:       "exit status 1",
	}
	if err := p.Notify(context.Background(), update); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(fc.subjects) != 1 || fc.subjects[0] != "agendai.deploy.staging" {
		t.Errorf("unexpected subjects %v", fc.subjects)
	}

	var ev Event
	if err := json.Unmarshal(fc.payloads[0], &ev); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if ev.Status != "failure" || ev.Environment != "staging" || ev.Error != "exit status 1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.EmittedAt.IsZero() {
		t.Error("EmittedAt should be set")
	}
}

func TestNotifyPublishError(t *testing.T) {
	p := &Publisher{nc: &fakeConn{pubErr: errors.New("connection closed")}, logger: hclog.NewNullLogger()}
	if err := p.Notify(context.Background(), statusreport.Update{Environment: "production"}); err == nil {
		t.Error("expected publish error to surface")
	}
}

func TestClose(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc, logger: hclog.NewNullLogger()}
	p.Close()
	if !fc.closed {
		t.Error("Close should close the connection")
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("production"); got != "agendai.deploy.production" {
		t.Errorf("Subject = %q", got)
	}
}
