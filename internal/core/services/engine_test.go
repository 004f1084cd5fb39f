package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"omvstack.control/internal/core/domain"
)

func TestEngine_CallDispatches(t *testing.T) {
	bus := &mockBus{}
	repo := &mockCallRepo{}
	engine := NewEngine(newMockLock(), bus, repo)

	var gotParams map[string]any
	err := engine.Register(&stubService{name: "Gitea", methods: map[string]Handler{
		"getStatus": func(ctx context.Context, params map[string]any) (any, error) {
			gotParams = params
			return domain.StackStatus{Running: true, Status: "running(2)"}, nil
		},
	}})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := engine.Call(context.Background(), "Gitea", "getStatus", map[string]any{"verbose": true})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if res["running"] != true || res["status"] != "running(2)" {
		t.Errorf("unexpected result: %v", res)
	}
	if gotParams["verbose"] != true {
		t.Errorf("params not forwarded: %v", gotParams)
	}

	events := bus.Events()
	if len(events) != 2 || events[0].Type != domain.EventCallStarted || events[1].Type != domain.EventCallFinished {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].CallID == "" || events[0].CallID != events[1].CallID {
		t.Errorf("events must share a call id: %+v", events)
	}

	if len(repo.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(repo.records))
	}
	rec := repo.records[0]
	if rec.Status != domain.CallStatusOK || rec.Service != "Gitea" || rec.Method != "getStatus" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Params != `{"verbose":true}` {
		t.Errorf("Params = %s", rec.Params)
	}
}

func TestEngine_UnknownServiceAndMethod(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	_ = engine.Register(&stubService{name: "Immich", methods: map[string]Handler{}})

	tests := []struct {
		name    string
		service string
		method  string
		code    int
	}{
		{"unknown service", "Nextcloud", "getStatus", domain.CodeServiceNotFound},
		{"unknown method", "Immich", "explode", domain.CodeMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Call(context.Background(), tt.service, tt.method, nil)
			var remoteErr *domain.RemoteError
			if !errors.As(err, &remoteErr) {
				t.Fatalf("expected RemoteError, got %v", err)
			}
			if remoteErr.Code != tt.code {
				t.Errorf("Code = %d, want %d", remoteErr.Code, tt.code)
			}
		})
	}
}

func TestEngine_HandlerErrorKeepsMessage(t *testing.T) {
	repo := &mockCallRepo{}
	engine := NewEngine(newMockLock(), nil, repo)
	msg := "Command '/bin/bash /usr/share/openmediavault/mkconf/immich install' returned non-zero exit status 1."
	_ = engine.Register(&stubService{name: "Immich", methods: map[string]Handler{
		"install": func(ctx context.Context, params map[string]any) (any, error) {
			return nil, errors.New(msg)
		},
		"validate": func(ctx context.Context, params map[string]any) (any, error) {
			return nil, paramErrorf("Invalid controller identifier")
		},
	}})

	_, err := engine.Call(context.Background(), "Immich", "install", nil)
	if err == nil || err.Error() != msg {
		t.Fatalf("error = %v, want %q", err, msg)
	}
	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Code != domain.CodeCommandFailed {
		t.Errorf("unexpected error: %#v", err)
	}
	if repo.records[0].Status != domain.CallStatusError || repo.records[0].Error != msg {
		t.Errorf("unexpected record: %+v", repo.records[0])
	}

	_, err = engine.Call(context.Background(), "Immich", "validate", nil)
	if !errors.As(err, &remoteErr) || remoteErr.Code != domain.CodeInvalidParams {
		t.Errorf("expected invalid params, got %#v", err)
	}
}

func TestEngine_MutatingCallsAreSerialised(t *testing.T) {
	engine := NewEngine(newMockLock(), nil, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	_ = engine.Register(&stubService{name: "Drone", methods: map[string]Handler{
		"install": func(ctx context.Context, params map[string]any) (any, error) {
			close(started)
			<-release
			return domain.ActionResult{Status: "installed"}, nil
		},
		"restart": func(ctx context.Context, params map[string]any) (any, error) {
			return domain.ActionResult{Status: "restarted"}, nil
		},
		"getStatus": func(ctx context.Context, params map[string]any) (any, error) {
			return domain.StackStatus{Status: "running(1)", Running: true}, nil
		},
	}})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := engine.Call(context.Background(), "Drone", "install", nil); err != nil {
			t.Errorf("install error = %v", err)
		}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("install did not start")
	}

	_, err := engine.Call(context.Background(), "Drone", "restart", nil)
	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Code != domain.CodeBusy {
		t.Fatalf("expected busy error, got %v", err)
	}
	if remoteErr.Message != "Drone is busy with install" {
		t.Errorf("Message = %q", remoteErr.Message)
	}

	// Read-only methods are not blocked.
	if _, err := engine.Call(context.Background(), "Drone", "getStatus", nil); err != nil {
		t.Errorf("getStatus error = %v", err)
	}

	close(release)
	wg.Wait()

	if _, err := engine.Call(context.Background(), "Drone", "restart", nil); err != nil {
		t.Errorf("restart after install error = %v", err)
	}
}

func TestEngine_LockFailure(t *testing.T) {
	lock := newMockLock()
	lock.err = errors.New("redis down")
	engine := NewEngine(lock, nil, nil)
	called := false
	_ = engine.Register(&stubService{name: "Gitea", methods: map[string]Handler{
		"remove": func(ctx context.Context, params map[string]any) (any, error) {
			called = true
			return nil, nil
		},
	}})

	_, err := engine.Call(context.Background(), "Gitea", "remove", nil)
	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Code != domain.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if called {
		t.Error("handler must not run without the lock")
	}
}

func TestEngine_RegisterDuplicate(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	if err := engine.Register(&stubService{name: "Immich"}); err != nil {
		t.Fatal(err)
	}
	if err := engine.Register(&stubService{name: "Immich"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := engine.Register(&stubService{}); err == nil {
		t.Error("expected error for empty name")
	}

	if got := engine.Services(); len(got) != 1 || got[0] != "Immich" {
		t.Errorf("Services() = %v", got)
	}
}

func TestNormalize(t *testing.T) {
	res, err := normalize(ShowResult{Command: "storcli /call show", ReturnCode: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res["returncode"] != float64(2) || res["command"] != "storcli /call show" {
		t.Errorf("normalize() = %v", res)
	}

	if _, err := normalize([]string{"a"}); err == nil {
		t.Error("expected error for non-object result")
	}

	empty, err := normalize(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("normalize(nil) = %v, %v", empty, err)
	}
}
