package docker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"craftfleet/internal/fleet"
)

const testAPIVersion = "1.47"

// engine is a minimal Docker Engine API for one disposable container whose
// exit is controlled by the test.
type engine struct {
	started chan struct{}
	exit    chan struct{}
	removed atomic.Int32
	once    sync.Once
}

func newEngine(t *testing.T) (*engine, *Runtime) {
	t.Helper()
	e := &engine{started: make(chan struct{}), exit: make(chan struct{})}

	prefix := "/v" + testAPIVersion
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix+"/containers/create", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"Id":"abc","Warnings":[]}`))
	})
	mux.HandleFunc("POST "+prefix+"/containers/{id}/start", func(w http.ResponseWriter, _ *http.Request) {
		e.once.Do(func() { close(e.started) })
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST "+prefix+"/containers/{id}/wait", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-e.exit:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"StatusCode":0}`))
	})
	mux.HandleFunc("GET "+prefix+"/containers/{id}/logs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte("restored\n"))
	})
	mux.HandleFunc("DELETE "+prefix+"/containers/{id}", func(w http.ResponseWriter, _ *http.Request) {
		e.removed.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cli, err := client.NewClientWithOpts(
		client.WithHTTPClient(srv.Client()),
		client.WithHost(srv.URL),
		client.WithVersion(testAPIVersion),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return e, NewRuntimeFromClient(cli)
}

func TestContainerRunOutlivesCancelledContext(t *testing.T) {
	e, rt := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		res fleet.ExecResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := rt.ContainerRun(ctx, fleet.ContainerRunConfig{Name: "YC-survival-env2_restore", Image: "restic"})
		done <- result{res, err}
	}()

	select {
	case <-e.started:
	case <-time.After(5 * time.Second):
		t.Fatal("container never started")
	}
	cancel()

	select {
	case r := <-done:
		t.Fatalf("ContainerRun returned while the container was running: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	if n := e.removed.Load(); n != 0 {
		t.Fatalf("container removed %d time(s) while running", n)
	}

	close(e.exit)
	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ContainerRun did not return after the container exited")
	}
	if r.err != nil {
		t.Fatalf("ContainerRun() error = %v", r.err)
	}
	if r.res.ExitCode != 0 || string(r.res.Output) != "restored\n" {
		t.Fatalf("ContainerRun() = %+v", r.res)
	}
	if n := e.removed.Load(); n != 1 {
		t.Fatalf("removals = %d, want 1", n)
	}
}
