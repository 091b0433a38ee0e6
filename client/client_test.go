package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeOracle serves the oracle's HTTP surface with canned responses.
func fakeOracle(t *testing.T, createResp, runResp [2]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Status{Cursor: 3, Committed: 2, Reverted: 1, Backend: "wasm"})
	})

	mux.HandleFunc("POST /exec/create", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode create body: %v", err)
		}

		if body["containerID"] == "" || body["datasetRef"] == "" {
			t.Errorf("incomplete create body: %v", body)
		}

		json.NewEncoder(w).Encode(createResp)
	})

	mux.HandleFunc("POST /exec/run", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runResp)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func addr(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func TestNewClientFetchesStatus(t *testing.T) {
	server := fakeOracle(t, [2]string{}, [2]string{})

	c, err := NewClient(addr(server))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if c.Backend() != "wasm" {
		t.Errorf("expected backend wasm, got %q", c.Backend())
	}
}

func TestNewClientUnreachable(t *testing.T) {
	server := fakeOracle(t, [2]string{}, [2]string{})
	server.Close()

	if _, err := NewClient(addr(server)); err == nil {
		t.Fatal("expected error for unreachable oracle")
	}
}

func TestCreateExec(t *testing.T) {
	server := fakeOracle(t, [2]string{"SUCCESS", "exec-9"}, [2]string{})

	c, err := NewClient(addr(server))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	handle, err := c.CreateExec("unit-1", "QmSoft", "ds-1", "key")
	if err != nil {
		t.Fatalf("create exec: %v", err)
	}

	if handle != "exec-9" {
		t.Errorf("expected handle exec-9, got %q", handle)
	}
}

func TestCreateExecRefused(t *testing.T) {
	server := fakeOracle(t, [2]string{"FAILURE", "Dataset not found."}, [2]string{})

	c, err := NewClient(addr(server))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.CreateExec("unit-1", "QmSoft", "missing", "key")
	if err == nil || !strings.Contains(err.Error(), "Dataset not found.") {
		t.Errorf("expected refusal with message, got %v", err)
	}
}

func TestRunExec(t *testing.T) {
	const resultAddr = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

	server := fakeOracle(t, [2]string{}, [2]string{"Success", resultAddr})

	c, err := NewClient(addr(server))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ref, err := c.RunExec("exec-9", "pay-1")
	if err != nil {
		t.Fatalf("run exec: %v", err)
	}

	if ref != resultAddr {
		t.Errorf("expected %s, got %q", resultAddr, ref)
	}
}

func TestRunExecFailure(t *testing.T) {
	server := fakeOracle(t, [2]string{}, [2]string{"Failure", "Computation finished with errors."})

	c, err := NewClient(addr(server))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.RunExec("exec-9", "pay-1")
	if err == nil || !strings.Contains(err.Error(), "Computation finished with errors.") {
		t.Errorf("expected failure with reason, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	server := fakeOracle(t, [2]string{}, [2]string{})

	c, err := NewClient(addr(server))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if status.Cursor != 3 || status.Committed != 2 || status.Reverted != 1 {
		t.Errorf("unexpected status %+v", status)
	}
}
