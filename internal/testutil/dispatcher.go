package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Call is one request received by a FakeDispatcher.
type Call struct {
	Method string
	Path   string
	JobID  string
	Query  string
	Body   map[string]any
}

// Name returns a compact label such as "update-status:In Progress" or "mark-handled".
func (c Call) Name() string {
	switch {
	case strings.HasSuffix(c.Path, "/update-status"):
		s, _ := c.Body["status"].(string)
		return "update-status:" + s
	case strings.HasSuffix(c.Path, "/mark-handled"):
		return "mark-handled"
	case c.Path == "/events":
		return "event"
	case c.Path == "/jobs/next-pending":
		return "fetch"
	default:
		return c.Method + " " + c.Path
	}
}

// FakeDispatcher is an in-memory dispatcher served over httptest.
// Jobs are handed out in the order they were queued; every other request is recorded.
type FakeDispatcher struct {
	Server *httptest.Server
	Token  string

	mu       sync.Mutex
	jobs     [][]byte
	calls    []Call
	handled  map[string]bool
	statuses map[string][]string
	// fail maps a call name (see Call.Name) to the status code it should answer with.
	fail map[string]int
}

// NewFakeDispatcher starts a fake dispatcher requiring "Bearer <token>".
func NewFakeDispatcher(t TestingTB, token string) *FakeDispatcher {
	t.Helper()
	f := &FakeDispatcher{
		Token:    token,
		handled:  make(map[string]bool),
		statuses: make(map[string][]string),
		fail:     make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeDispatcher) URL() string { return f.Server.URL }

// Enqueue appends raw job objects to the pending queue.
func (f *FakeDispatcher) Enqueue(jobs ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobs...)
}

// FailWith makes every request whose Call.Name equals name answer with code.
func (f *FakeDispatcher) FailWith(name string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = code
}

// Calls returns a copy of the recorded calls, excluding fetches.
func (f *FakeDispatcher) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, 0, len(f.calls))
	for _, c := range f.calls {
		if c.Name() != "fetch" {
			out = append(out, c)
		}
	}
	return out
}

// CallsFor returns the call names recorded for a single job, in order.
func (f *FakeDispatcher) CallsFor(jobID string) []string {
	var names []string
	for _, c := range f.Calls() {
		if c.JobID == jobID {
			names = append(names, c.Name())
		}
	}
	return names
}

// Statuses returns the statuses recorded for a job, in order.
func (f *FakeDispatcher) Statuses(jobID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses[jobID]...)
}

// Handled reports whether mark-handled was received for the job.
func (f *FakeDispatcher) Handled(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handled[jobID]
}

// Pending returns the number of jobs still queued.
func (f *FakeDispatcher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *FakeDispatcher) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	call := Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &call.Body)
	}
	call.JobID = jobIDFor(call)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)

	if code, ok := f.fail[call.Name()]; ok {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":"injected failure"}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/jobs/next-pending":
		if len(f.jobs) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next := f.jobs[0]
		f.jobs = f.jobs[1:]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(next)
	case r.Method == http.MethodPost && r.URL.Path == "/events":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/update-status"):
		s, _ := call.Body["status"].(string)
		f.statuses[call.JobID] = append(f.statuses[call.JobID], s)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/mark-handled"):
		f.handled[call.JobID] = true
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func jobIDFor(c Call) string {
	if c.Path == "/events" {
		switch v := c.Body["job_id"].(type) {
		case string:
			return v
		default:
			return ""
		}
	}
	parts := strings.Split(strings.Trim(c.Path, "/"), "/")
	if len(parts) == 3 && parts[0] == "jobs" {
		return parts[1]
	}
	return ""
}
