package attrmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attrmail/client-go/internal/pkgapi"
)

func TestDisclosureValidity(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{
			name: "before boundary",
			now:  time.Date(2026, 3, 10, 3, 0, 0, 0, loc),
			want: 3600,
		},
		{
			name: "exactly at boundary",
			now:  time.Date(2026, 3, 10, 4, 0, 0, 0, loc),
			want: 24 * 3600,
		},
		{
			name: "after boundary",
			now:  time.Date(2026, 3, 10, 5, 0, 0, 0, loc),
			want: 23 * 3600,
		},
		{
			name: "just before midnight",
			now:  time.Date(2026, 3, 10, 23, 59, 0, 0, loc),
			want: 4*3600 + 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := disclosureValidity(tt.now); got != tt.want {
				t.Errorf("disclosureValidity() = %d, want %d", got, tt.want)
			}
		})
	}
}

// disclosureServer simulates the coordinator: one session, a scripted
// status sequence, and a fixed credential.
func disclosureServer(t *testing.T, statuses []string, credential string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/request/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("start method = %s, want POST", r.Method)
		}
		var req pkgapi.StartSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode start request: %v", err)
		}
		if req.Validity <= 0 {
			t.Errorf("validity = %d, want positive", req.Validity)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionPtr": map[string]string{"u": "https://wallet.example/session/1"},
			"token":      "tok-1",
		})
	})
	mux.HandleFunc("/v2/request/status/tok-1", func(w http.ResponseWriter, r *http.Request) {
		i := int(polls.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		fmt.Fprintf(w, "%q", statuses[i])
	})
	mux.HandleFunc("/v2/request/jwt/tok-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, credential)
	})

	return httptest.NewServer(mux), &polls
}

func newTestSession(t *testing.T, srv *httptest.Server, onState func(SessionState)) *DisclosureSession {
	t.Helper()
	api, err := pkgapi.New(srv.URL)
	if err != nil {
		t.Fatalf("pkgapi.New() error = %v", err)
	}
	con := Conjunction{{Type: "attrmail.user.email", Value: "bob@example.org"}}
	session, err := startDisclosure(context.Background(), api, con, time.Now(), onState)
	if err != nil {
		t.Fatalf("startDisclosure() error = %v", err)
	}
	// Fast polling keeps the test quick.
	session.pollInterval = time.Millisecond
	session.maxPollInterval = 2 * time.Millisecond
	return session
}

func TestDisclosureSession_Success(t *testing.T) {
	srv, _ := disclosureServer(t,
		[]string{"INITIALIZED", "CONNECTED", "DONE"}, "the-credential")
	defer srv.Close()

	var states []SessionState
	session := newTestSession(t, srv, func(s SessionState) {
		states = append(states, s)
	})

	if session.Pointer().URL != "https://wallet.example/session/1" {
		t.Errorf("pointer URL = %q", session.Pointer().URL)
	}

	credential, err := session.Await(context.Background())
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if credential != "the-credential" {
		t.Errorf("credential = %q, want the-credential", credential)
	}

	want := []SessionState{StateInitialized, StateConnected, StateDone}
	if len(states) != len(want) {
		t.Fatalf("state sequence = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestDisclosureSession_Cancelled(t *testing.T) {
	srv, _ := disclosureServer(t, []string{"INITIALIZED", "CANCELLED"}, "")
	defer srv.Close()

	session := newTestSession(t, srv, nil)
	_, err := session.Await(context.Background())
	if !errors.Is(err, ErrDisclosureCancelled) {
		t.Errorf("error = %v, want ErrDisclosureCancelled", err)
	}
	if session.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", session.State())
	}

	var dErr *DisclosureError
	if !errors.As(err, &dErr) || !dErr.Cancelled {
		t.Errorf("error = %#v, want *DisclosureError with Cancelled", err)
	}
}

func TestDisclosureSession_Timeout(t *testing.T) {
	srv, _ := disclosureServer(t, []string{"TIMEOUT"}, "")
	defer srv.Close()

	session := newTestSession(t, srv, nil)
	_, err := session.Await(context.Background())
	if !errors.Is(err, ErrDisclosureFailed) {
		t.Errorf("error = %v, want ErrDisclosureFailed", err)
	}
	if errors.Is(err, ErrDisclosureCancelled) {
		t.Error("timeout must not look like a user cancellation")
	}
}

func TestDisclosureSession_ContextCancelled(t *testing.T) {
	srv, _ := disclosureServer(t, []string{"INITIALIZED"}, "")
	defer srv.Close()

	session := newTestSession(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Await(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
}

func TestSessionState_String(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{StateInitialized, "initialized"},
		{StateConnected, "connected"},
		{StateDone, "done"},
		{StateCancelled, "cancelled"},
		{StateFailed, "failed"},
		{SessionState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("SessionState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
