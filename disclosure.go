package attrmail

import (
	"context"
	"time"

	"github.com/attrmail/client-go/internal/pkgapi"
)

// SessionState is the lifecycle state of a disclosure session.
type SessionState int

const (
	// StateInitialized means the session exists but no wallet has
	// scanned the session pointer yet.
	StateInitialized SessionState = iota
	// StateConnected means a wallet picked up the session and the user
	// is reviewing the disclosure request.
	StateConnected
	// StateDone means the user approved and the coordinator holds a
	// verified disclosure result.
	StateDone
	// StateCancelled means the user declined the disclosure.
	StateCancelled
	// StateFailed means the session timed out or failed server-side.
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionPointer is the handle a wallet app needs to pick up a disclosure
// session. The caller renders it as a QR code or mobile deep link.
type SessionPointer struct {
	URL string
	QR  string
}

// DisclosureSession drives one interactive disclosure against the
// coordinator. A session yields at most one credential; failed or
// cancelled sessions are never retried internally, the caller starts a
// fresh session if it wants another attempt.
type DisclosureSession struct {
	api     *pkgapi.Client
	token   string
	pointer SessionPointer
	state   SessionState
	onState func(SessionState)

	pollInterval    time.Duration
	maxPollInterval time.Duration
}

const (
	defaultPollInterval = 500 * time.Millisecond
	maxPollInterval     = 3 * time.Second
)

// disclosureValidity returns how many seconds a credential requested now
// should stay usable: until the next 04:00 local-time boundary. Keys are
// released per timestamp epoch, so a credential aligned to the epoch
// boundary can be reused for every message sealed within the same epoch.
func disclosureValidity(now time.Time) int64 {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), 4, 0, 0, 0, now.Location())
	if !boundary.After(now) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return int64(boundary.Sub(now) / time.Second)
}

// startDisclosure opens a session requesting the given conjunction.
func startDisclosure(ctx context.Context, api *pkgapi.Client, con Conjunction, now time.Time, onState func(SessionState)) (*DisclosureSession, error) {
	req := &pkgapi.StartSessionRequest{
		Conjunction: make([]pkgapi.AttributeRequest, 0, len(con)),
		Validity:    disclosureValidity(now),
	}
	for _, attr := range con {
		req.Conjunction = append(req.Conjunction, pkgapi.AttributeRequest{
			Type:  attr.Type,
			Value: attr.Value,
		})
	}

	resp, err := api.StartSession(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	s := &DisclosureSession{
		api:   api,
		token: resp.Token,
		pointer: SessionPointer{
			URL: resp.SessionPointer.URL,
			QR:  resp.SessionPointer.QR,
		},
		state:           StateInitialized,
		onState:         onState,
		pollInterval:    defaultPollInterval,
		maxPollInterval: maxPollInterval,
	}
	if onState != nil {
		onState(StateInitialized)
	}
	return s, nil
}

// Pointer returns the session pointer for the wallet handoff.
func (s *DisclosureSession) Pointer() SessionPointer {
	return s.pointer
}

// State returns the last observed session state.
func (s *DisclosureSession) State() SessionState {
	return s.state
}

// Await polls the coordinator until the session reaches a terminal state
// and then fetches the credential. The poll interval grows while the
// session sits untouched and resets when the wallet connects, so the
// approval itself is picked up quickly.
func (s *DisclosureSession) Await(ctx context.Context) (string, error) {
	interval := s.pollInterval
	for {
		status, err := s.api.SessionStatus(ctx, s.token)
		if err != nil {
			return "", wrapError(err)
		}

		switch status {
		case pkgapi.StatusInitialized:
			s.notify(StateInitialized)
		case pkgapi.StatusConnected:
			if s.state != StateConnected {
				interval = s.pollInterval
			}
			s.notify(StateConnected)
		case pkgapi.StatusDone:
			s.notify(StateDone)
			return s.fetchCredential(ctx)
		case pkgapi.StatusCancelled:
			s.notify(StateCancelled)
			return "", &DisclosureError{State: StateCancelled, Cancelled: true}
		case pkgapi.StatusTimeout:
			s.notify(StateFailed)
			return "", &DisclosureError{State: StateFailed, Message: "session timed out"}
		default:
			s.notify(StateFailed)
			return "", &DisclosureError{State: StateFailed, Message: "unexpected session status " + status}
		}

		select {
		case <-ctx.Done():
			return "", &DisclosureError{State: s.state, Message: "context cancelled", Err: ctx.Err()}
		case <-time.After(interval):
		}

		interval = interval * 2
		if interval > s.maxPollInterval {
			interval = s.maxPollInterval
		}
	}
}

func (s *DisclosureSession) fetchCredential(ctx context.Context) (string, error) {
	credential, err := s.api.SessionResult(ctx, s.token)
	if err != nil {
		return "", wrapError(err)
	}
	return credential, nil
}

func (s *DisclosureSession) notify(state SessionState) {
	if s.state == state {
		return
	}
	s.state = state
	if s.onState != nil {
		s.onState(state)
	}
}
