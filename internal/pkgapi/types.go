package pkgapi

// AttributeRequest is the wire form of one requested attribute.
type AttributeRequest struct {
	Type  string `json:"t"`
	Value string `json:"v,omitempty"`
}

// Parameters represents the /v2/parameters response: the public
// parameters of the key generator under which all sealing happens.
type Parameters struct {
	FormatVersion int    `json:"formatVersion"`
	PublicKey     string `json:"publicKey"` // URL-safe base64
}

// StartSessionRequest represents the POST /v2/request/start request.
type StartSessionRequest struct {
	Conjunction []AttributeRequest `json:"con"`
	Validity    int64              `json:"validity"` // seconds the session stays open
}

// SessionPointer is rendered as a QR code or mobile deep link by the UI
// collaborator. Opaque to this package beyond transport.
type SessionPointer struct {
	URL string `json:"u"`
	QR  string `json:"qr,omitempty"`
}

// StartSessionResponse represents the POST /v2/request/start response.
type StartSessionResponse struct {
	SessionPointer SessionPointer `json:"sessionPtr"`
	Token          string         `json:"token"`
}

// Session status strings reported by the coordinator.
const (
	StatusInitialized = "INITIALIZED"
	StatusConnected   = "CONNECTED"
	StatusDone        = "DONE"
	StatusCancelled   = "CANCELLED"
	StatusTimeout     = "TIMEOUT"
)

// KeyResponse represents the /v2/request/key/{timestamp} response.
// Key is only meaningful when Status is DONE and ProofStatus is VALID.
type KeyResponse struct {
	Status      string `json:"status"`
	ProofStatus string `json:"proofStatus"`
	Key         string `json:"key"` // URL-safe base64
}
