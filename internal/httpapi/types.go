package httpapi

import "github.com/harun/wabridge/internal/session"

// connectResponse is returned by the connect endpoint.
type connectResponse struct {
	Connected   bool   `json:"connected"`
	PairingCode string `json:"pairing_code,omitempty"`
	Message     string `json:"message,omitempty"`
}

// sendRequest is the body of the send endpoint.
type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// sendDocumentRequest is the body of the send-document endpoint.
// DocumentData is a base64 data URI (data:application/pdf;base64,...).
type sendDocumentRequest struct {
	To           string `json:"to"`
	Message      string `json:"message"`
	DocumentData string `json:"document_data"`
	Filename     string `json:"filename"`
}

// sendResponse acknowledges a successful send.
type sendResponse struct {
	Success bool `json:"success"`
}

// sessionsResponse wraps the session listing.
type sessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error     string `json:"error"`
	Connected *bool  `json:"connected,omitempty"`
}
