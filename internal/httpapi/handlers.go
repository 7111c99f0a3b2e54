package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/harun/wabridge/internal/supervisor"
)

// phoneRe matches a destination number with country code, optionally
// prefixed with +.
var phoneRe = regexp.MustCompile(`^\+?\d{10,15}$`)

// handleConnect starts (or resumes) a session and blocks until a
// pairing code or a live connection is available.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.supervisor.WaitForPairing(r.Context(), id)
	if err != nil {
		if errors.Is(err, supervisor.ErrPairingTimeout) {
			connected := false
			writeJSON(w, http.StatusRequestTimeout, errorResponse{
				Error:     "pairing code generation timed out, please try again",
				Connected: &connected,
			})
			return
		}
		s.logger.Error().Str("session_id", id).Err(err).Msg("Connect failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to connect"})
		return
	}

	if result.Connected {
		writeJSON(w, http.StatusOK, connectResponse{
			Connected: true,
			Message:   fmt.Sprintf("session %s is connected", id),
		})
		return
	}

	writeJSON(w, http.StatusOK, connectResponse{
		Connected:   false,
		PairingCode: result.PairingCode,
	})
}

// handleSend sends a text message from a session.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.To == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `missing "to" or "message"`})
		return
	}
	if !phoneRe.MatchString(req.To) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid phone number format"})
		return
	}

	if err := s.supervisor.SendText(r.Context(), id, req.To, req.Message); err != nil {
		s.writeSendError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{Success: true})
}

// handleSendDocument sends a document from a session. The payload
// arrives as a base64 data URI.
func (s *Server) handleSendDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req sendDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.To == "" || req.DocumentData == "" || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `missing "to", "document_data" or "filename"`})
		return
	}
	if !phoneRe.MatchString(req.To) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid phone number format"})
		return
	}

	data, err := decodeDataURI(req.DocumentData)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.supervisor.SendDocument(r.Context(), id, req.To, data, req.Filename, req.Message); err != nil {
		s.writeSendError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{Success: true})
}

func (s *Server) writeSendError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, supervisor.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, supervisor.ErrRecipientNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Str("session_id", id).Err(err).Msg("Send failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// handleStatus reports session state. Reading the status of a session
// with credentials on disk triggers a lazy background reconnect.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, s.supervisor.Status(id))
}

// handleListSessions lists every session in the registry.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: s.supervisor.List()})
}

// handleDeleteSession tears down and erases a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.supervisor.Delete(id); err != nil {
		if errors.Is(err, supervisor.ErrReservedSession) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error().Str("session_id", id).Err(err).Msg("Delete failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to delete session"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeDataURI extracts the payload from a data:...;base64,... URI.
func decodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, fmt.Errorf("invalid document_data format, must be a base64 data URI")
	}
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return nil, fmt.Errorf("invalid document_data format, missing payload")
	}
	data, err := base64.StdEncoding.DecodeString(uri[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid document_data payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document payload is empty")
	}
	return data, nil
}
