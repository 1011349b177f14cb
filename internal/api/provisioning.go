package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/display"
)

// EventNetworkState is the broadcast channel for connectivity transitions.
const EventNetworkState = "network.state"

// connectRequest is the body of POST /connect.
type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	DeviceID string              `json:"device_id"`
	Version  string              `json:"version"`
	Network  connectivity.Status `json:"network"`
	Display  *display.Snapshot   `json:"display,omitempty"`
}

// requireProvisioning writes 409 and returns false outside PROVISIONING.
func (s *Server) requireProvisioning(w http.ResponseWriter) bool {
	if st := s.network.Status().State; st != connectivity.Provisioning {
		writeConflict(w, "only available in provisioning mode, current state is "+st.String())
		return false
	}
	return true
}

// handleScan lists visible networks as a bare array of {ssid, rssi, auth}.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvisioning(w) {
		return
	}

	networks, err := s.network.Scan(r.Context())
	if err != nil {
		s.logger.Error("wifi scan failed", "error", err)
		writeInternalError(w, "scan failed")
		return
	}
	if networks == nil {
		networks = []connectivity.Network{}
	}

	writeJSON(w, http.StatusOK, networks)
}

// handleConnect stores station credentials. On success the node reboots
// after its grace period and joins the network.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvisioning(w) {
		return
	}

	req, err := decodeConnectRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	err = s.network.SubmitCredentials(r.Context(), req.SSID, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, connectivity.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, connectivity.ErrNotProvisioning):
		writeConflict(w, err.Error())
		return
	default:
		s.logger.Error("saving credentials failed", "error", err)
		writeInternalError(w, "failed to save credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "credentials saved, rebooting",
		"ssid":    req.SSID,
	})
}

// decodeConnectRequest accepts a JSON body or an HTML form post.
func decodeConnectRequest(r *http.Request) (connectRequest, error) {
	var req connectRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // Empty type falls through to JSON
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.SSID = r.PostFormValue("ssid")
		req.Password = r.PostFormValue("password")
		return req, nil
	default:
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
}

// handleStatus reports connectivity and, when available, the latest display frame.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		DeviceID: s.deviceID,
		Version:  s.version,
		Network:  s.network.Status(),
	}
	if s.display != nil {
		snap := s.display.Capture()
		resp.Display = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReset forgets the stored network and reboots into provisioning.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.network.ForgetNetwork(r.Context()); err != nil {
		// The reboot is already scheduled; report the partial failure.
		s.logger.Error("forgetting network failed", "error", err)
		writeInternalError(w, "failed to clear stored credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "network forgotten, rebooting",
	})
}
