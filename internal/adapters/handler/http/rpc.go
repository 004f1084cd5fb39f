package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
)

const rpcTokenHeader = "X-RPC-Token"

// maxRPCBody bounds the request body of one remote call.
const maxRPCBody = 1 << 20

// RPCResponse is the envelope of POST /rpc. Exactly one of Response and Error
// is set.
type RPCResponse struct {
	Response map[string]any     `json:"response"`
	Error    *domain.RemoteError `json:"error"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeRPC(w, http.StatusUnauthorized, RPCResponse{
			Error: domain.NewRemoteError(domain.CodeUnauthenticated, "invalid rpc token"),
		})
		return
	}

	var req domain.CallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRPCBody))
	if err := dec.Decode(&req); err != nil {
		writeRPC(w, http.StatusBadRequest, RPCResponse{
			Error: domain.NewRemoteError(domain.CodeInvalidParams, "invalid request body: "+err.Error()),
		})
		return
	}
	if req.Service == "" || req.Method == "" {
		writeRPC(w, http.StatusBadRequest, RPCResponse{
			Error: domain.NewRemoteError(domain.CodeInvalidParams, "service and method are required"),
		})
		return
	}

	res, err := s.engine.Call(r.Context(), req.Service, req.Method, req.Params)
	if err != nil {
		var remote *domain.RemoteError
		if !errors.As(err, &remote) {
			remote = domain.NewRemoteError(domain.CodeInternal, err.Error())
		}
		writeRPC(w, http.StatusOK, RPCResponse{Error: remote})
		return
	}
	if res == nil {
		res = map[string]any{}
	}
	writeRPC(w, http.StatusOK, RPCResponse{Response: res})
}

// authorized checks the shared secret, sent either as X-RPC-Token or as a
// bearer token.
func (s *Server) authorized(r *http.Request) bool {
	if s.opts.RPCSecret == "" {
		return true
	}
	token := r.Header.Get(rpcTokenHeader)
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.RPCSecret)) == 1
}

func writeRPC(w http.ResponseWriter, code int, body RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write rpc response", "error", err)
	}
}
