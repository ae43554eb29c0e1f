package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const maxApprovalBody = 64 << 10

// ApprovalCredential is what a signer hands back once the user approves.
type ApprovalCredential struct {
	PublicKey  string `json:"public_key"`
	Homeserver string `json:"homeserver"`
	Token      string `json:"token"`
}

type approvalRequest struct {
	Secret string `json:"secret"`
	Error  string `json:"error,omitempty"`
	ApprovalCredential
}

// ApprovalResult contains the outcome of one approval flow.
type ApprovalResult struct {
	Credential *ApprovalCredential
	err        error
}

func (a *ApprovalResult) Error() error {
	return a.err
}

// ApprovalHandler accepts exactly one signer callback on POST /approve.
//
// The body must carry the flow's secret. Requests without it are rejected and leave the flow pending; the
// first request with the secret completes the flow, approved or not.
type ApprovalHandler struct {
	secret      string
	resultChan  chan ApprovalResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewApprovalHandler creates a handler expecting secret.
func NewApprovalHandler(secret string) *ApprovalHandler {
	return &ApprovalHandler{
		secret:     secret,
		resultChan: make(chan ApprovalResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *ApprovalHandler) Routes() []string {
	return []string{"POST /approve"}
}

func (h *ApprovalHandler) processed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callbackHit
}

// claim marks the callback as hit and reports whether this request got there first.
func (h *ApprovalHandler) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.callbackHit {
		return false
	}
	h.callbackHit = true
	return true
}

func (h *ApprovalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.processed() {
		writeError(w, http.StatusConflict, "approval already processed")
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxApprovalBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed approval")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		writeError(w, http.StatusForbidden, "invalid secret")
		return
	}

	if !h.claim() {
		writeError(w, http.StatusConflict, "approval already processed")
		return
	}

	if req.Error != "" {
		h.Send(ApprovalResult{err: fmt.Errorf("approval denied: %s", req.Error)})
		writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})
		return
	}

	if req.PublicKey == "" || req.Homeserver == "" || req.Token == "" {
		h.Send(ApprovalResult{err: errors.New("approval is missing credential fields")})
		writeError(w, http.StatusBadRequest, "incomplete credential")
		return
	}

	cred := req.ApprovalCredential
	h.Send(ApprovalResult{Credential: &cred})
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// Send delivers the result (only once).
func (h *ApprovalHandler) Send(result ApprovalResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the channel receiving exactly one result before it is closed.
func (h *ApprovalHandler) Result() <-chan ApprovalResult {
	return h.resultChan
}
