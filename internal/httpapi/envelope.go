// Package httpapi exposes the directory and conversation operations over
// REST. Every response body is the service envelope.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/relayline/chathub/internal/auth"
)

// Pagination describes the window of a list response.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Envelope is the uniform response body. List payloads go in lstItem,
// single payloads in resultado. Slice fields are never null.
type Envelope struct {
	ClientName string      `json:"clientName"`
	IsSuccess  bool        `json:"isSuccess"`
	Errors     []string    `json:"lstError"`
	Items      []any       `json:"lstItem"`
	Pagination *Pagination `json:"pagination"`
	Result     any         `json:"resultado"`
	ServerName string      `json:"serverName"`
	Ticket     string      `json:"ticket"`
	UserName   string      `json:"userName"`
	Warnings   []string    `json:"warnings"`
}

// responder stamps envelopes with server identity and request context.
type responder struct {
	serverName string
}

func (rp responder) envelope(r *http.Request) Envelope {
	env := Envelope{
		IsSuccess:  true,
		Errors:     []string{},
		Items:      []any{},
		ServerName: rp.serverName,
		Warnings:   []string{},
	}
	if id := requestTicket(r); id != "" {
		env.Ticket = id
	}
	if name := requestUserName(r); name != "" {
		env.UserName = name
	}
	if client := auth.HeaderOrQuery(r, "x-client-name", "clientName"); client != "" {
		env.ClientName = client
	}
	return env
}

func (rp responder) writeResult(w http.ResponseWriter, r *http.Request, status int, result any) {
	env := rp.envelope(r)
	env.Result = result
	writeJSON(w, status, env)
}

func (rp responder) writeList(w http.ResponseWriter, r *http.Request, items []any, page *Pagination) {
	env := rp.envelope(r)
	env.Items = items
	env.Pagination = page
	writeJSON(w, http.StatusOK, env)
}

func (rp responder) writeError(w http.ResponseWriter, r *http.Request, status int, msgs ...string) {
	env := rp.envelope(r)
	env.IsSuccess = false
	env.Errors = append(env.Errors, msgs...)
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// asItems converts a typed slice for lstItem.
func asItems[T any](in []T) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}
