package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// pathID parses the named mux path variable as a positive id.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// userIDVar returns the raw {userId} path variable for the auth guard.
func userIDVar(r *http.Request) string {
	return mux.Vars(r)["userId"]
}

// requireUserID writes a 400 and reports false when {userId} is malformed.
func requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
	}
	return id, ok
}

// requireBody parses the request body, writing a 400 on malformed input.
func requireBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return p, true
}

// sanitizeInput removes control characters other than tab, newline and
// carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
