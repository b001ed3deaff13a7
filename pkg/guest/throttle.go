// Package guest limits how many new conversations an anonymous visitor may
// start per window. The counter lives entirely in a cookie held by the
// client, so every transition here is a pure function of its inputs.
package guest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	CookieName = "guest_chat_sessions"
	// CookieMaxAge is one day in seconds.
	CookieMaxAge = 86400

	DefaultLimit  = 5
	DefaultWindow = 24 * time.Hour
)

// State is the decoded cookie: window start in unix millis and the number of
// conversations started in that window.
type State struct {
	Start int64 `json:"start"`
	Count int   `json:"count"`
}

type Policy struct {
	Limit  int
	Window time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

// Decision is the outcome of Admit.
type Decision struct {
	Allowed bool
	State   State
}

func reset(now time.Time) State {
	return State{Start: now.UnixMilli(), Count: 0}
}

// Parse decodes a cookie value that was already URL-unescaped, as gin's
// Context.Cookie returns it. A missing, malformed, mistyped or negative value
// yields a fresh window starting at now.
func Parse(token string, now time.Time) State {
	token = strings.TrimSpace(token)
	if token == "" {
		return reset(now)
	}
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(token))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return reset(now)
	}
	start, ok := integer(raw["start"])
	if !ok {
		return reset(now)
	}
	count, ok := integer(raw["count"])
	if !ok {
		return reset(now)
	}
	return State{Start: start, Count: int(count)}
}

// integer accepts only non-negative whole JSON numbers.
func integer(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// RollIfExpired starts a new window once the current one has fully elapsed.
func (p Policy) RollIfExpired(s State, now time.Time) State {
	if now.UnixMilli()-s.Start >= p.Window.Milliseconds() {
		return reset(now)
	}
	return s
}

// Admit charges a new conversation against the window. Continuations are
// always allowed and never charged; a rejected request leaves s unchanged.
func (p Policy) Admit(s State, isNewConversation bool) Decision {
	if !isNewConversation {
		return Decision{Allowed: true, State: s}
	}
	if s.Count >= p.Limit {
		return Decision{Allowed: false, State: s}
	}
	s.Count++
	return Decision{Allowed: true, State: s}
}

// Evaluate runs Parse, RollIfExpired and Admit for a raw cookie value.
func (p Policy) Evaluate(token string, isNewConversation bool, now time.Time) Decision {
	return p.Admit(p.RollIfExpired(Parse(token, now), now), isNewConversation)
}

// Encode renders the state as the cookie's JSON value.
func (s State) Encode() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Cookie builds the Set-Cookie for s.
func Cookie(s State, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(s.Encode()),
		Path:     "/",
		MaxAge:   CookieMaxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
