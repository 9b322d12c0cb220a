package http

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	sessionName   = "checkout"
	sessionKeyVal = "key"
	// checkoutPathVal is the checkout URL the shopper came from, payload removed.
	checkoutPathVal = "checkout_path"
	// paidOrderVal and paidCartVal tie the last redirected order to its cart.
	paidOrderVal = "order"
	paidCartVal  = "order_cart"
	// clearedCartVal marks a cart payload that must not be shown again.
	clearedCartVal = "cleared_cart"
)

type FlashMessage struct {
	Type    string
	Message string
}

func init() {
	gob.Register(FlashMessage{})
}

// NewSessionStore builds the cookie store holding the checkout session key and
// flash messages.
func NewSessionStore(key []byte, secure bool, domain string) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Path = "/"
	store.Options.MaxAge = 86400
	if domain != "" {
		store.Options.Domain = domain
	}
	return store
}

// session returns the checkout session. A cookie that fails to decode yields a
// fresh session.
func (h *CheckoutHandler) session(r *http.Request) *sessions.Session {
	s, err := h.sessions.Get(r, sessionName)
	if err != nil {
		h.log.Debug("discarding undecodable session")
	}
	return s
}

// sessionKey returns the session's checkout key, minting one on first use.
func sessionKey(s *sessions.Session) string {
	if key, ok := s.Values[sessionKeyVal].(string); ok && key != "" {
		return key
	}
	key := uuid.NewString()
	s.Values[sessionKeyVal] = key
	return key
}

func addFlash(s *sessions.Session, kind, msg string) {
	s.AddFlash(FlashMessage{Type: kind, Message: msg})
}

func getFlashes(s *sessions.Session) []FlashMessage {
	var messages []FlashMessage
	for _, f := range s.Flashes() {
		if fm, ok := f.(FlashMessage); ok {
			messages = append(messages, fm)
		}
	}
	return messages
}

// cartDigest identifies a cart payload without storing it in the cookie.
func cartDigest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

func sessionString(s *sessions.Session, key string) string {
	v, _ := s.Values[key].(string)
	return v
}

// rememberOrder ties orderNumber to the cart payload it was paid from.
func rememberOrder(s *sessions.Session, orderNumber, raw string) {
	s.Values[paidOrderVal] = orderNumber
	s.Values[paidCartVal] = cartDigest(raw)
}

// markCleared moves the cart of a paid orderNumber to the cleared slot. It
// reports false when the session did not start that order.
func markCleared(s *sessions.Session, orderNumber string) bool {
	if orderNumber == "" || sessionString(s, paidOrderVal) != orderNumber {
		return false
	}
	s.Values[clearedCartVal] = sessionString(s, paidCartVal)
	delete(s.Values, paidOrderVal)
	delete(s.Values, paidCartVal)
	return true
}

// takeCleared reports whether raw is a cleared cart, forgetting the mark.
func takeCleared(s *sessions.Session, raw string) bool {
	cleared := sessionString(s, clearedCartVal)
	if raw == "" || cleared == "" || cleared != cartDigest(raw) {
		return false
	}
	delete(s.Values, clearedCartVal)
	return true
}
