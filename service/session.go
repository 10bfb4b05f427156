package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/tieubaoca/edu-assistant/types"
)

// Session identifies the user every operation runs for. It is passed
// explicitly; services keep no per-user state of their own.
type Session struct {
	UserID    string
	Namespace string
}

func NewSession(userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", types.ErrInvalidInput)
	}
	return Session{UserID: userID, Namespace: types.NamespaceFor(userID)}, nil
}

// Credentials are the per-user API keys an assistant is built with. Empty
// fields fall back to the process configuration.
type Credentials struct {
	OpenAIKey string
	GeminiKey string
}

func (c Credentials) fingerprint() string {
	sum := sha256.Sum256([]byte(c.OpenAIKey + "\x00" + c.GeminiKey))
	return hex.EncodeToString(sum[:])
}

// Assistant bundles the components serving one user.
type Assistant struct {
	Session   Session
	Documents *DocumentService
	Chat      ChatService
}

// AssistantBuilder constructs an Assistant from a session and credentials.
// It must not depend on anything else that varies per user.
type AssistantBuilder func(session Session, creds Credentials) (*Assistant, error)

type cachedAssistant struct {
	fingerprint string
	assistant   *Assistant
}

// SessionFactory caches one Assistant per user id. A cached assistant is
// rebuilt when the user's credentials change.
type SessionFactory struct {
	build AssistantBuilder

	mu    sync.Mutex
	cache map[string]cachedAssistant
}

func NewSessionFactory(build AssistantBuilder) *SessionFactory {
	return &SessionFactory{
		build: build,
		cache: make(map[string]cachedAssistant),
	}
}

func (f *SessionFactory) Get(userID string, creds Credentials) (*Assistant, error) {
	session, err := NewSession(userID)
	if err != nil {
		return nil, err
	}
	fp := creds.fingerprint()

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.cache[session.UserID]; ok && cached.fingerprint == fp {
		return cached.assistant, nil
	}
	assistant, err := f.build(session, creds)
	if err != nil {
		return nil, err
	}
	f.cache[session.UserID] = cachedAssistant{fingerprint: fp, assistant: assistant}
	return assistant, nil
}

// Invalidate drops the cached assistant of userID.
func (f *SessionFactory) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, strings.TrimSpace(userID))
}
