// Package identity derives a best-effort stable visitor token from browser
// and network signals. The token is a heuristic, not a credential.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/sajpe/visitgate/internal/model"
)

// AnonymousID is the stable ID used when no token could be derived.
const AnonymousID = "anonymous"

// tokenLength is the hex length of a visitor token.
const tokenLength = 32

// FingerprintHeader lets a browser page forward its own client-side hash.
const FingerprintHeader = "X-Visitor-Fingerprint"

var (
	ErrNoSignals         = errors.New("no identity signals available")
	ErrEngineUnavailable = errors.New("fingerprint engine unavailable")
)

// Signals are the inputs hashed into a visitor token. They describe the
// device and browser only; the network address is not part of the token.
type Signals struct {
	UserAgent         string
	AcceptLanguage    string
	AcceptEncoding    string
	Accept            string
	HeaderOrder       string
	ClientFingerprint string
}

func (s Signals) components() []string {
	all := []string{
		s.UserAgent,
		s.AcceptLanguage,
		s.AcceptEncoding,
		s.Accept,
		s.HeaderOrder,
		s.ClientFingerprint,
	}
	out := all[:0]
	for _, c := range all {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// SignalsFromRequest collects signals from an inbound request.
func SignalsFromRequest(r *http.Request) Signals {
	return Signals{
		UserAgent:         r.UserAgent(),
		AcceptLanguage:    r.Header.Get("Accept-Language"),
		AcceptEncoding:    r.Header.Get("Accept-Encoding"),
		Accept:            r.Header.Get("Accept"),
		HeaderOrder:       headerOrder(r.Header),
		ClientFingerprint: r.Header.Get(FingerprintHeader),
	}
}

// headerOrder lists the stable browser headers present, sorted.
func headerOrder(h http.Header) string {
	var names []string
	for name := range h {
		switch strings.ToLower(name) {
		case "user-agent", "accept", "accept-language", "accept-encoding",
			"connection", "upgrade-insecure-requests", "sec-fetch-dest",
			"sec-fetch-mode", "sec-fetch-site", "cache-control":
			names = append(names, strings.ToLower(name))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Resolver produces a visitor identity.
type Resolver interface {
	Resolve(ctx context.Context, s Signals) (model.VisitorIdentity, error)
}

// VisitorStore records sightings of a token. Touch reports whether the
// token was seen before.
type VisitorStore interface {
	Touch(ctx context.Context, stableID string) (returning bool, err error)
}

// Engine hashes signals with a keyed BLAKE2b. The key is derived lazily on
// first use.
type Engine struct {
	salt    string
	store   VisitorStore
	timeout time.Duration
	logger  *slog.Logger

	once    sync.Once
	key     []byte
	loadErr error
}

// NewEngine creates an Engine. store may be nil.
func NewEngine(salt string, store VisitorStore, timeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		salt:    salt,
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "identity"),
	}
}

func (e *Engine) load() error {
	e.once.Do(func() {
		sum := blake2b.Sum256([]byte(e.salt))
		// Probe the keyed constructor once so later calls cannot fail.
		if _, err := blake2b.New256(sum[:]); err != nil {
			e.loadErr = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
			return
		}
		e.key = sum[:]
	})
	return e.loadErr
}

// Resolve returns the identity for s within the engine's time budget.
func (e *Engine) Resolve(ctx context.Context, s Signals) (model.VisitorIdentity, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.load(); err != nil {
		return model.VisitorIdentity{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.VisitorIdentity{}, fmt.Errorf("resolve identity: %w", err)
	}

	token, err := e.token(s)
	if err != nil {
		return model.VisitorIdentity{}, err
	}

	ident := model.VisitorIdentity{StableID: token}
	if e.store != nil {
		returning, err := e.store.Touch(ctx, token)
		if err != nil {
			e.logger.Warn("visitor store unavailable", "error", err)
		} else {
			ident.Returning = returning
		}
	}
	return ident, nil
}

func (e *Engine) token(s Signals) (string, error) {
	parts := s.components()
	if len(parts) == 0 {
		return "", ErrNoSignals
	}

	h, err := blake2b.New256(e.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))[:tokenLength], nil
}

// Anonymous is the degraded identity used when resolution fails.
func Anonymous() model.VisitorIdentity {
	return model.VisitorIdentity{StableID: AnonymousID, Degraded: true}
}
