// Package account keeps the durable registry of OAuth accounts per
// provider: which accounts exist, which is the default, and where each
// account's credential file lives.
//
// The registry is one JSON document rewritten whole on every mutation.
// There is no file locking; concurrent writers are last-writer-wins by
// design, which is acceptable for a single-user local tool.
package account

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const maxNicknameLen = 50

var (
	// ErrAccountNotFound indicates no account matched the given query.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNicknameInvalid indicates an empty, overlong, or
	// whitespace-containing nickname.
	ErrNicknameInvalid = errors.New("invalid nickname")
	// ErrNicknameTaken indicates a case-insensitive nickname collision
	// within a provider.
	ErrNicknameTaken = errors.New("nickname already in use")
)

// Account is one registered OAuth identity for one provider.
type Account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	Nickname       string    `json:"nickname"`
	CredentialFile string    `json:"credential_file"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
}

// providerEntry is one provider's slice of the registry.
type providerEntry struct {
	DefaultAccountID string              `json:"default_account,omitempty"`
	Accounts         map[string]*Account `json:"accounts"`
}

// registry is the whole persisted document.
type registry struct {
	Providers map[string]*providerEntry `json:"providers"`
}

func newRegistry() *registry {
	return &registry{Providers: map[string]*providerEntry{}}
}

func (r *registry) entry(provider string) *providerEntry {
	e, ok := r.Providers[provider]
	if !ok {
		e = &providerEntry{Accounts: map[string]*Account{}}
		r.Providers[provider] = e
	}
	if e.Accounts == nil {
		e.Accounts = map[string]*Account{}
	}
	return e
}

// generateNickname derives a default nickname from an email: the local
// part, whitespace stripped, truncated to the length limit, with "default"
// as the last resort.
func generateNickname(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}
	local = stripWhitespace(local)
	if local == "" {
		return "default"
	}
	if len(local) > maxNicknameLen {
		local = local[:maxNicknameLen]
	}
	return local
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// validateNickname enforces the nickname shape rules (uniqueness is checked
// separately against a provider's existing accounts).
func validateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("%w: empty", ErrNicknameInvalid)
	}
	if len(nickname) > maxNicknameLen {
		return fmt.Errorf("%w: longer than %d characters", ErrNicknameInvalid, maxNicknameLen)
	}
	if strings.IndexFunc(nickname, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: contains whitespace", ErrNicknameInvalid)
	}
	return nil
}

// nicknameTaken reports a case-insensitive collision with any account other
// than exceptID.
func (e *providerEntry) nicknameTaken(nickname, exceptID string) bool {
	for id, acc := range e.Accounts {
		if id == exceptID {
			continue
		}
		if strings.EqualFold(acc.Nickname, nickname) {
			return true
		}
	}
	return false
}

// uniqueNickname appends a numeric suffix until the candidate is free
// within the provider.
func (e *providerEntry) uniqueNickname(base string) string {
	if !e.nicknameTaken(base, "") {
		return base
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("-%d", n)
		candidate := base
		if len(candidate)+len(suffix) > maxNicknameLen {
			candidate = candidate[:maxNicknameLen-len(suffix)]
		}
		candidate += suffix
		if !e.nicknameTaken(candidate, "") {
			return candidate
		}
	}
}
