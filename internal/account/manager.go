package account

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/zesbe/ccswitch/internal/provider"
)

// Manager performs CRUD over the accounts registry.
type Manager struct {
	registryPath string
	authDir      string
	now          func() time.Time
}

// NewManager creates an account manager rooted at the ccswitch state
// directory. Credential files written by the proxy binary live in
// <root>/auth.
func NewManager(rootDir string) (*Manager, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("rootDir is required")
	}
	return &Manager{
		registryPath: filepath.Join(rootDir, "accounts.json"),
		authDir:      filepath.Join(rootDir, "auth"),
		now:          time.Now,
	}, nil
}

// AuthDir returns the directory the proxy binary writes credential files
// into.
func (m *Manager) AuthDir() string {
	return m.authDir
}

// load reads the registry document. A missing or malformed file yields an
// empty registry rather than an error: stale local state must never wedge
// the tool.
func (m *Manager) load() *registry {
	data, err := os.ReadFile(m.registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debugf("read registry: %v", err)
		}
		return newRegistry()
	}

	var reg registry
	if err := json.Unmarshal(data, &reg); err != nil {
		log.Debugf("registry is malformed, treating as empty: %v", err)
		return newRegistry()
	}
	if reg.Providers == nil {
		reg.Providers = map[string]*providerEntry{}
	}
	return &reg
}

// save rewrites the whole registry document atomically.
func (m *Manager) save(reg *registry) error {
	if err := os.MkdirAll(filepath.Dir(m.registryPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	tmp := m.registryPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, m.registryPath); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Register records a freshly authenticated account. The stable ID is the
// email when known, the literal "default" otherwise. An explicit nickname
// is validated; otherwise one is derived from the email and de-duplicated.
// The first account registered for a provider becomes its default.
func (m *Manager) Register(p provider.ID, email, credentialFile, nickname string) (*Account, error) {
	reg := m.load()
	entry := reg.entry(string(p))

	id := strings.TrimSpace(email)
	if id == "" {
		id = "default"
	}

	if nickname != "" {
		if err := validateNickname(nickname); err != nil {
			return nil, err
		}
		if entry.nicknameTaken(nickname, id) {
			return nil, fmt.Errorf("%w: %s", ErrNicknameTaken, nickname)
		}
	} else if existing, ok := entry.Accounts[id]; ok {
		nickname = existing.Nickname
	} else {
		nickname = entry.uniqueNickname(generateNickname(email))
	}

	now := m.now()
	acc := &Account{
		ID:             id,
		Email:          strings.TrimSpace(email),
		Nickname:       nickname,
		CredentialFile: credentialFile,
		CreatedAt:      now,
		LastUsedAt:     now,
	}
	if existing, ok := entry.Accounts[id]; ok {
		acc.CreatedAt = existing.CreatedAt
	}
	entry.Accounts[id] = acc

	if entry.DefaultAccountID == "" {
		entry.DefaultAccountID = id
	}

	if err := m.save(reg); err != nil {
		return nil, err
	}
	log.Infof("registered %s account %s (%s)", p, acc.Nickname, acc.ID)
	return acc, nil
}

// List returns a provider's accounts ordered by creation time, oldest
// first, with ID as the tie-break.
func (m *Manager) List(p provider.ID) []*Account {
	entry, ok := m.load().Providers[string(p)]
	if !ok {
		return nil
	}

	accounts := make([]*Account, 0, len(entry.Accounts))
	for _, acc := range entry.Accounts {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID < accounts[j].ID
	})
	return accounts
}

// Default returns the provider's default account, if one is set.
func (m *Manager) Default(p provider.ID) (*Account, bool) {
	entry, ok := m.load().Providers[string(p)]
	if !ok || entry.DefaultAccountID == "" {
		return nil, false
	}
	acc, ok := entry.Accounts[entry.DefaultAccountID]
	return acc, ok
}

// SetDefault marks an existing account as the provider default.
func (m *Manager) SetDefault(p provider.ID, accountID string) error {
	reg := m.load()
	entry := reg.entry(string(p))
	if _, ok := entry.Accounts[accountID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	entry.DefaultAccountID = accountID
	return m.save(reg)
}

// Rename changes an account's nickname after validation and a
// case-insensitive uniqueness check within the provider.
func (m *Manager) Rename(p provider.ID, accountID, nickname string) error {
	if err := validateNickname(nickname); err != nil {
		return err
	}

	reg := m.load()
	entry := reg.entry(string(p))
	acc, ok := entry.Accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if entry.nicknameTaken(nickname, accountID) {
		return fmt.Errorf("%w: %s", ErrNicknameTaken, nickname)
	}
	acc.Nickname = nickname
	return m.save(reg)
}

// Remove deletes an account from the registry. Removing the default
// promotes an arbitrary remaining account; removing the last account
// leaves the provider defaultless.
func (m *Manager) Remove(p provider.ID, accountID string) error {
	reg := m.load()
	entry := reg.entry(string(p))
	if _, ok := entry.Accounts[accountID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	delete(entry.Accounts, accountID)

	if entry.DefaultAccountID == accountID {
		entry.DefaultAccountID = ""
		for id := range entry.Accounts {
			entry.DefaultAccountID = id
			break
		}
	}
	return m.save(reg)
}

// RemoveAll drops a provider's registry entry entirely (logout).
func (m *Manager) RemoveAll(p provider.ID) error {
	reg := m.load()
	delete(reg.Providers, string(p))
	return m.save(reg)
}

// Touch updates an account's last-used timestamp.
func (m *Manager) Touch(p provider.ID, accountID string) error {
	reg := m.load()
	entry := reg.entry(string(p))
	acc, ok := entry.Accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	acc.LastUsedAt = m.now()
	return m.save(reg)
}

// FindByQuery resolves a user-supplied query to an account: exact ID,
// email, or nickname first, then a prefix match on nickname or email. Ties
// on the prefix pass resolve to the first account in stored order.
func (m *Manager) FindByQuery(p provider.ID, query string) (*Account, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrAccountNotFound)
	}

	accounts := m.List(p)
	for _, acc := range accounts {
		if acc.ID == query || acc.Email == query || acc.Nickname == query {
			return acc, nil
		}
	}
	for _, acc := range accounts {
		if strings.HasPrefix(acc.Nickname, query) || strings.HasPrefix(acc.Email, query) {
			return acc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, query)
}

// Discover bootstraps the registry from credential files that exist on
// disk but are not yet registered, as happens when the proxy binary was
// used before this tool. Returns the newly registered accounts.
func (m *Manager) Discover(p provider.ID) ([]*Account, error) {
	prov, ok := provider.Lookup(string(p))
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", p)
	}

	entries, err := os.ReadDir(m.authDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read auth dir: %w", err)
	}

	registered := map[string]bool{}
	for _, acc := range m.List(p) {
		registered[acc.CredentialFile] = true
	}

	var added []*Account
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(m.authDir, entry.Name())
		if registered[path] {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Debugf("read credential file %s: %v", path, err)
			continue
		}
		if !prov.MatchesFile(entry.Name(), data) {
			continue
		}

		email := gjson.GetBytes(data, "email").String()
		acc, err := m.Register(p, email, path, "")
		if err != nil {
			return added, fmt.Errorf("register discovered account: %w", err)
		}
		added = append(added, acc)
	}
	return added, nil
}
