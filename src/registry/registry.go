package registry

import (
	"context"
	"fmt"
	"sort"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fundledger/src/database"
	"fundledger/src/model"
	"fundledger/src/security"
)

// TerminalGroup is one physical terminal plus every account it hosts.
// The poller holds exactly one authenticated session per group at a
// time, because terminals do not tolerate two concurrent logins.
type TerminalGroup struct {
	Key      string
	Terminal model.Terminal
	Accounts []model.Account
}

// Registry is an immutable snapshot of the terminal and account tables,
// loaded once at startup. Capital basis and manager/fund assignments
// only change through onboarding, never through polling, so a static
// snapshot is sufficient for the lifetime of the process.
type Registry struct {
	terminals map[string]model.Terminal
	accounts  map[string]model.Account
	groups    []TerminalGroup
}

// NewRegistry loads terminals and accounts using the main database.
func NewRegistry(ctx context.Context) (*Registry, error) {
	return LoadRegistry(ctx, database.MainDB)
}

// LoadRegistry loads terminals and accounts from the given DB handle.
// Useful for tests or when using a specific session/transaction.
func LoadRegistry(ctx context.Context, db *gorm.DB) (*Registry, error) {
	var terminals []model.Terminal
	if err := db.WithContext(ctx).Find(&terminals).Error; err != nil {
		return nil, fmt.Errorf("failed to load terminals: %w", err)
	}

	var accounts []model.Account
	if err := db.WithContext(ctx).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	return BuildRegistry(terminals, accounts)
}

// BuildRegistry assembles a registry from already-loaded rows.
func BuildRegistry(terminals []model.Terminal, accounts []model.Account) (*Registry, error) {
	r := &Registry{
		terminals: make(map[string]model.Terminal, len(terminals)),
		accounts:  make(map[string]model.Account, len(accounts)),
	}

	byGroup := make(map[string]*TerminalGroup)
	for _, t := range terminals {
		r.terminals[t.Name] = t

		key := t.GroupKey
		if key == "" {
			key = t.Name
		}
		if _, ok := byGroup[key]; ok {
			return nil, fmt.Errorf("terminal group %q has more than one terminal", key)
		}
		byGroup[key] = &TerminalGroup{Key: key, Terminal: t}
	}

	for _, a := range accounts {
		t, ok := r.terminals[a.TerminalName]
		if !ok {
			return nil, fmt.Errorf("account %s references unknown terminal %q", a.Number, a.TerminalName)
		}
		r.accounts[a.Number] = a

		key := t.GroupKey
		if key == "" {
			key = t.Name
		}
		byGroup[key].Accounts = append(byGroup[key].Accounts, a)
	}

	for _, g := range byGroup {
		r.groups = append(r.groups, *g)
	}
	sort.Slice(r.groups, func(i, j int) bool { return r.groups[i].Key < r.groups[j].Key })

	logger.WithFields(map[string]interface{}{
		"component": "Registry",
		"terminals": len(terminals),
		"accounts":  len(accounts),
		"groups":    len(r.groups),
	}).Info("Registry loaded")

	return r, nil
}

// Lookup returns the account for a number, if onboarded.
func (r *Registry) Lookup(number string) (model.Account, bool) {
	a, ok := r.accounts[number]
	return a, ok
}

// Accounts returns every onboarded account, ordered by number.
func (r *Registry) Accounts() []model.Account {
	out := make([]model.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// AccountsByTerminal returns one group per physical terminal, ordered
// by group key.
func (r *Registry) AccountsByTerminal() []TerminalGroup {
	return r.groups
}

// IsKnownAccount reports whether a number belongs to an onboarded account.
func (r *Registry) IsKnownAccount(number string) bool {
	_, ok := r.accounts[number]
	return ok
}

// IsExtractionAccount reports whether a number is a designated
// separation account for extracted profit.
func (r *Registry) IsExtractionAccount(number string) bool {
	a, ok := r.accounts[number]
	return ok && a.IsExtraction
}

// Credentials decrypts the stored API key pair for a terminal.
func (r *Registry) Credentials(t model.Terminal) (apiKey, apiSecret string, err error) {
	apiKey, err = security.DecryptString(t.APIKeyEnc)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt API key for terminal %s: %w", t.Name, err)
	}
	apiSecret, err = security.DecryptString(t.APISecretEnc)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt API secret for terminal %s: %w", t.Name, err)
	}
	return apiKey, apiSecret, nil
}
