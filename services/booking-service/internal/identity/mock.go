package identity

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type mockAccount struct {
	Account
	passwordHash []byte
}

// MockProvider keeps accounts in memory for the mock environment. Temporary passwords are
// kept only as bcrypt hashes.
type MockProvider struct {
	mu       sync.Mutex
	accounts map[string]*mockAccount
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{accounts: map[string]*mockAccount{}}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *MockProvider) FindByEmail(_ context.Context, email string) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[emailKey(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a.Account, nil
}

func (p *MockProvider) CreateAccount(_ context.Context, in CreateInput) (Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.TemporaryPassword), bcrypt.MinCost)
	if err != nil {
		return Account{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := emailKey(in.Email)
	if _, exists := p.accounts[key]; exists {
		return Account{}, ErrAccountExists
	}
	a := &mockAccount{
		Account: Account{
			Username:     uuid.NewString(),
			Email:        key,
			Status:       StatusForceChangePassword,
			Enabled:      true,
			ConsultantID: strconv.FormatInt(in.ConsultantID, 10),
		},
		passwordHash: hash,
	}
	p.accounts[key] = a
	return a.Account, nil
}

func (p *MockProvider) SetTemporaryPassword(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.byUsernameLocked(username)
	if a == nil {
		return ErrAccountNotFound
	}
	a.passwordHash = hash
	a.Status = StatusForceChangePassword
	return nil
}

func (p *MockProvider) DeleteAccount(_ context.Context, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.byUsernameLocked(username)
	if a == nil {
		return ErrAccountNotFound
	}
	delete(p.accounts, a.Email)
	return nil
}

func (p *MockProvider) ListAccounts(context.Context) ([]Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		out = append(out, a.Account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// CheckPassword reports whether password matches the account's current temporary password.
func (p *MockProvider) CheckPassword(email, password string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[emailKey(email)]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}

// SetStatus simulates the user completing (or resetting) their first sign-in.
func (p *MockProvider) SetStatus(email, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[emailKey(email)]; ok {
		a.Status = status
	}
}

func (p *MockProvider) byUsernameLocked(username string) *mockAccount {
	for _, a := range p.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}
