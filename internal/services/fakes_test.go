package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jjudge-oj/identity/config"
	"github.com/jjudge-oj/identity/internal/store"
	"github.com/jjudge-oj/identity/types"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]types.Account

	// createErr, when set, is returned by Create after the uniqueness check.
	createErr error
	updates   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: map[int64]types.Account{}}
}

func (r *memoryRepo) GetByID(_ context.Context, id int64) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (r *memoryRepo) GetByEmail(_ context.Context, email string) (types.Account, error) {
	return r.find(func(a types.Account) bool { return a.Email == email })
}

func (r *memoryRepo) GetByUsernameOrEmail(_ context.Context, identifier string) (types.Account, error) {
	if account, err := r.find(func(a types.Account) bool { return a.Username == identifier }); err == nil {
		return account, nil
	}
	return r.find(func(a types.Account) bool { return a.Email == identifier })
}

func (r *memoryRepo) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	_, err := r.find(func(a types.Account) bool { return a.Username == username || a.Email == email })
	return err == nil, nil
}

func (r *memoryRepo) Create(_ context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == account.Username || strings.EqualFold(existing.Email, account.Email) {
			return types.Account{}, store.ErrConflict
		}
	}
	if r.createErr != nil {
		return types.Account{}, r.createErr
	}
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryRepo) Update(_ context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; !ok {
		return types.Account{}, store.ErrNotFound
	}
	r.accounts[account.ID] = account
	r.updates++
	return account, nil
}

func (r *memoryRepo) find(match func(types.Account) bool) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if match(account) {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

type sentCode struct {
	kind     string
	email    string
	username string
	code     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentCode
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, username, code string) {
	n.record(sentCode{kind: "verification", email: email, username: username, code: code})
}

func (n *recordingNotifier) SendReset(_ context.Context, email, username, code string) {
	n.record(sentCode{kind: "reset", email: email, username: username, code: code})
}

func (n *recordingNotifier) record(s sentCode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
}

func (n *recordingNotifier) last() sentCode {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentCode{}
	}
	return n.sent[len(n.sent)-1]
}

func testConfig() config.Config {
	return config.Config{
		PasswordHashCost: bcrypt.MinCost,
		JWT: config.JWTConfig{
			Secret:                   "test-secret",
			Algorithm:                "HS256",
			AccessTokenExpireMinutes: 60,
		},
		Codes: config.CodeConfig{Length: 6, TTL: 15 * time.Minute},
	}
}
