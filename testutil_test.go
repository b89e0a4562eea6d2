package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/allocar/identity/password"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return mr, rdb
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

/*
====================================
CREDENTIAL STORE
====================================
*/

type mockCredentialStore struct {
	mu       sync.Mutex
	nextID   int
	accounts map[string]Account
	saves    int
	failWith error
	// foldEmail matches emails case-insensitively, as the Postgres store does.
	foldEmail bool
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{accounts: map[string]Account{}}
}

func (m *mockCredentialStore) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *mockCredentialStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	return m.find(func(a Account) bool {
		if m.foldEmail {
			return a.Email != "" && strings.EqualFold(a.Email, email)
		}
		return a.Email != "" && a.Email == email
	})
}

func (m *mockCredentialStore) FindByPhone(_ context.Context, phone string) (*Account, error) {
	return m.find(func(a Account) bool { return a.Phone != "" && a.Phone == phone })
}

func (m *mockCredentialStore) find(match func(Account) bool) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, a := range m.accounts {
		if match(a) {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockCredentialStore) Create(_ context.Context, n NewAccount) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if (n.Email != "" && a.Email == n.Email) || (n.Phone != "" && a.Phone == n.Phone) {
			return nil, ErrConflict
		}
	}

	m.nextID++
	now := time.Now().UTC()
	a := Account{
		ID:           fmt.Sprintf("acct-%d", m.nextID),
		Email:        n.Email,
		Phone:        n.Phone,
		PasswordHash: n.PasswordHash,
		IsActive:     n.IsActive,
		Extras:       n.Extras,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts[a.ID] = a
	out := a
	return &out, nil
}

func (m *mockCredentialStore) Save(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return fmt.Errorf("save of unknown account %q", account.ID)
	}
	m.saves++
	m.accounts[account.ID] = *account
	return nil
}

func (m *mockCredentialStore) get(t *testing.T, id string) Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		t.Fatalf("account %q not in store", id)
	}
	return a
}

func (m *mockCredentialStore) update(id string, fn func(*Account)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	fn(&a)
	m.accounts[id] = a
}

/*
====================================
NOTIFICATIONS / LEDGERS
====================================
*/

type captureSender struct {
	ch chan Notification
}

func newCaptureSender() *captureSender {
	return &captureSender{ch: make(chan Notification, 64)}
}

func (s *captureSender) Send(_ context.Context, n Notification) error {
	s.ch <- n
	return nil
}

func (s *captureSender) next(t *testing.T) Notification {
	t.Helper()
	select {
	case n := <-s.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func (s *captureSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-s.ch:
		t.Fatalf("unexpected notification kind=%s recipient=%s", n.Kind, n.Recipient)
	case <-time.After(50 * time.Millisecond):
	}
}

type countingOTPLedger struct {
	inner    OTPLedger
	issues   atomic.Int64
	verifies atomic.Int64
}

func (c *countingOTPLedger) Issue(ctx context.Context, key OTPKey) (string, error) {
	c.issues.Add(1)
	return c.inner.Issue(ctx, key)
}

func (c *countingOTPLedger) Verify(ctx context.Context, key OTPKey, code string) (bool, error) {
	c.verifies.Add(1)
	return c.inner.Verify(ctx, key, code)
}

type failingOTPLedger struct {
	err error
}

func (f failingOTPLedger) Issue(context.Context, OTPKey) (string, error) { return "", f.err }

func (f failingOTPLedger) Verify(context.Context, OTPKey, string) (bool, error) { return false, f.err }

/*
====================================
ENGINE
====================================
*/

type testEnv struct {
	engine *Engine
	store  *mockCredentialStore
	sender *captureSender
	otp    *countingOTPLedger
	audit  *ChannelSink
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PasswordReset.EnumerationDelay = false
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store:  newMockCredentialStore(),
		sender: newCaptureSender(),
		otp:    &countingOTPLedger{inner: NewRedisOTPLedger(rdb, cfg.RedisPrefix+":", cfg.OTP)},
		audit:  NewChannelSink(256),
		mr:     mr,
		rdb:    rdb,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.store).
		WithPasswordHasher(newTestHasher(t)).
		WithOTPLedger(env.otp).
		WithNotificationSender(env.sender).
		WithAuditSink(env.audit).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// register creates an account and returns the verification codes it was
// sent, keyed by recipient. Workers deliver in any order.
func (env *testEnv) register(t *testing.T, email, phone, pass string) (*Account, map[string]Notification) {
	t.Helper()

	account, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Phone:    phone,
		Password: pass,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	want := 0
	if email != "" {
		want++
	}
	if phone != "" {
		want++
	}

	sent := make(map[string]Notification, want)
	for i := 0; i < want; i++ {
		n := env.sender.next(t)
		sent[n.Recipient] = n
	}
	return account, sent
}

// nextAudit returns the next audit event of the given type, skipping others.
func (env *testEnv) nextAudit(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.audit.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
			return AuditEvent{}
		}
	}
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
