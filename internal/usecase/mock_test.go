//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
	"telegram-paid-channel/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Payment // by id
	byKey map[string]string         // provider:external_id -> id

	SaveFunc                  func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}, byKey: map[string]string{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	cp := *p
	r.data[p.ID] = &cp
	r.byKey[p.Provider+":"+p.ExternalID] = p.ID
	return nil
}

func (r *MockPaymentRepo) LockKey(ctx context.Context, tx repository.Tx, provider, externalID string) error {
	return nil
}

func (r *MockPaymentRepo) FindByProviderExternalID(ctx context.Context, tx repository.Tx, provider, externalID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[provider+":"+externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.data[id]
	return &cp, nil
}

func (r *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	if r.UpdateStatusIfPendingFunc != nil {
		return r.UpdateStatusIfPendingFunc(ctx, tx, id, status, paidAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockPaymentRepo) SetSubscriptionID(ctx context.Context, tx repository.Tx, paymentID, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (r *MockPaymentRepo) get(id string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu     sync.Mutex
	byUser map[int64]*model.Subscription

	SaveFunc        func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	MarkExpiredFunc func(ctx context.Context, tx repository.Tx, userID int64) (bool, error)
	ListExpiredFunc func(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byUser: map[int64]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byUser[s.UserID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// MarkExpired mirrors the conditional UPDATE: the transition applies only
// while the record still grants access and is past its expiry.
func (r *MockSubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	if r.MarkExpiredFunc != nil {
		return r.MarkExpiredFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok {
		return false, nil
	}
	granting := s.Status == model.SubscriptionStatusActive || s.Status == model.SubscriptionStatusTrial
	if !granting || !s.ExpiresAt.Before(time.Now()) {
		return false, nil
	}
	s.Status = model.SubscriptionStatusExpired
	s.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockSubscriptionRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if r.ListExpiredFunc != nil {
		return r.ListExpiredFunc(ctx, tx, now, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.byUser {
		granting := s.Status == model.SubscriptionStatusActive || s.Status == model.SubscriptionStatusTrial
		if granting && s.ExpiresAt.Before(now) {
			cp := *s
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) ListExpiringWithin(ctx context.Context, tx repository.Tx, within time.Duration, limit int) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*model.Subscription
	for _, s := range r.byUser {
		granting := s.Status == model.SubscriptionStatusActive || s.Status == model.SubscriptionStatusTrial
		if granting && s.ExpiresAt.After(now) && s.ExpiresAt.Before(now.Add(within)) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn immediately without a real transaction unless a test
// installs WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock ChannelGate ----

type MockChannelGate struct {
	mu      sync.Mutex
	Granted []int64
	Revoked []int64

	GrantFunc  func(ctx context.Context, userID int64) error
	RevokeFunc func(ctx context.Context, userID int64) error
}

var _ adapter.ChannelGate = (*MockChannelGate)(nil)

func (g *MockChannelGate) Grant(ctx context.Context, userID int64) error {
	if g.GrantFunc != nil {
		return g.GrantFunc(ctx, userID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Granted = append(g.Granted, userID)
	return nil
}

func (g *MockChannelGate) Revoke(ctx context.Context, userID int64) error {
	if g.RevokeFunc != nil {
		return g.RevokeFunc(ctx, userID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Revoked = append(g.Revoked, userID)
	return nil
}

// ---- Mock EventPublisher ----

type MockEventPublisher struct {
	mu     sync.Mutex
	Events []model.Event

	PublishFunc func(ctx context.Context, ev model.Event) error
}

var _ adapter.EventPublisher = (*MockEventPublisher)(nil)

func (p *MockEventPublisher) Publish(ctx context.Context, ev model.Event) error {
	if p.PublishFunc != nil {
		return p.PublishFunc(ctx, ev)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, ev)
	return nil
}

func (p *MockEventPublisher) kinds() []model.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventKind, len(p.Events))
	for i, ev := range p.Events {
		out[i] = ev.Kind
	}
	return out
}

// ---- Mock PaymentProvider ----

type MockProvider struct {
	NameVal string
	Caps    adapter.Capabilities

	CreatePaymentFunc func(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error)
	CheckStatusFunc   func(ctx context.Context, externalID string) (model.PaymentStatus, error)
	ParseWebhookFunc  func(body []byte, header http.Header) model.WebhookResult
}

var _ adapter.PaymentProvider = (*MockProvider)(nil)

func (p *MockProvider) Name() string { return p.NameVal }

func (p *MockProvider) Capabilities() adapter.Capabilities { return p.Caps }

func (p *MockProvider) CreatePayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	if p.CreatePaymentFunc != nil {
		return p.CreatePaymentFunc(ctx, req)
	}
	return &model.PaymentResponse{ExternalID: "ext-1", PayURL: "https://pay.example/ext-1"}, nil
}

func (p *MockProvider) CheckStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	if p.CheckStatusFunc != nil {
		return p.CheckStatusFunc(ctx, externalID)
	}
	return model.PaymentStatusPending, nil
}

func (p *MockProvider) ParseWebhook(body []byte, header http.Header) model.WebhookResult {
	if p.ParseWebhookFunc != nil {
		return p.ParseWebhookFunc(body, header)
	}
	return model.WebhookResult{Reason: "no parser installed"}
}

// ---- Mock ProviderRegistry ----

type MockRegistry struct {
	providers map[string]adapter.PaymentProvider
}

func NewMockRegistry(ps ...*MockProvider) *MockRegistry {
	r := &MockRegistry{providers: map[string]adapter.PaymentProvider{}}
	for _, p := range ps {
		r.providers[p.NameVal] = p
	}
	return r
}

func (r *MockRegistry) Get(tag string) (adapter.PaymentProvider, error) {
	p, ok := r.providers[tag]
	if !ok {
		return nil, domain.ErrProviderUnavailable
	}
	return p, nil
}
