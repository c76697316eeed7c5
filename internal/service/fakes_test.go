package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/provider"
)

// memCampaignRepo keeps campaigns in memory
type memCampaignRepo struct {
	mu        sync.Mutex
	nextID    int
	campaigns map[int]*model.Campaign
	saves     int
	since     time.Time
	stats     model.CampaignStats
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{nextID: 1, campaigns: map[int]*model.Campaign{}}
}

func clone(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Recipients = append([]model.Recipient(nil), c.Recipients...)
	cp.SendResults = append([]model.DeliveryResult(nil), c.SendResults...)
	return &cp
}

func (m *memCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.nextID++
	m.campaigns[c.ID] = clone(c)
	return nil
}

func (m *memCampaignRepo) GetByID(ctx context.Context, accountID, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.AccountID != accountID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return clone(c), nil
}

func (m *memCampaignRepo) ListCampaigns(ctx context.Context, accountID, offset, limit int) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Campaign
	for _, c := range m.campaigns {
		if c.AccountID == accountID {
			all = append(all, clone(c))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memCampaignRepo) SaveResults(ctx context.Context, accountID, id int, sentAt time.Time, results []model.DeliveryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.AccountID != accountID {
		return appErrors.NewCampaignNotFound(id)
	}
	m.saves++
	c.SentAt = &sentAt
	c.SendResults = append([]model.DeliveryResult(nil), results...)
	return nil
}

func (m *memCampaignRepo) ResetForResend(ctx context.Context, accountID, id, expected int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.AccountID != accountID {
		return 0, appErrors.NewCampaignNotFound(id)
	}
	if c.ResendCount != expected {
		return 0, appErrors.ErrConcurrentUpdate
	}
	c.ResendCount++
	c.SentAt = nil
	c.SendResults = nil
	return c.ResendCount, nil
}

func (m *memCampaignRepo) GetStats(ctx context.Context, accountID int, since time.Time) (*model.CampaignStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	st := m.stats
	return &st, nil
}

func (m *memCampaignRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.campaigns)
}

type memDatasetRepo map[int]model.SavedDataset

func (m memDatasetRepo) GetByID(ctx context.Context, accountID, id int) (*model.SavedDataset, error) {
	ds, ok := m[id]
	if !ok || ds.AccountID != accountID {
		return nil, appErrors.ErrDatasetNotFound
	}
	return &ds, nil
}

func (m memDatasetRepo) Create(ctx context.Context, ds *model.SavedDataset) error {
	for id := range m {
		ds.ID = max(ds.ID, id)
	}
	ds.ID++
	m[ds.ID] = *ds
	return nil
}

func (m memDatasetRepo) List(ctx context.Context, accountID int) ([]*model.DatasetSummary, error) {
	var out []*model.DatasetSummary
	for _, ds := range m {
		if ds.AccountID != accountID {
			continue
		}
		summary := ds.Summary(0)
		out = append(out, &summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m memDatasetRepo) Update(ctx context.Context, ds *model.SavedDataset) error {
	if cur, ok := m[ds.ID]; !ok || cur.AccountID != ds.AccountID {
		return appErrors.ErrDatasetNotFound
	}
	m[ds.ID] = *ds
	return nil
}

func (m memDatasetRepo) Delete(ctx context.Context, accountID, id int) error {
	if cur, ok := m[id]; !ok || cur.AccountID != accountID {
		return appErrors.ErrDatasetNotFound
	}
	delete(m, id)
	return nil
}

// recordingProvider remembers every message and fails the addresses in failOn.
type recordingProvider struct {
	mu     sync.Mutex
	sent   []provider.Message
	failOn map[string]error
}

func (p *recordingProvider) Kind() model.ProviderKind { return model.ProviderTransactional }

func (p *recordingProvider) Send(ctx context.Context, msg provider.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	if err, ok := p.failOn[msg.To]; ok {
		return err
	}
	return nil
}

func (p *recordingProvider) recipients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, m := range p.sent {
		out[i] = m.To
	}
	return out
}

type fixedSelector struct {
	p   provider.Provider
	err error
}

func (s fixedSelector) Select(ctx context.Context, accountID int) (*provider.Selection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Selection{Provider: s.p}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.Campaign
}

func (n *recordingNotifier) CampaignUpdated(ctx context.Context, accountID int, c *model.Campaign) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, c)
}

type recordingJobs struct {
	jobs []model.ResendJob
}

func (j *recordingJobs) EnqueueResend(ctx context.Context, job model.ResendJob) error {
	j.jobs = append(j.jobs, job)
	return nil
}

func row(kv ...string) model.Attributes {
	attrs := make(model.Attributes, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, model.Attribute{Name: kv[i], Value: model.String(kv[i+1])})
	}
	return attrs
}

func recipient(email string, kv ...string) model.Recipient {
	return model.Recipient{Email: email, Attributes: row(kv...)}
}
