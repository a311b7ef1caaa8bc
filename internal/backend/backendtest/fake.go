// Package backendtest provides an in-memory Backend implementation for
// tests. It keeps records per tenant and model, tracks every scope it
// opens, and can inject transient conflicts into write operations.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/modelgate/modelgate/internal/backend"
)

type record struct {
	id        int64
	data      map[string]any
	protected bool
}

// FakeModel is an in-memory model keeping records in insertion order.
type FakeModel struct {
	fake    *Fake
	records []*record
	nextID  int64
}

type tenantState struct {
	users    map[int64]user
	sessions map[string]int64 // token -> user id
	models   map[string]*FakeModel
}

type user struct {
	id       int64
	login    string
	password string
	prefs    map[string]any
}

// FakeScope records how a transaction was opened and terminated.
type FakeScope struct {
	Tenant     string
	UserID     int64
	ReadOnly   bool
	Ctx        map[string]any
	Committed  bool
	RolledBack bool
}

func (s *FakeScope) Commit() error {
	s.Committed = true
	return nil
}

func (s *FakeScope) Rollback() error {
	s.RolledBack = true
	return nil
}

func (s *FakeScope) Context() map[string]any {
	return s.Ctx
}

// Fake implements backend.Backend in memory.
type Fake struct {
	mu      sync.Mutex
	tenants map[string]*tenantState

	// InitCalls lists every tenant Init was called for, in order.
	InitCalls []string
	// Scopes lists every scope opened by Begin, in order.
	Scopes []*FakeScope

	// BeginErr, when set, makes Begin fail.
	BeginErr error

	writeFailures int
}

func New() *Fake {
	return &Fake{tenants: map[string]*tenantState{}}
}

func (f *Fake) tenant(name string) *tenantState {
	ts, ok := f.tenants[name]
	if !ok {
		ts = &tenantState{
			users:    map[int64]user{},
			sessions: map[string]int64{},
			models:   map[string]*FakeModel{},
		}
		f.tenants[name] = ts
	}
	return ts
}

// AddUser registers a user with plain-text credentials and preference
// context.
func (f *Fake) AddUser(tenant string, id int64, login, password string, prefs map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenant(tenant).users[id] = user{id: id, login: login, password: password, prefs: prefs}
}

// AddModel registers a model under the tenant and returns it for seeding.
func (f *Fake) AddModel(tenant, name string) *FakeModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &FakeModel{fake: f, nextID: 1}
	f.tenant(tenant).models[name] = m
	return m
}

// FailNextWrites makes the next n model write operations fail with a
// transient conflict.
func (f *Fake) FailNextWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeFailures = n
}

// SessionCount reports how many sessions the tenant currently holds.
func (f *Fake) SessionCount(tenant string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tenant(tenant).sessions)
}

func (f *Fake) Init(_ context.Context, tenant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitCalls = append(f.InitCalls, tenant)
	f.tenant(tenant)
	return nil
}

func (f *Fake) Authenticate(_ context.Context, tenant, login, password string) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.tenant(tenant).users {
		if u.login == login && u.password == password {
			token := uuid.NewString()
			f.tenant(tenant).sessions[token] = u.id
			return &backend.Session{UserID: u.id, Token: token}, nil
		}
	}
	return nil, nil
}

func (f *Fake) CheckSession(_ context.Context, tenant string, userID int64, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.tenant(tenant).sessions[token]
	return ok && uid == userID
}

func (f *Fake) UserContext(_ backend.Scope, userID int64) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ts := range f.tenants {
		if u, ok := ts.users[userID]; ok {
			out := make(map[string]any, len(u.prefs))
			for k, v := range u.prefs {
				out[k] = v
			}
			return out, nil
		}
	}
	return map[string]any{}, nil
}

func (f *Fake) Begin(_ context.Context, tenant string, userID int64, readonly bool, ctxDict map[string]any) (backend.Scope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	s := &FakeScope{Tenant: tenant, UserID: userID, ReadOnly: readonly, Ctx: ctxDict}
	f.Scopes = append(f.Scopes, s)
	return s, nil
}

func (f *Fake) Model(tenant, name string) (backend.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.tenant(tenant).models[name]
	if !ok {
		return nil, &backend.ModelNotFoundError{Name: name}
	}
	return m, nil
}

// Add seeds a record and returns its id.
func (m *FakeModel) Add(values map[string]any) int64 {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()
	return m.add(values)
}

func (m *FakeModel) add(values map[string]any) int64 {
	data := make(map[string]any, len(values))
	for k, v := range values {
		data[k] = v
	}
	rec := &record{id: m.nextID, data: data}
	m.nextID++
	m.records = append(m.records, rec)
	return rec.id
}

// Protect marks a record so deleting it raises a user error.
func (m *FakeModel) Protect(id int64) {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()
	if rec := m.find(id); rec != nil {
		rec.protected = true
	}
}

func (m *FakeModel) find(id int64) *record {
	for _, rec := range m.records {
		if rec.id == id {
			return rec
		}
	}
	return nil
}

func (m *FakeModel) view(rec *record) map[string]any {
	out := make(map[string]any, len(rec.data)+1)
	for k, v := range rec.data {
		out[k] = v
	}
	out["id"] = float64(rec.id)
	return out
}

func (m *FakeModel) Search(_ backend.Scope, filter backend.Filter, offset, limit int, order []backend.Order) ([]backend.Summary, error) {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()

	matched := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		if filter.Matches(m.view(rec)) {
			matched = append(matched, rec)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range order {
			cmp, ok := backend.Compare(m.view(matched[i])[o.Field], m.view(matched[j])[o.Field])
			if !ok || cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return matched[i].id < matched[j].id
	})

	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]backend.Summary, len(matched))
	for i, rec := range matched {
		out[i] = m.summary(rec)
	}
	return out, nil
}

func (m *FakeModel) summary(rec *record) backend.Summary {
	name, _ := rec.data["name"].(string)
	return backend.Summary{ID: rec.id, RecName: name}
}

func (m *FakeModel) Create(_ backend.Scope, values []map[string]any) ([]backend.Summary, error) {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()
	if err := m.fake.consumeWriteFailure(); err != nil {
		return nil, err
	}
	out := make([]backend.Summary, len(values))
	for i, vals := range values {
		id := m.add(vals)
		out[i] = m.summary(m.find(id))
	}
	return out, nil
}

func (m *FakeModel) Read(_ backend.Scope, id int64, fields []string) (map[string]any, error) {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()
	rec := m.find(id)
	if rec == nil {
		return nil, fmt.Errorf("record %d does not exist", id)
	}
	if len(fields) == 0 {
		return m.view(rec), nil
	}
	out := map[string]any{"id": float64(rec.id)}
	for _, field := range fields {
		if v, ok := rec.data[field]; ok {
			out[field] = v
		}
	}
	return out, nil
}

func (m *FakeModel) Write(_ backend.Scope, id int64, values map[string]any) error {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()
	if err := m.fake.consumeWriteFailure(); err != nil {
		return err
	}
	rec := m.find(id)
	if rec == nil {
		return fmt.Errorf("record %d does not exist", id)
	}
	for k, v := range values {
		rec.data[k] = v
	}
	return nil
}

func (m *FakeModel) Delete(_ backend.Scope, ids []int64) error {
	m.fake.mu.Lock()
	defer m.fake.mu.Unlock()
	if err := m.fake.consumeWriteFailure(); err != nil {
		return err
	}
	for _, id := range ids {
		rec := m.find(id)
		if rec == nil {
			continue
		}
		if rec.protected {
			return &backend.UserError{
				Code:        "protected",
				Message:     fmt.Sprintf("record %d cannot be deleted", id),
				Description: "the record is protected against deletion",
			}
		}
	}
	kept := m.records[:0]
	for _, rec := range m.records {
		remove := false
		for _, id := range ids {
			if rec.id == id {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, rec)
		}
	}
	m.records = kept
	return nil
}

func (f *Fake) consumeWriteFailure() error {
	if f.writeFailures > 0 {
		f.writeFailures--
		return backend.Operational(errors.New("could not serialize access due to concurrent update"))
	}
	return nil
}
