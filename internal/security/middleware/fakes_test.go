package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/queaccounting/backend/internal/domain"
)

type stubUsers struct {
	byID      map[string]*domain.User
	persisted map[string]string // userID -> businessID via SetActiveBusiness
}

func newStubUsers(users ...*domain.User) *stubUsers {
	s := &stubUsers{byID: map[string]*domain.User{}, persisted: map[string]string{}}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) Create(_ context.Context, u *domain.User) error {
	s.byID[u.ID] = u
	return nil
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubUsers) SetActiveBusiness(_ context.Context, userID, businessID string) error {
	if _, ok := s.byID[userID]; !ok {
		return domain.ErrNotFound
	}
	s.byID[userID].ActiveBusinessID = businessID
	s.persisted[userID] = businessID
	return nil
}

func (s *stubUsers) Update(_ context.Context, u *domain.User) error {
	s.byID[u.ID] = u
	return nil
}

func (s *stubUsers) List(_ context.Context) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	return out, nil
}

type stubBusinesses struct {
	byID map[string]*domain.Business
}

func newStubBusinesses(businesses ...*domain.Business) *stubBusinesses {
	s := &stubBusinesses{byID: map[string]*domain.Business{}}
	for _, b := range businesses {
		s.byID[b.ID] = b
	}
	return s
}

func (s *stubBusinesses) GetByID(_ context.Context, id string) (*domain.Business, error) {
	if b, ok := s.byID[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubBusinesses) SetActive(_ context.Context, id string, active bool) error {
	if b, ok := s.byID[id]; ok {
		b.IsActive = active
		return nil
	}
	return domain.ErrNotFound
}

func (s *stubBusinesses) Count(_ context.Context) (int, error) {
	return len(s.byID), nil
}

type stubMemberships struct {
	byUserBusiness map[string]*domain.Membership // userID + "/" + businessID
	firstActive    *domain.Membership
}

func newStubMemberships(memberships ...*domain.Membership) *stubMemberships {
	s := &stubMemberships{byUserBusiness: map[string]*domain.Membership{}}
	for _, m := range memberships {
		s.byUserBusiness[m.UserID+"/"+m.BusinessID] = m
	}
	return s
}

func (s *stubMemberships) Create(_ context.Context, m *domain.Membership) error {
	s.byUserBusiness[m.UserID+"/"+m.BusinessID] = m
	return nil
}

func (s *stubMemberships) GetForAuthorization(_ context.Context, userID, businessID string) (*domain.Membership, error) {
	if m, ok := s.byUserBusiness[userID+"/"+businessID]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubMemberships) GetByID(_ context.Context, id string) (*domain.Membership, error) {
	for _, m := range s.byUserBusiness {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubMemberships) GetByUserAndBusiness(ctx context.Context, userID, businessID string) (*domain.Membership, error) {
	return s.GetForAuthorization(ctx, userID, businessID)
}

func (s *stubMemberships) FirstActiveForUser(_ context.Context, userID string) (*domain.Membership, error) {
	if s.firstActive != nil && s.firstActive.UserID == userID {
		return s.firstActive, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubMemberships) ListByBusiness(_ context.Context, businessID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	for _, m := range s.byUserBusiness {
		if m.BusinessID == businessID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubMemberships) ListForUser(_ context.Context, userID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	for _, m := range s.byUserBusiness {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubMemberships) SetActive(_ context.Context, id string, active bool) error {
	for _, m := range s.byUserBusiness {
		if m.ID == id {
			m.IsActive = active
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *stubMemberships) Delete(_ context.Context, id string) error {
	for k, m := range s.byUserBusiness {
		if m.ID == id {
			delete(s.byUserBusiness, k)
			return nil
		}
	}
	return domain.ErrNotFound
}

type stubChecker struct {
	active bool
	err    error
	calls  int
}

func (s *stubChecker) IsActive(_ context.Context, _ string) (bool, error) {
	s.calls++
	return s.active, s.err
}

type stubEvaluator struct {
	err error
}

func (s *stubEvaluator) Evaluate(_ domain.Principal, _ *domain.Business, _ *domain.Membership, _, _ string) error {
	return s.err
}

// requestWith builds a request carrying the given principal and, optionally,
// an already resolved tenant.
func requestWith(t *testing.T, method string, principal *domain.Principal, tenant *Tenant) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, "/api/test", nil)
	ctx := r.Context()
	if principal != nil {
		ctx = context.WithValue(ctx, principalContextKey{}, *principal)
	}
	if tenant != nil {
		ctx = withTenant(ctx, tenant)
	}
	return r.WithContext(ctx)
}

// capture wraps a handler recording whether it ran and what context it saw
type capture struct {
	called    bool
	principal domain.Principal
	tenant    *Tenant
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.principal, _ = PrincipalFromContext(r.Context())
		c.tenant, _ = TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}
