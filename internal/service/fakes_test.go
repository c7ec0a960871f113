package service

import (
	"context"
	"fmt"
	"time"

	"github.com/queaccounting/backend/internal/domain"
)

type memUserRepo struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
	seq     int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	if _, exists := m.byEmail[u.Email]; exists {
		return domain.ErrDuplicate
	}
	if u.ID == "" {
		m.seq++
		u.ID = fmt.Sprintf("user-%d", m.seq)
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) SetActiveBusiness(_ context.Context, userID, businessID string) error {
	u, ok := m.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.ActiveBusinessID = businessID
	return nil
}

func (m *memUserRepo) Update(_ context.Context, u *domain.User) error {
	if _, ok := m.byID[u.ID]; !ok {
		return domain.ErrNotFound
	}
	u.UpdatedAt = time.Now()
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUserRepo) List(_ context.Context) ([]*domain.User, error) {
	out := []*domain.User{}
	for _, u := range m.byID {
		out = append(out, u)
	}
	return out, nil
}

type memBusinessRepo struct {
	byID map[string]*domain.Business
}

func newMemBusinessRepo() *memBusinessRepo {
	return &memBusinessRepo{byID: map[string]*domain.Business{}}
}

func (m *memBusinessRepo) GetByID(_ context.Context, id string) (*domain.Business, error) {
	if b, ok := m.byID[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memBusinessRepo) SetActive(_ context.Context, id string, active bool) error {
	b, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.IsActive = active
	return nil
}

func (m *memBusinessRepo) Count(_ context.Context) (int, error) {
	return len(m.byID), nil
}

type memSubscriptionRepo struct {
	byBusiness map[string]*domain.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{byBusiness: map[string]*domain.Subscription{}}
}

func (m *memSubscriptionRepo) GetByBusinessID(_ context.Context, businessID string) (*domain.Subscription, error) {
	if s, ok := m.byBusiness[businessID]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSubscriptionRepo) Update(_ context.Context, sub *domain.Subscription) error {
	if _, ok := m.byBusiness[sub.BusinessID]; !ok {
		return domain.ErrNotFound
	}
	sub.UpdatedAt = time.Now()
	m.byBusiness[sub.BusinessID] = sub
	return nil
}

func (m *memSubscriptionRepo) List(_ context.Context, status string, page, limit int) ([]*domain.Subscription, error) {
	out := []*domain.Subscription{}
	for _, s := range m.byBusiness {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubscriptionRepo) CountActive(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, s := range m.byBusiness {
		if s.IsCurrentlyActive(now) {
			n++
		}
	}
	return n, nil
}

func (m *memSubscriptionRepo) CountExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, s := range m.byBusiness {
		if s.Status == domain.SubscriptionExpired ||
			(s.Status == domain.SubscriptionActive && !s.IsCurrentlyActive(now)) {
			n++
		}
	}
	return n, nil
}

func (m *memSubscriptionRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, s := range m.byBusiness {
		out[s.Status]++
	}
	return out, nil
}

type memMembershipRepo struct {
	byID map[string]*domain.Membership
	seq  int
}

func newMemMembershipRepo() *memMembershipRepo {
	return &memMembershipRepo{byID: map[string]*domain.Membership{}}
}

func (m *memMembershipRepo) Create(_ context.Context, mem *domain.Membership) error {
	for _, existing := range m.byID {
		if existing.UserID == mem.UserID && existing.BusinessID == mem.BusinessID {
			return domain.ErrDuplicate
		}
	}
	if mem.ID == "" {
		m.seq++
		mem.ID = fmt.Sprintf("mem-%d", m.seq)
	}
	mem.CreatedAt = time.Now()
	m.byID[mem.ID] = mem
	return nil
}

func (m *memMembershipRepo) GetForAuthorization(ctx context.Context, userID, businessID string) (*domain.Membership, error) {
	return m.GetByUserAndBusiness(ctx, userID, businessID)
}

func (m *memMembershipRepo) GetByID(_ context.Context, id string) (*domain.Membership, error) {
	if mem, ok := m.byID[id]; ok {
		return mem, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memMembershipRepo) GetByUserAndBusiness(_ context.Context, userID, businessID string) (*domain.Membership, error) {
	for _, mem := range m.byID {
		if mem.UserID == userID && mem.BusinessID == businessID {
			return mem, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memMembershipRepo) FirstActiveForUser(_ context.Context, userID string) (*domain.Membership, error) {
	var oldest *domain.Membership
	for _, mem := range m.byID {
		if mem.UserID != userID || !mem.IsActive {
			continue
		}
		if oldest == nil || mem.CreatedAt.Before(oldest.CreatedAt) {
			oldest = mem
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	return oldest, nil
}

func (m *memMembershipRepo) ListByBusiness(_ context.Context, businessID string) ([]*domain.Membership, error) {
	out := []*domain.Membership{}
	for _, mem := range m.byID {
		if mem.BusinessID == businessID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memMembershipRepo) ListForUser(_ context.Context, userID string) ([]*domain.Membership, error) {
	out := []*domain.Membership{}
	for _, mem := range m.byID {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memMembershipRepo) SetActive(_ context.Context, id string, active bool) error {
	mem, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	mem.IsActive = active
	return nil
}

func (m *memMembershipRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memRoleRepo struct {
	byID map[string]*domain.Role
}

func newMemRoleRepo() *memRoleRepo {
	return &memRoleRepo{byID: map[string]*domain.Role{}}
}

func (m *memRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if r, ok := m.byID[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memRoleRepo) GetByName(_ context.Context, businessID, name string) (*domain.Role, error) {
	for _, r := range m.byID {
		if r.BusinessID == businessID && r.Name == name {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRoleRepo) ListByBusiness(_ context.Context, businessID string) ([]*domain.Role, error) {
	out := []*domain.Role{}
	for _, r := range m.byID {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memPermissionRepo struct {
	catalog       []domain.Permission
	byMember      map[string][]string // membershipID -> permission ids
	listCalled    int
	catalogCalled int
}

func newMemPermissionRepo(catalog []domain.Permission) *memPermissionRepo {
	return &memPermissionRepo{catalog: catalog, byMember: map[string][]string{}}
}

func (m *memPermissionRepo) ListCatalog(_ context.Context) ([]domain.Permission, error) {
	m.catalogCalled++
	return m.catalog, nil
}

func (m *memPermissionRepo) FindByModuleActions(_ context.Context, module string, actions []string) ([]domain.Permission, error) {
	out := []domain.Permission{}
	for _, p := range m.catalog {
		if p.Module != module {
			continue
		}
		for _, a := range actions {
			if p.Action == a {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *memPermissionRepo) CreateModule(_ context.Context, name string, actions []string) error {
	for _, p := range m.catalog {
		if p.Module == name {
			return domain.ErrDuplicate
		}
	}
	for i, a := range actions {
		m.catalog = append(m.catalog, domain.Permission{
			ID: fmt.Sprintf("%s-%d", name, i), Module: name, Action: a,
		})
	}
	return nil
}

func (m *memPermissionRepo) ListModules(_ context.Context) ([]domain.ModuleDef, error) {
	m.listCalled++
	byName := map[string]*domain.ModuleDef{}
	order := []string{}
	for _, p := range m.catalog {
		def, ok := byName[p.Module]
		if !ok {
			def = &domain.ModuleDef{Name: p.Module}
			byName[p.Module] = def
			order = append(order, p.Module)
		}
		def.Actions = append(def.Actions, p.Action)
	}
	out := make([]domain.ModuleDef, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (m *memPermissionRepo) ReplaceModuleActions(_ context.Context, name string, actions []string) error {
	kept := m.catalog[:0]
	found := false
	for _, p := range m.catalog {
		if p.Module == name {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return domain.ErrNotFound
	}
	m.catalog = kept
	for i, a := range actions {
		m.catalog = append(m.catalog, domain.Permission{
			ID: fmt.Sprintf("%s-%d", name, i), Module: name, Action: a,
		})
	}
	return nil
}

func (m *memPermissionRepo) DeleteModule(_ context.Context, name string) error {
	kept := m.catalog[:0]
	found := false
	for _, p := range m.catalog {
		if p.Module == name {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return domain.ErrNotFound
	}
	m.catalog = kept
	return nil
}

func (m *memPermissionRepo) GrantToMembership(_ context.Context, membershipID string, permissionIDs []string) error {
	existing := map[string]bool{}
	for _, id := range m.byMember[membershipID] {
		existing[id] = true
	}
	for _, id := range permissionIDs {
		if !existing[id] {
			m.byMember[membershipID] = append(m.byMember[membershipID], id)
		}
	}
	return nil
}

func (m *memPermissionRepo) RevokeFromMembership(_ context.Context, membershipID string, permissionIDs []string) error {
	drop := map[string]bool{}
	for _, id := range permissionIDs {
		drop[id] = true
	}
	kept := []string{}
	for _, id := range m.byMember[membershipID] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	m.byMember[membershipID] = kept
	return nil
}

func (m *memPermissionRepo) ListForMembership(_ context.Context, membershipID string) ([]domain.Permission, error) {
	out := []domain.Permission{}
	for _, id := range m.byMember[membershipID] {
		for _, p := range m.catalog {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}
