package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/audit"
)

type memProvisioningRepo struct {
	businesses *memBusinessRepo
	users      *memUserRepo
	fail       error
}

func (m *memProvisioningRepo) CreateBusiness(ctx context.Context, ownerID, name string) (*domain.Business, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	b := &domain.Business{
		ID:       "biz-" + name,
		Name:     name,
		OwnerID:  ownerID,
		IsActive: false,
		Subscription: &domain.Subscription{
			ID: "sub-" + name, BusinessID: "biz-" + name, Status: domain.SubscriptionInactive,
		},
	}
	m.businesses.byID[b.ID] = b
	if err := m.users.SetActiveBusiness(ctx, ownerID, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

type businessFixture struct {
	svc         *BusinessService
	users       *memUserRepo
	businesses  *memBusinessRepo
	memberships *memMembershipRepo
	owner       *domain.User
}

func newBusinessFixture(t *testing.T) *businessFixture {
	t.Helper()
	users := newMemUserRepo()
	businesses := newMemBusinessRepo()
	memberships := newMemMembershipRepo()
	provisioning := &memProvisioningRepo{businesses: businesses, users: users}
	authSvc := NewAuthService(users, memberships, newTestTokens(), "", "", nil)

	owner := &domain.User{Name: "Owner", Email: "owner@example.com", Role: domain.CoarseRoleUser, IsActive: true}
	require.NoError(t, users.Create(context.Background(), owner))

	return &businessFixture{
		svc: NewBusinessService(provisioning, businesses, memberships, users,
			authSvc, audit.NewLogger(nil), nil),
		users:       users,
		businesses:  businesses,
		memberships: memberships,
		owner:       owner,
	}
}

func TestCreateBusinessReissuesToken(t *testing.T) {
	f := newBusinessFixture(t)
	ctx := context.Background()
	principal := &domain.Principal{ID: f.owner.ID, Email: f.owner.Email}

	result, err := f.svc.CreateBusiness(ctx, principal, "Acme")
	require.NoError(t, err)
	assert.False(t, result.Business.IsActive, "new businesses start inactive")
	assert.Equal(t, domain.SubscriptionInactive, result.Business.Subscription.Status)
	assert.Equal(t, result.Business.ID, result.Auth.ActiveBusinessID,
		"fresh tokens must point at the new business")

	claims, err := newTestTokens().Verify(result.Auth.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Business.ID, claims.ActiveBusinessID)
}

func TestCreateBusinessRejectsBootstrapAdmin(t *testing.T) {
	f := newBusinessFixture(t)
	principal := &domain.Principal{Email: "root@example.com", BootstrapAdmin: true}

	_, err := f.svc.CreateBusiness(context.Background(), principal, "Shadow Corp")
	assert.ErrorIs(t, err, domain.ErrProvisioningFailed)
}

func TestSwitchBusinessRequiresActiveMembership(t *testing.T) {
	f := newBusinessFixture(t)
	ctx := context.Background()

	f.businesses.byID["biz-2"] = &domain.Business{ID: "biz-2", Name: "Other", OwnerID: "someone-else", IsActive: true}

	principal := &domain.Principal{ID: f.owner.ID}

	// No membership at all
	_, err := f.svc.SwitchBusiness(ctx, principal, "biz-2")
	assert.ErrorIs(t, err, domain.ErrNotAMember)
	assert.Empty(t, f.users.byID[f.owner.ID].ActiveBusinessID,
		"a denied switch must not change the remembered business")

	// Disabled membership
	require.NoError(t, f.memberships.Create(ctx, &domain.Membership{
		ID: "mem-1", UserID: f.owner.ID, BusinessID: "biz-2", RoleID: "role-user", IsActive: false,
	}))
	_, err = f.svc.SwitchBusiness(ctx, principal, "biz-2")
	assert.ErrorIs(t, err, domain.ErrMembershipDisabled)

	// Active membership switches and reissues
	f.memberships.byID["mem-1"].IsActive = true
	result, err := f.svc.SwitchBusiness(ctx, principal, "biz-2")
	require.NoError(t, err)
	assert.Equal(t, "biz-2", result.ActiveBusinessID)
	assert.Equal(t, "biz-2", f.users.byID[f.owner.ID].ActiveBusinessID)
}

func TestSwitchBusinessOwnerWithoutMembership(t *testing.T) {
	f := newBusinessFixture(t)
	ctx := context.Background()

	f.businesses.byID["biz-own"] = &domain.Business{ID: "biz-own", Name: "Mine", OwnerID: f.owner.ID, IsActive: true}

	result, err := f.svc.SwitchBusiness(ctx, &domain.Principal{ID: f.owner.ID}, "biz-own")
	require.NoError(t, err)
	assert.Equal(t, "biz-own", result.ActiveBusinessID)
}

func TestSwitchBusinessUnknownBusiness(t *testing.T) {
	f := newBusinessFixture(t)

	_, err := f.svc.SwitchBusiness(context.Background(), &domain.Principal{ID: f.owner.ID}, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
