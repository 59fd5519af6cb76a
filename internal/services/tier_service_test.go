package services

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/yoked/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTierService(repo *MockTierRepository, tx *MockTransactor) *TierService {
	if tx == nil {
		tx = &MockTransactor{}
	}
	return NewTierService(repo, tx, testLogger(), testAuditLogger())
}

func premiumRequest() models.TierRequest {
	return models.TierRequest{
		Name:              "Premium",
		Price:             1999,
		Currency:          "usd",
		RecurringInterval: models.IntervalMonthly,
	}
}

// ============================================================================
// List
// ============================================================================

func TestTierService_List_ReadsVersionInSameTransaction(t *testing.T) {
	tx := &MockTransactor{}
	repo := &MockTierRepository{
		CatalogVersionFunc: func(ctx context.Context) (int64, error) { return 9, nil },
		ListFunc: func(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, error) {
			assert.True(t, includeInactive)
			return []*models.SubscriptionTier{{ID: "t1"}, {ID: "t2"}}, nil
		},
	}
	svc := newTestTierService(repo, tx)

	tiers, version, err := svc.List(context.Background(), true)

	require.NoError(t, err)
	assert.Len(t, tiers, 2)
	assert.Equal(t, int64(9), version)
	assert.Equal(t, 1, tx.Calls)
}

func TestTierService_List_Error(t *testing.T) {
	repo := &MockTierRepository{
		ListFunc: func(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, error) {
			return nil, errors.New("db down")
		},
	}
	svc := newTestTierService(repo, nil)

	_, _, err := svc.List(context.Background(), false)

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

// ============================================================================
// Mutations
// ============================================================================

func TestTierService_Create_BumpsCatalog(t *testing.T) {
	bumped := 0
	repo := &MockTierRepository{
		CreateFunc: func(ctx context.Context, tier *models.SubscriptionTier) (*models.SubscriptionTier, error) {
			tier.ID = "tier-1"
			return tier, nil
		},
		BumpCatalogVersionFunc: func(ctx context.Context) (int64, error) {
			bumped++
			return 2, nil
		},
	}
	svc := newTestTierService(repo, nil)

	tier, err := svc.Create(context.Background(), "admin-1", premiumRequest())

	require.NoError(t, err)
	assert.Equal(t, "tier-1", tier.ID)
	assert.True(t, tier.IsActive, "tiers are active unless told otherwise")
	assert.Equal(t, []string{}, tier.Features)
	assert.Equal(t, 1, bumped)
}

func TestTierService_Create_DuplicateName(t *testing.T) {
	repo := &MockTierRepository{
		CreateFunc: func(ctx context.Context, tier *models.SubscriptionTier) (*models.SubscriptionTier, error) {
			return nil, models.ErrConflict
		},
		BumpCatalogVersionFunc: func(ctx context.Context) (int64, error) {
			t.Fatal("failed mutation must not bump")
			return 0, nil
		},
	}
	svc := newTestTierService(repo, nil)

	_, err := svc.Create(context.Background(), "admin-1", premiumRequest())

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestTierService_Update_PassesExpectedVersion(t *testing.T) {
	var expected *int
	repo := &MockTierRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.SubscriptionTier, error) {
			return &models.SubscriptionTier{ID: id, Name: "Old", Version: 4}, nil
		},
		UpdateFunc: func(ctx context.Context, tier *models.SubscriptionTier, v *int) (*models.SubscriptionTier, error) {
			expected = v
			return tier, nil
		},
	}
	svc := newTestTierService(repo, nil)
	req := premiumRequest()
	req.ExpectedVersion = intPtr(4)

	tier, err := svc.Update(context.Background(), "admin-1", "tier-1", req)

	require.NoError(t, err)
	assert.Equal(t, "Premium", tier.Name)
	require.NotNil(t, expected)
	assert.Equal(t, 4, *expected)
}

func TestTierService_Update_StaleVersion(t *testing.T) {
	repo := &MockTierRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.SubscriptionTier, error) {
			return &models.SubscriptionTier{ID: id}, nil
		},
		UpdateFunc: func(ctx context.Context, tier *models.SubscriptionTier, v *int) (*models.SubscriptionTier, error) {
			return nil, models.ErrVersionMismatch
		},
	}
	svc := newTestTierService(repo, nil)

	_, err := svc.Update(context.Background(), "admin-1", "tier-1", premiumRequest())

	assert.ErrorIs(t, err, models.ErrVersionMismatch)
}

func TestTierService_Update_NotFound(t *testing.T) {
	svc := newTestTierService(&MockTierRepository{}, nil)

	_, err := svc.Update(context.Background(), "admin-1", "missing", premiumRequest())

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTierService_Deactivate(t *testing.T) {
	repo := &MockTierRepository{
		DeactivateFunc: func(ctx context.Context, id string) (*models.SubscriptionTier, error) {
			return &models.SubscriptionTier{ID: id, IsActive: false}, nil
		},
	}
	svc := newTestTierService(repo, nil)

	tier, err := svc.Deactivate(context.Background(), "admin-1", "tier-1")

	require.NoError(t, err)
	assert.False(t, tier.IsActive)
}

func TestTierService_Delete_InUse(t *testing.T) {
	repo := &MockTierRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.SubscriptionTier, error) {
			return &models.SubscriptionTier{ID: id, Name: "Premium"}, nil
		},
		CountReferencesFunc: func(ctx context.Context, id, name string) (int, error) {
			assert.Equal(t, "Premium", name)
			return 3, nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			t.Fatal("referenced tier must not be deleted")
			return nil
		},
	}
	svc := newTestTierService(repo, nil)

	err := svc.Delete(context.Background(), "admin-1", "tier-1")

	assert.ErrorIs(t, err, models.ErrTierInUse)
}

func TestTierService_Delete_Unreferenced(t *testing.T) {
	deleted := ""
	repo := &MockTierRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.SubscriptionTier, error) {
			return &models.SubscriptionTier{ID: id, Name: "Old"}, nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newTestTierService(repo, nil)

	require.NoError(t, svc.Delete(context.Background(), "admin-1", "tier-1"))
	assert.Equal(t, "tier-1", deleted)
}

func TestTierService_TransactionFailure(t *testing.T) {
	svc := newTestTierService(&MockTierRepository{}, &MockTransactor{Err: errors.New("begin failed")})

	_, err := svc.Create(context.Background(), "admin-1", premiumRequest())

	assert.ErrorIs(t, err, models.ErrInternalServer)
}
