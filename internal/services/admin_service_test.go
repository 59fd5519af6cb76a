package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdminService(repo *MockUserRepository, sessions *MockSessionRepository) *AdminService {
	if sessions == nil {
		sessions = &MockSessionRepository{}
	}
	return NewAdminService(repo, NewSessionService(sessions, time.Hour, time.Hour, testLogger()), testLogger(), testAuditLogger())
}

// ============================================================================
// CreateAdmin
// ============================================================================

func TestAdminService_CreateAdmin_Success(t *testing.T) {
	var created *models.User
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, u *models.User) (*models.User, error) {
			u.ID = "admin-1"
			created = u
			return u, nil
		},
	}
	svc := newTestAdminService(repo, nil)

	user, err := svc.CreateAdmin(context.Background(), models.CreateAdminRequest{
		Username: "boss",
		Email:    "Boss@Yoked.app",
		Password: strongPassword,
	}, "admin-secret")

	require.NoError(t, err)
	assert.Equal(t, "admin-1", user.ID)
	assert.Equal(t, "boss@yoked.app", created.Email)
	assert.Equal(t, models.UserTypeAdmin, created.UserType)
	assert.True(t, created.IsVerified)
	assert.Equal(t, models.SetupStepCompleted, created.SetupStep)
	assert.Equal(t, SecretFingerprint("admin-secret"), created.AdminSecretKey)
	assert.NotEqual(t, "admin-secret", created.AdminSecretKey)
	assert.True(t, pkgauth.VerifyPassword(created.PasswordHash, strongPassword))
}

func TestAdminService_CreateAdmin_EmailTaken(t *testing.T) {
	repo := &MockUserRepository{
		ExistsByUsernameOrEmailFunc: func(ctx context.Context, username, email string) (bool, bool, error) {
			return false, true, nil
		},
	}
	svc := newTestAdminService(repo, nil)

	_, err := svc.CreateAdmin(context.Background(), models.CreateAdminRequest{Username: "boss", Email: "a@b.com", Password: strongPassword}, "s")

	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestAdminService_CreateAdmin_WeakPassword(t *testing.T) {
	svc := newTestAdminService(&MockUserRepository{}, nil)

	_, err := svc.CreateAdmin(context.Background(), models.CreateAdminRequest{Username: "boss", Email: "a@b.com", Password: "weak"}, "s")

	assert.ErrorIs(t, err, ErrWeakPassword)
}

// ============================================================================
// Bootstrap
// ============================================================================

func TestAdminService_Bootstrap_CreatesOnce(t *testing.T) {
	var created *models.User
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, u *models.User) (*models.User, error) {
			created = u
			return u, nil
		},
	}
	svc := newTestAdminService(repo, nil)

	err := svc.Bootstrap(context.Background(), "ops.team@yoked.app", strongPassword, "secret")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "opsteam", created.Username)
	assert.Equal(t, models.UserTypeAdmin, created.UserType)
}

func TestAdminService_Bootstrap_ExistingAccountUntouched(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "existing"}, nil
		},
		CreateFunc: func(ctx context.Context, u *models.User) (*models.User, error) {
			t.Fatal("must not create")
			return nil, nil
		},
	}
	svc := newTestAdminService(repo, nil)

	assert.NoError(t, svc.Bootstrap(context.Background(), "ops@yoked.app", strongPassword, "secret"))
}

func TestAdminService_Bootstrap_Unconfigured(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			t.Fatal("must not look up")
			return nil, nil
		},
	}
	svc := newTestAdminService(repo, nil)

	assert.NoError(t, svc.Bootstrap(context.Background(), "", "", ""))
}

func TestBootstrapUsername(t *testing.T) {
	assert.Equal(t, "adminab", bootstrapUsername("a.b@x.com"))
	assert.Equal(t, "root", bootstrapUsername("root@x.com"))
}

// ============================================================================
// Moderation
// ============================================================================

func TestAdminService_Deactivate_EndsSessions(t *testing.T) {
	var invalidated string
	sessions := &MockSessionRepository{
		DeleteByUserFunc: func(ctx context.Context, userID string, isMobile *bool, exceptID string) (int64, error) {
			invalidated = userID
			return 2, nil
		},
	}
	svc := newTestAdminService(&MockUserRepository{}, sessions)

	user, err := svc.Deactivate(context.Background(), "admin-1", "user-1")

	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.Equal(t, "user-1", invalidated)
}

func TestAdminService_Deactivate_Self(t *testing.T) {
	svc := newTestAdminService(&MockUserRepository{}, nil)

	_, err := svc.Deactivate(context.Background(), "admin-1", "admin-1")

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAdminService_Deactivate_UnknownUser(t *testing.T) {
	repo := &MockUserRepository{
		SetActiveFunc: func(ctx context.Context, userID string, active bool) (*models.User, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := newTestAdminService(repo, nil)

	_, err := svc.Deactivate(context.Background(), "admin-1", "ghost")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminService_Reactivate(t *testing.T) {
	svc := newTestAdminService(&MockUserRepository{}, nil)

	user, err := svc.Reactivate(context.Background(), "admin-1", "user-1")

	require.NoError(t, err)
	assert.True(t, user.IsActive)
}

func TestAdminService_SetFlagged(t *testing.T) {
	svc := newTestAdminService(&MockUserRepository{}, nil)

	user, err := svc.SetFlagged(context.Background(), "admin-1", "user-1", true)

	require.NoError(t, err)
	assert.True(t, user.FlaggedForReview)
}

func TestAdminService_ListUsers_RepositoryError(t *testing.T) {
	repo := &MockUserRepository{
		ListByTypeFunc: func(ctx context.Context, userType models.UserType, limit, offset int) ([]*models.User, int, error) {
			return nil, 0, errors.New("db down")
		},
	}
	svc := newTestAdminService(repo, nil)

	_, _, err := svc.ListUsers(context.Background(), models.UserTypeRegular, 20, 0)

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAdminService_ListFlagged_PassesPaging(t *testing.T) {
	repo := &MockUserRepository{
		ListFlaggedFunc: func(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
			assert.Equal(t, 10, limit)
			assert.Equal(t, 30, offset)
			return []*models.User{{ID: "u"}}, 31, nil
		},
	}
	svc := newTestAdminService(repo, nil)

	users, total, err := svc.ListFlagged(context.Background(), 10, 30)

	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 31, total)
}
