package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/BradenHooton/yoked/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(repo *MockUserRepository, store *MockObjectStore, canceller *MockSubscriptionCanceller) *UserService {
	if store == nil {
		store = &MockObjectStore{}
	}
	if canceller == nil {
		canceller = &MockSubscriptionCanceller{}
	}
	return NewUserService(repo, store, canceller, testLogger(), testAuditLogger())
}

func intPtr(v int) *int { return &v }

// ============================================================================
// GetUserByID
// ============================================================================

func TestUserService_GetUserByID_NotFound(t *testing.T) {
	svc := newTestUserService(&MockUserRepository{}, nil, nil)

	_, err := svc.GetUserByID(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserService_GetUserByID_RepositoryError(t *testing.T) {
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return nil, errors.New("db down")
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.GetUserByID(context.Background(), "user-1")

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

// ============================================================================
// UpdateProfile
// ============================================================================

func TestUserService_UpdateProfile_TrimsFieldsAndLeavesStepToRepository(t *testing.T) {
	var saved *models.User
	repo := &MockUserRepository{
		UpdateProfileFunc: func(ctx context.Context, u *models.User, expected *int) (*models.User, error) {
			saved = u
			assert.Nil(t, expected)
			stored := *u
			stored.SetupStep = models.SetupStepSubscriptionSelection
			return &stored, nil
		},
	}
	svc := newTestUserService(repo, nil, nil)
	user := &models.User{ID: "user-1", Username: "lifter", SetupStep: models.SetupStepProfileCompletion}

	result, err := svc.UpdateProfile(context.Background(), user, models.UpdateProfileRequest{FullName: " Lift Er ", Bio: "squats"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Lift Er", saved.FullName)
	assert.Equal(t, "squats", saved.Bio)
	assert.Equal(t, models.SetupStepSubscriptionSelection, result.SetupStep, "step comes back from the stored row")
	assert.Equal(t, models.SetupStepProfileCompletion, user.SetupStep, "caller's user is not mutated")
}

func TestUserService_UpdateProfile_BodyVersionWinsOverIfMatch(t *testing.T) {
	var got *int
	repo := &MockUserRepository{
		UpdateProfileFunc: func(ctx context.Context, u *models.User, expected *int) (*models.User, error) {
			got = expected
			return u, nil
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), &models.User{ID: "u"}, models.UpdateProfileRequest{ExpectedVersion: intPtr(3)}, intPtr(7))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, *got)
}

func TestUserService_UpdateProfile_IfMatchFallback(t *testing.T) {
	var got *int
	repo := &MockUserRepository{
		UpdateProfileFunc: func(ctx context.Context, u *models.User, expected *int) (*models.User, error) {
			got = expected
			return u, nil
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), &models.User{ID: "u"}, models.UpdateProfileRequest{}, intPtr(7))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, *got)
}

func TestUserService_UpdateProfile_VersionMismatch(t *testing.T) {
	repo := &MockUserRepository{
		UpdateProfileFunc: func(ctx context.Context, u *models.User, expected *int) (*models.User, error) {
			return nil, models.ErrVersionMismatch
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), &models.User{ID: "u"}, models.UpdateProfileRequest{ExpectedVersion: intPtr(1)}, nil)

	assert.ErrorIs(t, err, models.ErrVersionMismatch)
}

func TestUserService_UpdateProfile_UsernameTaken(t *testing.T) {
	repo := &MockUserRepository{
		ExistsByUsernameOrEmailFunc: func(ctx context.Context, username, email string) (bool, bool, error) {
			assert.Equal(t, "newname", username)
			return true, false, nil
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), &models.User{ID: "u", Username: "old"}, models.UpdateProfileRequest{Username: "newname"}, nil)

	assert.ErrorIs(t, err, models.ErrUsernameTaken)
}

func TestUserService_UpdateProfile_SameUsernameSkipsCheck(t *testing.T) {
	repo := &MockUserRepository{
		ExistsByUsernameOrEmailFunc: func(ctx context.Context, username, email string) (bool, bool, error) {
			t.Fatal("unchanged username must not be checked")
			return false, false, nil
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), &models.User{ID: "u", Username: "Lifter"}, models.UpdateProfileRequest{Username: "lifter"}, nil)

	assert.NoError(t, err)
}

func TestUserService_UpdateProfile_UniqueViolationRace(t *testing.T) {
	repo := &MockUserRepository{
		UpdateProfileFunc: func(ctx context.Context, u *models.User, expected *int) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc := newTestUserService(repo, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), &models.User{ID: "u"}, models.UpdateProfileRequest{Username: "racer"}, nil)

	assert.ErrorIs(t, err, models.ErrUsernameTaken)
}

// ============================================================================
// UploadAvatar
// ============================================================================

func TestUserService_UploadAvatar_ReplacesOldPicture(t *testing.T) {
	var putKey, deletedKey string
	store := &MockObjectStore{
		PutFunc: func(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
			putKey = key
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, "png-bytes", string(data))
			return "https://cdn.test/" + key, nil
		},
		DeleteFunc: func(ctx context.Context, key string) error {
			deletedKey = key
			return nil
		},
	}
	svc := newTestUserService(&MockUserRepository{}, store, nil)
	user := &models.User{ID: "user-1", ProfilePicture: "https://cdn.test/avatars/user-1/old.png"}

	updated, err := svc.UploadAvatar(context.Background(), user, "image/png", strings.NewReader("png-bytes"), 9)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(putKey, "avatars/user-1/"))
	assert.True(t, strings.HasSuffix(putKey, ".png"))
	assert.Equal(t, "https://cdn.test/"+putKey, updated.ProfilePicture)
	assert.Equal(t, "avatars/user-1/old.png", deletedKey)
}

func TestUserService_UploadAvatar_RejectsType(t *testing.T) {
	svc := newTestUserService(&MockUserRepository{}, nil, nil)

	_, err := svc.UploadAvatar(context.Background(), &models.User{ID: "u"}, "image/gif", strings.NewReader("x"), 1)

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestUserService_UploadAvatar_RejectsSize(t *testing.T) {
	svc := newTestUserService(&MockUserRepository{}, nil, nil)

	_, err := svc.UploadAvatar(context.Background(), &models.User{ID: "u"}, "image/jpeg", strings.NewReader("x"), MaxAvatarBytes+1)

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestUserService_UploadAvatar_DBFailureRemovesUpload(t *testing.T) {
	var deleted []string
	store := &MockObjectStore{
		DeleteFunc: func(ctx context.Context, key string) error {
			deleted = append(deleted, key)
			return nil
		},
	}
	repo := &MockUserRepository{
		UpdateProfilePictureFunc: func(ctx context.Context, userID, url string) (*models.User, error) {
			return nil, errors.New("db down")
		},
	}
	svc := newTestUserService(repo, store, nil)

	_, err := svc.UploadAvatar(context.Background(), &models.User{ID: "u"}, "image/webp", strings.NewReader("x"), 1)

	assert.ErrorIs(t, err, models.ErrInternalServer)
	require.Len(t, deleted, 1)
	assert.True(t, strings.HasSuffix(deleted[0], ".webp"))
}

// ============================================================================
// DeleteAccount
// ============================================================================

func TestUserService_DeleteAccount_Success(t *testing.T) {
	var order []string
	canceller := &MockSubscriptionCanceller{
		CancelUserSubscriptionsFunc: func(ctx context.Context, userID string) error {
			order = append(order, "cancel")
			return nil
		},
	}
	repo := &MockUserRepository{
		DeleteFunc: func(ctx context.Context, id string) error {
			order = append(order, "delete")
			return nil
		},
	}
	store := &MockObjectStore{
		DeleteFunc: func(ctx context.Context, key string) error {
			order = append(order, "avatar:"+key)
			return nil
		},
	}
	svc := newTestUserService(repo, store, canceller)
	user := &models.User{ID: "user-1", PasswordHash: mustHash(t, strongPassword), ProfilePicture: "https://cdn.test/avatars/user-1/a.jpg"}

	err := svc.DeleteAccount(context.Background(), user, strongPassword)

	require.NoError(t, err)
	assert.Equal(t, []string{"cancel", "delete", "avatar:avatars/user-1/a.jpg"}, order)
}

func TestUserService_DeleteAccount_WrongPassword(t *testing.T) {
	repo := &MockUserRepository{
		DeleteFunc: func(ctx context.Context, id string) error {
			t.Fatal("must not delete")
			return nil
		},
	}
	svc := newTestUserService(repo, nil, nil)

	err := svc.DeleteAccount(context.Background(), &models.User{ID: "u", PasswordHash: mustHash(t, strongPassword)}, "wrong")

	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestUserService_DeleteAccount_CancelFailureKeepsAccount(t *testing.T) {
	canceller := &MockSubscriptionCanceller{
		CancelUserSubscriptionsFunc: func(ctx context.Context, userID string) error {
			return models.ErrPaymentProvider
		},
	}
	repo := &MockUserRepository{
		DeleteFunc: func(ctx context.Context, id string) error {
			t.Fatal("must not delete")
			return nil
		},
	}
	svc := newTestUserService(repo, nil, canceller)

	err := svc.DeleteAccount(context.Background(), &models.User{ID: "u", PasswordHash: mustHash(t, strongPassword)}, strongPassword)

	assert.ErrorIs(t, err, models.ErrPaymentProvider)
}
