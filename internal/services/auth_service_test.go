package services_test

import (
	"testing"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService() (*services.AuthService, *repositories.MockUserRepository) {
	repo := repositories.NewMockUserRepository()
	return services.NewAuthService(repo, "test_jwt_secret"), repo
}

func TestAuthService_RegisterUser(t *testing.T) {
	svc, repo := newAuthService()

	user := models.User{
		Username: "buyer",
		Name:     "Buyer One",
		Email:    "  Buyer@Example.com ",
		Password: "password123",
	}
	require.NoError(t, svc.RegisterUser(&user))

	stored, err := repo.GetByUsername("buyer")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", stored.Email)
	assert.NotEqual(t, "password123", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("password123")))

	// Duplicate username
	err = svc.RegisterUser(&models.User{Username: "buyer", Email: "other@example.com", Password: "password123"})
	assert.ErrorIs(t, err, services.ErrUsernameTaken)

	// Duplicate email under a different username
	err = svc.RegisterUser(&models.User{Username: "buyer2", Email: "buyer@example.com", Password: "password123"})
	assert.ErrorIs(t, err, services.ErrEmailRegistered)
}

func TestAuthService_RegisterUser_NameDefaultsToUsername(t *testing.T) {
	svc, repo := newAuthService()

	require.NoError(t, svc.RegisterUser(&models.User{
		Username: "anon", Email: "anon@example.com", Password: "password123",
	}))

	stored, err := repo.GetByUsername("anon")
	require.NoError(t, err)
	assert.Equal(t, "anon", stored.Name)
}

func TestAuthService_LoginAndValidate(t *testing.T) {
	svc, _ := newAuthService()
	user := models.User{Username: "buyer", Name: "Buyer One", Email: "buyer@example.com", Password: "password123"}
	require.NoError(t, svc.RegisterUser(&user))

	token, err := svc.LoginUser("buyer", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// The claims carry everything the order/payment handlers key on.
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, "buyer", claims["username"])
	assert.Equal(t, "Buyer One", claims["name"])

	_, err = svc.LoginUser("buyer", "wrong-password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = svc.LoginUser("nobody", "password123")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestAuthService_ValidateToken_Rejects(t *testing.T) {
	svc, _ := newAuthService()
	user := models.User{Username: "buyer", Email: "buyer@example.com", Password: "password123"}
	require.NoError(t, svc.RegisterUser(&user))

	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)

	// A token signed under a different secret does not validate here.
	other := services.NewAuthService(repositories.NewMockUserRepository(), "other_secret")
	require.NoError(t, other.RegisterUser(&models.User{
		Username: "buyer", Email: "buyer@example.com", Password: "password123",
	}))
	foreignToken, err := other.LoginUser("buyer", "password123")
	require.NoError(t, err)

	_, err = svc.ValidateToken(foreignToken)
	assert.Error(t, err)
}
