package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medichat/internal/app"
	"medichat/internal/app/apptest"
	"medichat/internal/pkg/jwtutil"
)

const testSecret = "unit-test-secret"

func newAuthService() (*apptest.MemoryUsers, *app.AuthService) {
	users := apptest.NewMemoryUsers()
	return users, app.NewAuthService(users, testSecret, time.Hour)
}

func validRegistration() app.RegisterInput {
	return app.RegisterInput{
		Username: "jane_doe",
		Email:    "jane@example.com",
		Password: "s3cure-pass",
		FullName: "Jane Doe",
	}
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	users, svc := newAuthService()

	result, err := svc.Register(validRegistration())
	require.NoError(t, err)
	assert.NotZero(t, result.User.ID)
	assert.Equal(t, "Jane Doe", result.User.FullName)
	assert.NotEqual(t, "s3cure-pass", result.User.PasswordHash)

	claims, err := jwtutil.ParseToken(testSecret, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
	assert.Equal(t, "jane_doe", claims.Username)

	// Login works by username and by email.
	for _, login := range []string{"jane_doe", "jane@example.com"} {
		logged, err := svc.Login(app.LoginInput{Login: login, Password: "s3cure-pass"})
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, logged.User.ID)
	}

	stored, err := users.FindByID(result.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestRegisterValidation(t *testing.T) {
	_, svc := newAuthService()

	cases := []struct {
		name   string
		mutate func(*app.RegisterInput)
	}{
		{"bad username", func(in *app.RegisterInput) { in.Username = "a!" }},
		{"bad email", func(in *app.RegisterInput) { in.Email = "not-an-email" }},
		{"missing full name", func(in *app.RegisterInput) { in.FullName = "   " }},
		{"short password", func(in *app.RegisterInput) { in.Password = "ab1" }},
		{"password equals username", func(in *app.RegisterInput) {
			in.Username = "password1"
			in.Password = "PASSWORD1"
		}},
		{"single-class password", func(in *app.RegisterInput) { in.Password = "abcdefgh" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validRegistration()
			tc.mutate(&input)
			_, err := svc.Register(input)
			assert.ErrorIs(t, err, app.ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicateIdentifiers(t *testing.T) {
	_, svc := newAuthService()

	_, err := svc.Register(validRegistration())
	require.NoError(t, err)

	dup := validRegistration()
	dup.Email = "other@example.com"
	_, err = svc.Register(dup)
	assert.ErrorIs(t, err, app.ErrUsernameExists)

	dup = validRegistration()
	dup.Username = "other_name"
	_, err = svc.Register(dup)
	assert.ErrorIs(t, err, app.ErrEmailExists)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, svc := newAuthService()

	_, err := svc.Register(validRegistration())
	require.NoError(t, err)

	_, err = svc.Login(app.LoginInput{Login: "jane_doe", Password: "wrong-pass1"})
	assert.ErrorIs(t, err, app.ErrInvalidCredential)

	_, err = svc.Login(app.LoginInput{Login: "nobody", Password: "s3cure-pass"})
	assert.ErrorIs(t, err, app.ErrInvalidCredential)

	_, err = svc.Login(app.LoginInput{Login: "", Password: ""})
	assert.ErrorIs(t, err, app.ErrInvalidInput)
}

func TestProfile(t *testing.T) {
	_, svc := newAuthService()

	result, err := svc.Register(validRegistration())
	require.NoError(t, err)

	user, err := svc.Profile(result.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Jane Doe", user.DisplayName())

	missing, err := svc.Profile(result.User.ID + 100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
