package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUserServiceTest(t *testing.T) (*serviceFixture, UserService, *fakeSender) {
	f := newServiceFixture(t)
	sender := &fakeSender{}
	return f, NewUserService(f.userRepo, f.storeRepo, sender, "https://deliveries.example.com"), sender
}

func newDriverInput(username string, storeIDs ...uint) CreateUserInput {
	return CreateUserInput{
		Username:    username,
		Email:       username + "@drivers.example.com",
		Password:    "secret123",
		FirstName:   "Dan",
		LastName:    "Driver",
		PhoneNumber: "+15559990000",
		IsDriver:    true,
		StoreIDs:    storeIDs,
	}
}

func TestUserService_CreateUser_ByManager(t *testing.T) {
	f, users, sender := setupUserServiceTest(t)

	user, err := users.CreateUser(context.Background(), f.managerA, newDriverInput("dan", f.storeA.ID))
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.True(t, user.IsDriver)
	assert.False(t, user.IsPhoneVerified)
	assert.NotEmpty(t, user.PhoneVerificationToken)
	assert.NotEqual(t, "secret123", user.PasswordHash)

	stored, err := f.userRepo.FindByIDWithStores(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.storeA.ID}, stored.StoreIDs())

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+15559990000", msgs[0].To)
	assert.Contains(t, msgs[0].Body, "https://deliveries.example.com/verify-phone?token="+user.PhoneVerificationToken)
}

func TestUserService_CreateUser_StoreScoping(t *testing.T) {
	f, users, _ := setupUserServiceTest(t)

	_, err := users.CreateUser(context.Background(), f.managerA, newDriverInput("dan", f.storeB.ID))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	input := newDriverInput("root2", f.storeA.ID)
	input.IsSuperuser = true
	_, err = users.CreateUser(context.Background(), f.managerA, input)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = users.CreateUser(context.Background(), f.driverA, newDriverInput("dan", f.storeA.ID))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	user, err := users.CreateUser(context.Background(), f.superuser, newDriverInput("dan", f.storeB.ID))
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
}

func TestUserService_CreateUser_Validation(t *testing.T) {
	f, users, _ := setupUserServiceTest(t)

	input := newDriverInput("driver_a", f.storeA.ID)
	input.Password = "short"
	input.PhoneNumber = ""
	input.Email = "not-an-email"

	_, err := users.CreateUser(context.Background(), f.superuser, input)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["username"], "already exists")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "phone_number")
	assert.Contains(t, verr.Fields, "email")

	weak := newDriverInput("weakpw", f.storeA.ID)
	weak.Password = "onlyletters"
	_, err = users.CreateUser(context.Background(), f.superuser, weak)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["password"], "letter and one digit")

	missingStore := newDriverInput("nostore", 4040)
	_, err = users.CreateUser(context.Background(), f.superuser, missingStore)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "stores")
}

func TestUserService_UpdateUser_SelfService(t *testing.T) {
	f, users, sender := setupUserServiceTest(t)

	updated, err := users.UpdateUser(context.Background(), f.driverA, f.driverA.UserID, UpdateUserInput{
		FirstName:   strPtr("Dana"),
		PhoneNumber: strPtr("+15550002222"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana", updated.FirstName)
	assert.False(t, updated.IsPhoneVerified)
	require.Len(t, sender.messages(), 1)

	_, err = users.UpdateUser(context.Background(), f.driverA, f.driverA.UserID, UpdateUserInput{
		IsManager: boolPtr(true),
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = users.UpdateUser(context.Background(), f.driverA, f.driver2A.UserID, UpdateUserInput{
		FirstName: strPtr("Nope"),
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestUserService_UpdateUser_ByManager(t *testing.T) {
	f, users, _ := setupUserServiceTest(t)

	updated, err := users.UpdateUser(context.Background(), f.managerA, f.driverA.UserID, UpdateUserInput{
		IsCustomerService: boolPtr(true),
		StoreIDs:          uintsPtr(f.storeA.ID),
	})
	require.NoError(t, err)
	assert.True(t, updated.IsCustomerService)
	assert.True(t, updated.IsDriver)

	_, err = users.UpdateUser(context.Background(), f.managerA, f.driverA.UserID, UpdateUserInput{
		StoreIDs: uintsPtr(f.storeA.ID, f.storeB.ID),
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = users.UpdateUser(context.Background(), f.managerA, f.managerB.UserID, UpdateUserInput{
		FirstName: strPtr("Other"),
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = users.UpdateUser(context.Background(), f.managerA, f.managerA.UserID, UpdateUserInput{
		IsSuperuser: boolPtr(true),
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	updated, err = users.UpdateUser(context.Background(), f.superuser, f.managerB.UserID, UpdateUserInput{
		StoreIDs: uintsPtr(f.storeA.ID, f.storeB.ID),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{f.storeA.ID, f.storeB.ID}, updated.StoreIDs())
}

func TestUserService_VerifyPhone(t *testing.T) {
	f, users, sender := setupUserServiceTest(t)

	user, err := users.CreateUser(context.Background(), f.superuser, newDriverInput("vera", f.storeA.ID))
	require.NoError(t, err)

	_, err = users.VerifyPhone("bogus")
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)

	verified, err := users.VerifyPhone(user.PhoneVerificationToken)
	require.NoError(t, err)
	assert.True(t, verified.IsPhoneVerified)

	_, err = users.VerifyPhone(user.PhoneVerificationToken)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken, "tokens are single use")

	err = users.ResendVerification(context.Background(), f.managerA, user.ID)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Len(t, sender.messages(), 1)
}

func TestUserService_ResendVerification(t *testing.T) {
	f, users, sender := setupUserServiceTest(t)

	err := users.ResendVerification(context.Background(), f.driverA, f.driver2A.UserID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = users.ResendVerification(context.Background(), f.managerB, f.driverA.UserID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, users.ResendVerification(context.Background(), f.managerA, f.driverA.UserID))
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.Contains(msgs[0].Body, "/verify-phone?token="))
}
