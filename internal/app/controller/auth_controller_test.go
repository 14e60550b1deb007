package controller

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthController_Login(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("by email", func(t *testing.T) {
		w := f.do(http.MethodPost, "/auth/login", "", gin.H{"username": "driver@example.com", "password": testPassword})
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Roles  []string       `json:"roles"`
			Tokens util.TokenPair `json:"tokens"`
		}
		decode(t, w, &resp)
		assert.Equal(t, []string{"driver"}, resp.Roles)
		assert.NotEmpty(t, resp.Tokens.RefreshToken)
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("wrong password", func(t *testing.T) {
		w := f.do(http.MethodPost, "/auth/login", "", gin.H{"username": "driver", "password": "nope12345"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("missing fields", func(t *testing.T) {
		w := f.do(http.MethodPost, "/auth/login", "", gin.H{"username": "driver"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("disabled account", func(t *testing.T) {
		require.NoError(t, f.db.Model(f.users["outsider"]).Update("is_active", false).Error)
		w := f.do(http.MethodPost, "/auth/login", "", gin.H{"username": "outsider", "password": testPassword})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_ACCOUNT_DISABLED")
	})
}

func TestAuthController_Me(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/auth/me", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Roles []string `json:"roles"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "manager", resp.User.Username)
	assert.Equal(t, []string{"manager"}, resp.Roles)

	w = f.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthController_Refresh(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/auth/login", "", gin.H{"username": "admin", "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Tokens util.TokenPair `json:"tokens"`
	}
	decode(t, w, &login)

	w = f.do(http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": login.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	// an access token is not accepted as a refresh token
	w = f.do(http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": login.Tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_TOKEN_INVALID")
}

func TestAuthController_ForgotPassword(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/auth/password-reset", "", gin.H{"phone_number": f.users["driver"].PhoneNumber})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.sms.messages, 1)
	assert.Contains(t, f.sms.messages[0], "https://app.example.com/reset-password?token=")

	// unknown numbers get the same answer and no message
	w = f.do(http.MethodPost, "/auth/password-reset", "", gin.H{"phone_number": "+19999999999"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.sms.messages, 1)
}

func TestAuthController_VerifyPhone_UnknownToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/auth/verify-phone", "", gin.H{"token": "does-not-exist"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_CODE_INVALID")
}
