package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avelichko/kidlearn/internal/testutil"
	"github.com/avelichko/kidlearn/tests/integration"
)

const (
	RefreshURL = "/api/auth/refresh"
)

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func login(t *testing.T, srvURL string, username string, pin string) tokenPair {
	t.Helper()

	code, body := postJSON(t, srvURL+LoginURL, loginBody(username, pin))
	require.Equalf(t, http.StatusOK, code, "login should succeed. Body: %s", body)

	var pair tokenPair
	require.NoError(t, json.Unmarshal([]byte(body), &pair))
	return pair
}

func Test_Refresh(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("refresh ok", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			username, pin := randomCreds()
			s.RegisterChild(t, username, pin)
			first := login(t, srvURL, username, pin)

			code, body := postJSON(t, srvURL+RefreshURL, fmt.Sprintf(`{"refreshToken": %q}`, first.RefreshToken))

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)

			var second tokenPair
			require.NoError(t, json.Unmarshal([]byte(body), &second))
			require.NotEqual(t, first.RefreshToken, second.RefreshToken, "refresh token should be changed after refresh")
			require.NotEqual(t, first.AccessToken, second.AccessToken, "access token should be changed after refresh")
		})
	})

	t.Run("refresh twice fails", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			username, pin := randomCreds()
			s.RegisterChild(t, username, pin)
			first := login(t, srvURL, username, pin)

			code, body := postJSON(t, srvURL+RefreshURL, fmt.Sprintf(`{"refreshToken": %q}`, first.RefreshToken))
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)

			// Replay of the already rotated token
			code, body = postJSON(t, srvURL+RefreshURL, fmt.Sprintf(`{"refreshToken": %q}`, first.RefreshToken))
			require.Equalf(t, http.StatusUnauthorized, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Refresh token invalid"
				}`, body)
		})
	})

	t.Run("refresh with unknown token fails", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			code, body := postJSON(t, srvURL+RefreshURL, `{"refreshToken": "never-issued"}`)

			require.Equalf(t, http.StatusUnauthorized, code, "not expected code. Body: %s", body)
		})
	})
}
