package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/kidlearn/internal/testutil"
	"github.com/avelichko/kidlearn/tests/integration"
)

const (
	LoginURL = "/api/auth/login"
)

func randomCreds() (username string, pin string) {
	return gofakeit.Username(), gofakeit.DigitN(4)
}

func postJSON(t *testing.T, url string, data string) (int, string) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(data))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, string(body)
}

func loginBody(username string, pin string) string {
	return fmt.Sprintf(`{"username": %q, "pin": %q}`, username, pin)
}

func Test_Login(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("login ok", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			username, pin := randomCreds()
			childID := s.RegisterChild(t, username, pin)

			code, body := postJSON(t, srvURL+LoginURL, loginBody(username, pin))

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)

			var pair struct {
				AccessToken      string `json:"accessToken"`
				RefreshToken     string `json:"refreshToken"`
				ExpiresInSeconds int    `json:"expiresInSeconds"`
				Subject          struct {
					ID       string `json:"id"`
					Role     string `json:"role"`
					Username string `json:"username"`
				} `json:"subject"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &pair))
			require.NotEmpty(t, pair.AccessToken)
			require.NotEmpty(t, pair.RefreshToken)
			require.Equal(t, 1200, pair.ExpiresInSeconds)
			require.Equal(t, childID.String(), pair.Subject.ID)
			require.Equal(t, "CHILD", pair.Subject.Role)
			require.Equal(t, username, pair.Subject.Username)
		})
	})

	t.Run("login wrong pin", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			username, pin := randomCreds()
			s.RegisterChild(t, username, pin)

			code, body := postJSON(t, srvURL+LoginURL, loginBody(username, "0000"))

			require.Equalf(t, http.StatusUnauthorized, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid username or PIN"
				}`, body)
		})
	})

	t.Run("failure streak escalates over the wire", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			username, pin := randomCreds()
			s.RegisterChild(t, username, pin)

			for range 3 {
				code, body := postJSON(t, srvURL+LoginURL, loginBody(username, "0000"))
				require.Equalf(t, http.StatusUnauthorized, code, "not expected code. Body: %s", body)
			}

			code, body := postJSON(t, srvURL+LoginURL, loginBody(username, pin))
			require.Equalf(t, http.StatusTooManyRequests, code, "correct PIN on a flagged account. Body: %s", body)

			code, body = postJSON(t, srvURL+LoginURL, loginBody(username, pin))
			require.Equalf(t, http.StatusLocked, code, "not expected code. Body: %s", body)
		})
	})
}
