package verification

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	httperr "github.com/tejasgit/nylo/internal/core/errors"
)

func newTestRouter(t *testing.T) (*gin.Engine, *fakeResolver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, resolver, _ := newTestService(t)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r, resolver
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandlers_RequestThenVerifyScenario(t *testing.T) {
	r, resolver := newTestRouter(t)
	body := `{"domain":"example.com","customerId":1}`

	resp := doJSON(t, r, http.MethodPost, "/api/domains/request-verification", body)
	require.Equal(t, http.StatusOK, resp.Code)

	var challenge requestVerificationResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &challenge))
	require.NotEmpty(t, challenge.Token)
	require.Equal(t, "TXT", challenge.DNSRecord.Type)
	require.Equal(t, "example.com", challenge.DNSRecord.Host)
	require.Equal(t, "nylo-verify="+challenge.Token, challenge.DNSRecord.Value)

	// Before the record is published.
	resp = doJSON(t, r, http.MethodPost, "/api/domains/verify", body)
	require.Equal(t, http.StatusOK, resp.Code)
	var result verifyResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "failed", string(result.Status))
	require.NotEmpty(t, result.FailureReason)

	resolver.publish("example.com", challenge.DNSRecord.Value)

	resp = doJSON(t, r, http.MethodPost, "/api/domains/verify", body)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "verified", string(result.Status))
	require.Equal(t, "dns", string(result.Method))
	require.True(t, result.Success)

	resp = doJSON(t, r, http.MethodGet, "/api/domains/status?domain=example.com&customerId=1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	require.Equal(t, "verified", status["status"])
	require.NotNil(t, status["verifiedAt"])
	require.NotNil(t, status["lastCheckedAt"])
}

func TestHandlers_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantType   string
	}{
		{
			name:       "invalid json",
			method:     http.MethodPost,
			path:       "/api/domains/request-verification",
			body:       `{"domain":`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
		{
			name:       "malformed domain",
			method:     http.MethodPost,
			path:       "/api/domains/request-verification",
			body:       `{"domain":"not a domain","customerId":1}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "unknown customer",
			method:     http.MethodPost,
			path:       "/api/domains/request-verification",
			body:       `{"domain":"example.com","customerId":"404"}`,
			wantStatus: http.StatusNotFound,
			wantType:   httperr.HttpNotFoundError,
		},
		{
			name:       "verify before request",
			method:     http.MethodPost,
			path:       "/api/domains/verify",
			body:       `{"domain":"example.com","customerId":1}`,
			wantStatus: http.StatusNotFound,
			wantType:   httperr.HttpNotFoundError,
		},
		{
			name:       "status without customer id",
			method:     http.MethodGet,
			path:       "/api/domains/status?domain=example.com",
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t)
			resp := doJSON(t, r, tc.method, tc.path, tc.body)

			if resp.Code != tc.wantStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.wantStatus, resp.Code)

			var body httperr.ErrorResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.False(t, body.Success)
			require.Equal(t, tc.wantType, body.ErrorType)
		})
	}
}

func TestHandlers_StatusUnverified(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doJSON(t, r, http.MethodGet, "/api/domains/status?domain=example.com&customerId=2", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	require.Equal(t, "unverified", status["status"])
	require.Nil(t, status["verifiedAt"])
}
