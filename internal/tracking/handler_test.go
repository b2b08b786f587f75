package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/core/storage/memory"
	"github.com/tejasgit/nylo/internal/dedup"
	"github.com/tejasgit/nylo/internal/identity"
	storagemocks "github.com/tejasgit/nylo/internal/mocks/storage"
)

const (
	testAPIKey = "key-acme"
	testWai    = "wai_loyw3v28_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa_0123abcd"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *memory.Store {
	return memory.NewStore(v1.Customer{ID: 7, Name: "Acme", APIKey: testAPIKey})
}

func newTestService(t *testing.T, store *memory.Store, cfg Config) *Service {
	t.Helper()
	svc := NewService(store, store, store, dedup.New(time.Minute), cfg)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func doPost(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var body httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestTrackHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		wantStatus int
		wantType   string
		wantStored int
		wantTotal  int
	}{
		{
			name:       "single event",
			body:       `{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z","customerId":7}`,
			wantStatus: http.StatusOK,
			wantStored: 1,
			wantTotal:  1,
		},
		{
			name: "plain event list",
			body: `{"events":[
				{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"},
				{"eventType":"click","sessionId":"s1","timestamp":"2024-05-01T10:00:01Z"}
			]}`,
			wantStatus: http.StatusOK,
			wantStored: 2,
			wantTotal:  2,
		},
		{
			name: "compressed batch",
			body: `{"batchId":"b-1","common":{"sessionId":"s1","eventType":"click","customerId":7},"events":[
				{"timestamp":"2024-05-01T10:00:00Z"},
				{"timestamp":"2024-05-01T10:00:01Z"},
				{"timestamp":"2024-05-01T10:00:02Z"}
			]}`,
			wantStatus: http.StatusOK,
			wantStored: 3,
			wantTotal:  3,
		},
		{
			name: "invalid event in batch is skipped",
			body: `{"events":[
				{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"},
				{"eventType":"page_view","timestamp":"2024-05-01T10:00:01Z"}
			]}`,
			wantStatus: http.StatusOK,
			wantStored: 1,
			wantTotal:  2,
		},
		{
			name:       "api key stamps customer",
			body:       `{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"}`,
			headers:    map[string]string{APIKeyHeader: testAPIKey},
			wantStatus: http.StatusOK,
			wantStored: 1,
			wantTotal:  1,
		},
		{
			name:       "unknown api key",
			body:       `{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"}`,
			headers:    map[string]string{APIKeyHeader: "nope"},
			wantStatus: http.StatusNotFound,
			wantType:   httperr.HttpNotFoundError,
		},
		{
			name:       "lone invalid event",
			body:       `{"eventType":"page_view","timestamp":"2024-05-01T10:00:00Z"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "empty batch",
			body:       `{"events":[]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "malformed json",
			body:       `{"eventType":`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			r := newRouter(newTestService(t, store, Config{}))

			resp := doPost(r, "/api/track", tt.body, tt.headers)
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())

			if tt.wantType != "" {
				require.Equal(t, tt.wantType, decodeError(t, resp).ErrorType)
				require.Empty(t, store.Events())
				return
			}

			var body trackResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.True(t, body.Success)
			require.Equal(t, tt.wantStored, body.EventsProcessed)
			require.Equal(t, tt.wantTotal, body.TotalEvents)
			require.Len(t, store.Events(), tt.wantStored)
		})
	}
}

func TestTrackHandler_APIKeyDoesNotOverrideExplicitCustomer(t *testing.T) {
	store := newTestStore()
	r := newRouter(newTestService(t, store, Config{}))

	resp := doPost(r, "/api/track",
		`{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z","customerId":9}`,
		map[string]string{APIKeyHeader: testAPIKey})
	require.Equal(t, http.StatusOK, resp.Code)

	events := store.Events()
	require.Len(t, events, 1)
	require.Equal(t, v1.CustomerID(9), events[0].CustomerID)
	require.Equal(t, fixedNow, events[0].IngestedAt)
	require.NotEmpty(t, events[0].DedupKey)
}

func TestTrackHandler_DuplicatesAreSuppressed(t *testing.T) {
	store := newTestStore()
	r := newRouter(newTestService(t, store, Config{}))
	body := `{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"}`

	require.Equal(t, http.StatusOK, doPost(r, "/api/track", body, nil).Code)

	resp := doPost(r, "/api/track", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var parsed trackResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &parsed))
	require.Equal(t, 0, parsed.EventsProcessed)
	require.Equal(t, 1, parsed.Duplicates)
	require.Len(t, store.Events(), 1)
}

func TestTrackHandler_DuplicateWithinOneBatch(t *testing.T) {
	store := newTestStore()
	r := newRouter(newTestService(t, store, Config{}))

	resp := doPost(r, "/api/track", `{"events":[
		{"eventType":"click","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"},
		{"eventType":"click","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z"}
	]}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var parsed trackResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &parsed))
	require.Equal(t, 1, parsed.EventsProcessed)
	require.Equal(t, 1, parsed.Duplicates)
}

func TestTrackHandler_PayloadTooLarge(t *testing.T) {
	store := newTestStore()
	r := newRouter(newTestService(t, store, Config{MaxBodySizeMB: 1}))

	padding := strings.Repeat("x", 1024*1024)
	body := fmt.Sprintf(`{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z","url":%q}`, padding)

	resp := doPost(r, "/api/track", body, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	require.Equal(t, httperr.HttpPayloadTooLargeError, decodeError(t, resp).ErrorType)
	require.Empty(t, store.Events())
}

func TestTrackHandler_StorageFailure(t *testing.T) {
	body := `{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z","customerId":7}`

	tests := []struct {
		name       string
		policy     Policy
		wantStatus int
	}{
		{name: "soft fail answers success", policy: DefaultPolicy(), wantStatus: http.StatusOK},
		{name: "hard fail surfaces error", policy: Policy{}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			store := newTestStore()
			events := storagemocks.NewEventStore(t)
			events.EXPECT().SaveEvents(mock.Anything, mock.Anything).Return(0, errors.New("connection refused")).Twice()

			cache := dedup.New(time.Minute)
			svc := NewService(events, store, store, cache, Config{Policy: tt.policy})
			r := newRouter(svc)

			resp := doPost(r, "/api/track", body, nil)
			require.Equal(t, tt.wantStatus, resp.Code)

			// The failed key is released, so the client's retry reaches storage again.
			resp = doPost(r, "/api/track", body, nil)
			require.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

func TestTrackHandler_ResendAfterWindowIsStored(t *testing.T) {
	store := newTestStore()
	clock := fixedNow
	cache := dedup.New(time.Minute, dedup.WithClock(func() time.Time { return clock }))
	svc := NewService(store, store, store, cache, Config{})
	svc.now = func() time.Time { return fixedNow }
	r := newRouter(svc)

	body := `{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z","customerId":7}`

	resp := doPost(r, "/api/track", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"success":true,"eventsProcessed":1,"totalEvents":1}`, resp.Body.String())

	clock = clock.Add(30 * time.Second)
	resp = doPost(r, "/api/track", body, nil)
	require.JSONEq(t, `{"success":true,"eventsProcessed":0,"totalEvents":1,"duplicates":1}`, resp.Body.String())

	clock = clock.Add(2 * time.Minute)
	resp = doPost(r, "/api/track", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"success":true,"eventsProcessed":1,"totalEvents":1}`, resp.Body.String())
	require.Len(t, store.Events(), 2)
}

func TestTrackHandler_PartialStorageFailureReleasesUnstoredKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore()
	events := storagemocks.NewEventStore(t)

	batchOfTwo := mock.MatchedBy(func(evts []*v1.Event) bool { return len(evts) == 2 })
	onlyClick := mock.MatchedBy(func(evts []*v1.Event) bool {
		return len(evts) == 1 && evts[0].EventType == "click"
	})
	events.EXPECT().SaveEvents(mock.Anything, batchOfTwo).Return(1, errors.New("connection reset")).Once()
	events.EXPECT().SaveEvents(mock.Anything, onlyClick).Return(1, nil).Once()

	svc := NewService(events, store, store, dedup.New(time.Minute), Config{})
	r := newRouter(svc)

	body := `{"events":[
		{"eventType":"page_view","sessionId":"s1","timestamp":"2024-05-01T10:00:00Z","customerId":7},
		{"eventType":"click","sessionId":"s1","timestamp":"2024-05-01T10:00:01Z","customerId":7}
	]}`

	resp := doPost(r, "/api/track", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"eventsProcessed":1`)

	// The stored page_view stays suppressed; only the click is retried.
	resp = doPost(r, "/api/track", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"success":true,"eventsProcessed":1,"totalEvents":2,"duplicates":1}`, resp.Body.String())
}

func TestRegisterWaiTagHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
		wantWai    string
	}{
		{
			name:       "provided identifier by api key",
			body:       fmt.Sprintf(`{"waiTag":%q,"sessionId":"s1","domain":"Shop.Example.com","apiKey":%q}`, testWai, testAPIKey),
			wantStatus: http.StatusOK,
			wantWai:    testWai,
		},
		{
			name:       "issues identifier when missing",
			body:       `{"domain":"shop.example.com","customerId":7}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing domain",
			body:       `{"customerId":7}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "no customer reference",
			body:       `{"domain":"shop.example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "unknown customer",
			body:       `{"domain":"shop.example.com","customerId":99}`,
			wantStatus: http.StatusNotFound,
			wantType:   httperr.HttpNotFoundError,
		},
		{
			name:       "malformed identifier",
			body:       `{"waiTag":"not-a-tag","domain":"shop.example.com","customerId":7}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			r := newRouter(newTestService(t, store, Config{}))

			resp := doPost(r, "/api/tracking/register-waitag", tt.body, nil)
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			if tt.wantType != "" {
				require.Equal(t, tt.wantType, decodeError(t, resp).ErrorType)
				return
			}

			var body registerResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.True(t, body.Success)
			require.Equal(t, "shop.example.com", body.Domain)
			require.Equal(t, v1.CustomerID(7), body.CustomerID)
			require.NotEmpty(t, body.SessionID)
			require.True(t, identity.IsValid(body.WaiTag))
			if tt.wantWai != "" {
				require.Equal(t, tt.wantWai, body.WaiTag)
			}

			stored, err := store.GetIdentity(t.Context(), 7, body.WaiTag)
			require.NoError(t, err)
			require.Equal(t, body.SessionID, stored.SessionID)
		})
	}
}

func TestRegister_IssuedIdentifierEmbedsDomainHash(t *testing.T) {
	store := newTestStore()
	svc := newTestService(t, store, Config{})

	registered, err := svc.Register(t.Context(), RegisterRequest{Domain: "shop.example.com", CustomerID: 7})
	require.NoError(t, err)
	require.Contains(t, registered.WaiTag, identity.DomainHash("shop.example.com"))

	issuedAt, ok := identity.Identifier(registered.WaiTag).IssuedAt()
	require.True(t, ok)
	require.Equal(t, fixedNow.UnixMilli(), issuedAt.UnixMilli())
}

func TestRegister_StorageFailure(t *testing.T) {
	store := newTestStore()
	identities := storagemocks.NewIdentityStore(t)
	identities.EXPECT().SaveIdentity(mock.Anything, mock.Anything).Return(errors.New("disk full")).Twice()

	soft := NewService(store, identities, store, dedup.New(time.Minute), Config{})
	registered, err := soft.Register(t.Context(), RegisterRequest{Domain: "shop.example.com", CustomerID: 7})
	require.NoError(t, err)
	require.NotNil(t, registered)

	hard := NewService(store, identities, store, dedup.New(time.Minute), Config{Policy: Policy{}})
	_, err = hard.Register(t.Context(), RegisterRequest{Domain: "shop.example.com", CustomerID: 7})
	require.True(t, httperr.IsKind(err, httperr.KindInternal))
}

func TestRegister_CustomerLookupFailure(t *testing.T) {
	store := newTestStore()
	customers := storagemocks.NewCustomerStore(t)
	customers.EXPECT().GetCustomer(mock.Anything, v1.CustomerID(7)).Return(nil, errors.New("timeout"))

	svc := NewService(store, store, customers, dedup.New(time.Minute), Config{})
	_, err := svc.Register(t.Context(), RegisterRequest{Domain: "shop.example.com", CustomerID: 7})
	require.True(t, httperr.IsKind(err, httperr.KindInternal))
}

func TestVerifyWaiTagHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
	}{
		{name: "well formed", body: fmt.Sprintf(`{"waiTag":%q}`, testWai), wantStatus: http.StatusOK, wantValid: true},
		{name: "malformed", body: `{"waiTag":"wai_nope"}`, wantStatus: http.StatusOK, wantValid: false},
		{name: "missing", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(newTestService(t, newTestStore(), Config{}))

			resp := doPost(r, "/api/tracking/verify-waitag", tt.body, nil)
			require.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				Success bool `json:"success"`
				IsValid bool `json:"isValid"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.True(t, body.Success)
			require.Equal(t, tt.wantValid, body.IsValid)
		})
	}
}

func TestEventHandler(t *testing.T) {
	store := newTestStore()
	r := newRouter(newTestService(t, store, Config{}))

	body := fmt.Sprintf(`{"eventType":"add_to_cart","waiTag":%q,"domain":"Shop.Example.com","customerId":7,"metadata":{"sku":"A-1"}}`, testWai)

	resp := doPost(r, "/api/tracking/event", body, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var parsed eventResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &parsed))
	require.True(t, parsed.Success)
	require.Equal(t, msgEventTracked, parsed.Message)

	events := store.Events()
	require.Len(t, events, 1)
	require.Equal(t, testWai, events[0].SessionID)
	require.Equal(t, "shop.example.com", events[0].Domain)
	require.Equal(t, fixedNow, events[0].Timestamp.Time)
	require.Equal(t, "A-1", events[0].Metadata["sku"])

	// Same second, same identifier and type.
	resp = doPost(r, "/api/tracking/event", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &parsed))
	require.Equal(t, msgEventDuplicate, parsed.Message)
	require.Len(t, store.Events(), 1)
}

func TestEventHandler_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{
			name:       "malformed identifier",
			body:       `{"eventType":"click","waiTag":"bogus","customerId":7}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "unknown customer",
			body:       fmt.Sprintf(`{"eventType":"click","waiTag":%q,"customerId":42}`, testWai),
			wantStatus: http.StatusNotFound,
			wantType:   httperr.HttpNotFoundError,
		},
		{
			name:       "missing event type",
			body:       fmt.Sprintf(`{"waiTag":%q,"customerId":7}`, testWai),
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpValidationError,
		},
		{
			name:       "not json",
			body:       `event`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			r := newRouter(newTestService(t, store, Config{}))

			resp := doPost(r, "/api/tracking/event", tt.body, nil)
			require.Equal(t, tt.wantStatus, resp.Code)
			require.Equal(t, tt.wantType, decodeError(t, resp).ErrorType)
			require.Empty(t, store.Events())
		})
	}
}

func TestNewService_PanicsOnNilDependencies(t *testing.T) {
	store := newTestStore()
	cache := dedup.New(0)

	require.Panics(t, func() { NewService(nil, store, store, cache, Config{}) })
	require.Panics(t, func() { NewService(store, nil, store, cache, Config{}) })
	require.Panics(t, func() { NewService(store, store, nil, cache, Config{}) })
	require.Panics(t, func() { NewService(store, store, store, nil, Config{}) })
}
