package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/auth"
	"github.com/example/commerce-core/internal/domain/login"
	"github.com/example/commerce-core/internal/domain/order"
	"github.com/example/commerce-core/internal/domain/session"
	"github.com/example/commerce-core/internal/infrastructure/store/mocks"
)

type staticCatalog map[string]*order.VariantInfo

func (c staticCatalog) GetItemVariant(ctx context.Context, itemID, variantID string) (*order.VariantInfo, error) {
	v, ok := c[itemID+"/"+variantID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "item variant not found")
	}
	return v, nil
}

type staticTaxRates int64

func (r staticTaxRates) GetApplicableRate(ctx context.Context, country, provinceState string) (int64, error) {
	return int64(r), nil
}

type staticDirectory map[string]*login.UserAccount

func (d staticDirectory) FindByLogin(ctx context.Context, usernameOrEmail string) (*login.UserAccount, error) {
	a, ok := d[usernameOrEmail]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return a, nil
}

type noopUserRecords struct{}

func (noopUserRecords) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return nil
}
func (noopUserRecords) MarkLoggedOut(ctx context.Context, userID string, at time.Time) error {
	return nil
}

// newTestServer assembles the full HTTP surface over in-memory stores.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hash, err := auth.HashPassword("correct-horse1")
	require.NoError(t, err)

	jwtService := auth.NewJWTService("test-secret-key-for-handler-tests", 15*time.Minute)
	sessions := session.NewService(mocks.NewMockSessionStore(), time.Hour)

	directory := staticDirectory{
		"alice@example.com": {ID: "user-1", Email: "alice@example.com", Name: "alice", Role: "customer", PasswordHash: hash, Active: true},
	}
	orchestrator := login.NewOrchestrator(
		login.NewDirectoryVerifier(directory),
		sessions,
		jwtService,
		noopUserRecords{},
		nil,
		15*time.Minute,
	)

	catalog := staticCatalog{
		"item-1/var-1": {UnitPrice: 1000, Stock: 10, NameEN: "Mug"},
	}
	orders := order.NewService(
		mocks.NewMockOrderStore(),
		catalog,
		staticTaxRates(1300),
		order.FlatRateShipping{Rate: 500},
		nil,
	)

	router := NewRouter(NewHandlers(orders), NewAuthHandlers(orchestrator, sessions), jwtService, sessions)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func loginAs(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/auth/login", "", map[string]string{
		"login":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.NotEmpty(t, result.Token)
	return result.Token
}

func TestAPI_LoginAndCreateOrder(t *testing.T) {
	server := newTestServer(t)
	token := loginAs(t, server, "alice@example.com", "correct-horse1")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/orders", token, CreateOrderRequest{
		Items: []order.LineInput{{ItemID: "item-1", VariantID: "var-1", Quantity: 2}},
		Addresses: []order.AddressInput{
			{Type: order.AddressShipping, Recipient: "Alice", Line1: "1 Main St", City: "Ottawa", Country: "CA"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created order.Order
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, int64(2000), created.Subtotal)
	assert.Equal(t, int64(260), created.TaxTotal)
	assert.Equal(t, int64(500), created.ShippingTotal)
	assert.Equal(t, int64(2760), created.GrandTotal)
	assert.GreaterOrEqual(t, created.OrderNumber, int64(1000))

	// The order is visible on the list endpoint
	resp, body = doJSON(t, http.MethodGet, server.URL+"/orders", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []order.Order
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	// And on the order-number endpoint
	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/orders/number/%d", server.URL, created.OrderNumber), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byNumber order.Order
	require.NoError(t, json.Unmarshal(body, &byNumber))
	assert.Equal(t, created.ID, byNumber.ID)
}

func TestAPI_OrdersRequireAuth(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_LoginFailure(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/auth/login", "", map[string]string{
		"login":    "alice@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "invalid credentials")
}

func TestAPI_ErrorKindMapping(t *testing.T) {
	server := newTestServer(t)
	token := loginAs(t, server, "alice@example.com", "correct-horse1")

	// Validation -> 400
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/orders", token, CreateOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// NotFound -> 404
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/orders/no-such-order", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Conflict -> 409 on an illegal status transition
	resp, body := doJSON(t, http.MethodPost, server.URL+"/orders", token, CreateOrderRequest{
		Items: []order.LineInput{{ItemID: "item-1", VariantID: "var-1", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created order.Order
	require.NoError(t, json.Unmarshal(body, &created))

	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/orders/"+created.ID+"/status", token,
		map[string]string{"status": "fulfilled"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ItemStatusEndpoints(t *testing.T) {
	server := newTestServer(t)
	token := loginAs(t, server, "alice@example.com", "correct-horse1")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/orders", token, CreateOrderRequest{
		Items: []order.LineInput{
			{ItemID: "item-1", VariantID: "var-1", Quantity: 1},
			{ItemID: "item-1", VariantID: "var-1", Quantity: 2},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created order.Order
	require.NoError(t, json.Unmarshal(body, &created))
	require.Len(t, created.Items, 2)

	// Single item transition
	resp, body = doJSON(t, http.MethodPatch,
		server.URL+"/orders/"+created.ID+"/items/"+created.Items[0].ID+"/status", token,
		map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated order.Order
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, order.ItemProcessing, updated.FindItem(created.Items[0].ID).Status)

	// Bulk transition with partial success: the first item is already processing
	resp, body = doJSON(t, http.MethodPatch,
		server.URL+"/orders/"+created.ID+"/items/status", token,
		map[string]any{"item_ids": []string{created.Items[0].ID, created.Items[1].ID}, "status": "shipped"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var bulk struct {
		Results []order.ItemResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &bulk))
	require.Len(t, bulk.Results, 2)
	assert.True(t, bulk.Results[0].OK)
	assert.False(t, bulk.Results[1].OK)
}

func TestAPI_LogoutRevokesToken(t *testing.T) {
	server := newTestServer(t)
	token := loginAs(t, server, "alice@example.com", "correct-horse1")

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The token itself is still unexpired, but its session is gone
	resp, body := doJSON(t, http.MethodGet, server.URL+"/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "session expired")
}

func TestAPI_Sessions(t *testing.T) {
	server := newTestServer(t)
	token := loginAs(t, server, "alice@example.com", "correct-horse1")
	_ = loginAs(t, server, "alice@example.com", "correct-horse1")

	resp, body := doJSON(t, http.MethodGet, server.URL+"/auth/sessions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var active []session.Session
	require.NoError(t, json.Unmarshal(body, &active))
	assert.Len(t, active, 2)
}
