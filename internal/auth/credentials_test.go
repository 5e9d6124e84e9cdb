package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppCode(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chathub", nil)
	assert.Empty(t, AppCode(r))

	r = httptest.NewRequest(http.MethodGet, "/chathub?appCode=acme", nil)
	assert.Equal(t, "acme", AppCode(r))

	r = httptest.NewRequest(http.MethodGet, "/chathub?app_code=acme", nil)
	assert.Equal(t, "acme", AppCode(r))

	// The header wins over the query string.
	r = httptest.NewRequest(http.MethodGet, "/chathub?appCode=globex", nil)
	r.Header.Set("x-app-code", "acme")
	assert.Equal(t, "acme", AppCode(r))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chathub", nil)
	assert.Empty(t, BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/chathub", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", BearerToken(r))

	// A non-bearer Authorization header is ignored.
	r = httptest.NewRequest(http.MethodGet, "/chathub", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/chathub?access_token=abc123", nil)
	assert.Equal(t, "abc123", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/chathub?token=abc123", nil)
	assert.Equal(t, "abc123", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/chathub", nil)
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "abc123"})
	assert.Equal(t, "abc123", BearerToken(r))

	// The header wins over query and cookie.
	r = httptest.NewRequest(http.MethodGet, "/chathub?access_token=fromquery", nil)
	r.Header.Set("Authorization", "Bearer fromheader")
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "fromcookie"})
	assert.Equal(t, "fromheader", BearerToken(r))
}
