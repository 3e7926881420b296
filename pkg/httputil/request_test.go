package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONOrError(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.c"}`))
		rec := httptest.NewRecorder()

		var dest struct{ Email string }
		require.True(t, ParseJSONOrError(rec, req, &dest))
		assert.Equal(t, "a@b.c", dest.Email)
	})

	t.Run("invalid body writes 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{`))
		rec := httptest.NewRecorder()

		var dest struct{}
		assert.False(t, ParseJSONOrError(rec, req, &dest))
		assert.Equal(t, 400, rec.Code)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", ""},
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"case insensitive scheme", "bearer tok", "tok"},
		{"wrong scheme", "Basic dXNlcg==", ""},
		{"no token", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, BearerToken(req))
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:51234"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
