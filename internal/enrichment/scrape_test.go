package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailtoAddress(t *testing.T) {
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"mailto:info@acme.example", "info@acme.example", true},
		{"MAILTO:Info@Acme.Example", "info@acme.example", true},
		{"mailto:quotes@acme.example?subject=Hello", "quotes@acme.example", true},
		{"mailto:a@acme.example,b@acme.example", "a@acme.example", true},
		{"mailto:hello%40acme.example", "hello@acme.example", true},
		{"mailto:", "", false},
		{"mailto:not-an-address", "", false},
		{"https://acme.example/contact", "", false},
		{"tel:01134960000", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := mailtoAddress(tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindContactEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<html><body>
				<a href="tel:0113">Call</a>
				<a href="mailto:bad address">x</a>
				<a href="mailto:Office@Builder.Example">Email</a>
				<a href="mailto:second@builder.example">Other</a>
			</body></html>`))
		case "/none":
			w.Write([]byte(`<html><body><p>No contact here</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	email, err := FindContactEmail(ctx, srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "office@builder.example", email)

	email, err = FindContactEmail(ctx, srv.Client(), srv.URL+"/none")
	require.NoError(t, err)
	assert.Empty(t, email)

	_, err = FindContactEmail(ctx, srv.Client(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = FindContactEmail(ctx, srv.Client(), "ftp://builder.example")
	assert.Error(t, err)
}
