package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDocument_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "text/html")
		_, err := w.Write([]byte(`<html><body><p class="x">hello</p></body></html>`))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := NewPageClient(time.Second, "test-agent", zap.NewNop())
	doc, err := client.Document(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Find(".x").Text())
}

func TestDocument_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewPageClient(time.Second, "", zap.NewNop())
	_, err := client.Document(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 503")
}

func TestDocument_TooLarge(t *testing.T) {
	page := `<html><body><table><tr><td>BRD</td><td>4,97</td><td>5,05</td></tr></table></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(page))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := NewPageClient(time.Second, "", zap.NewNop())

	// ровно по лимиту страница принимается
	client.maxSize = len(page)
	_, err := client.Document(context.Background(), server.URL)
	require.NoError(t, err)

	// на байт меньше - ошибка вместо обрезанного документа
	client.maxSize = len(page) - 1
	doc, err := client.Document(context.Background(), server.URL)
	assert.Nil(t, doc)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "page exceeds")
}

func TestDocument_NetworkError(t *testing.T) {
	client := NewPageClient(100*time.Millisecond, "", zap.NewNop())
	_, err := client.Document(context.Background(), "http://localhost:1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to make request")
}

func TestError_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &Error{Source: "BNR", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "source BNR failed: context deadline exceeded", err.Error())
}
