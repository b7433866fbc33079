package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler отвечает телом запроса с тем же Content-Type.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const order = `{"person_id":7,"channel":"online"}`

	tests := []struct {
		name            string
		compressRequest bool
		acceptEncoding  string
		contentType     string
		wantEncoding    string
	}{
		{name: "json response compressed", acceptEncoding: "gzip", contentType: "application/json", wantEncoding: "gzip"},
		{name: "html response compressed", acceptEncoding: "gzip, deflate", contentType: "text/html", wantEncoding: "gzip"},
		{name: "client without gzip", acceptEncoding: "", contentType: "application/json", wantEncoding: ""},
		{name: "plain text left as is", acceptEncoding: "gzip", contentType: "text/plain", wantEncoding: ""},
		{name: "compressed request body", compressRequest: true, acceptEncoding: "gzip", contentType: "application/json", wantEncoding: "gzip"},
		{name: "compressed request, plain response", compressRequest: true, acceptEncoding: "", contentType: "application/json", wantEncoding: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(order)
			if tt.compressRequest {
				body = gzipped(t, order)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			req.Header.Set("Content-Type", tt.contentType)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var reader io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			}
			got, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, order, string(got))
		})
	}
}

func TestGzipMiddleware_MalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
