package gateway

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseStatusRequestLogsClientTime(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"post body", httptest.NewRequest(http.MethodPost, "/groups/alpha",
			strings.NewReader(`{"time":"2024-05-01T20:00:00.000","update_id":3}`))},
		{"get query", httptest.NewRequest(http.MethodGet,
			"/groups/alpha?update_id=3&time=2024-05-01T20:00:00.000", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
			req := tt.req.WithContext(logger.WithContext(tt.req.Context()))

			query, err := parseStatusRequest(req)
			if err != nil {
				t.Fatal(err)
			}
			if query.updateID == nil || *query.updateID != 3 {
				t.Fatalf("query = %+v", query)
			}
			if !strings.Contains(buf.String(), `"client_time":"2024-05-01T20:00:00.000"`) {
				t.Fatalf("client time not logged: %q", buf.String())
			}
		})
	}
}
