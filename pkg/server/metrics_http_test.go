package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsEndpoints(t *testing.T) {
	b := newTestServer(t, testConfig())
	b.register("1", "Faker#KR1", "CHALLENGER", "")
	b.createRanked("1")
	mux := b.srv.metricsMux()

	type tcase struct {
		path string
		want []string
	}

	tcases := map[string]tcase{
		"prometheus": {
			path: "/metrics",
			want: []string{
				"# TYPE partyvc_sessions_active gauge",
				"partyvc_sessions_active 1",
				"partyvc_sessions_created_total 1",
				`partyvc_build_info{version="dev"} 1`,
			},
		},
		"json": {
			path: "/metrics.json",
			want: []string{`"sessions_created": 1`},
		},
		"healthz": {
			path: "/healthz",
			want: []string{"ok"},
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s status = %d", tc.path, rec.Code)
			}
			body := rec.Body.String()
			for _, w := range tc.want {
				if !strings.Contains(body, w) {
					t.Errorf("GET %s body missing %q:\n%s", tc.path, w, body)
				}
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}
