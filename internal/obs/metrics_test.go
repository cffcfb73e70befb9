package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"/metrics":                 "/metrics",
		"/v1/sessions/01J9XQ4T":    "/v1/sessions/:id",
		"/v1/sessions/abc/extra":   "/v1/sessions/abc/extra",
		"/v1/ai/parse":             "/v1/ai/parse",
		"/v1/ai/parse?verbose=1":   "/v1/ai/parse",
		"/v1/attachments/validate": "/v1/attachments/validate",
		"/v1/auth/login":           "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
