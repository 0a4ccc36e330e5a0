package instrumentation

import "testing"

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/users/alice", "/users/{username}"},
		{"/users/search", "/users/search"},
		{"/users/count", "/users/count"},
		{"/users/{username}", "/users/{username}"},
		{"GET /users/{username}", "/users/{username}"},
		{"/chat/alice/authorize?visitor=bob", "/chat/{ownerId}/authorize"},
		{"/access/groups/eng/users", "/access/groups/eng/users"},
		{"/healthz", "/healthz"},
		{"/", "/"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := NormalizeRoute(tt.path); got != tt.expected {
				t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
