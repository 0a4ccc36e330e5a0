package instrumentation

import "strings"

// Usernames and group names are unbounded and stay out of metric labels,
// apart from the opt-in owner label on authorization checks.

// routeParams maps the first path segment to the positions of segments that
// carry identifiers in the HTTP API.
var routeParams = map[string][]int{
	"users": {1},
	"chat":  {1},
}

// NormalizeRoute reduces a request path to a bounded label value.
//
// Example:
//
//	NormalizeRoute("/users/alice")               // "/users/{username}"
//	NormalizeRoute("/users/search")              // "/users/search"
//	NormalizeRoute("/chat/alice/authorize")      // "/chat/{ownerId}/authorize"
//	NormalizeRoute("GET /access/groups")         // "/access/groups"
func NormalizeRoute(path string) string {
	// Go 1.22+ route patterns carry the method before the path.
	if i := strings.IndexByte(path, ' '); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	positions, ok := routeParams[segments[0]]
	if !ok {
		return "/" + strings.Join(segments, "/")
	}
	for _, pos := range positions {
		if pos >= len(segments) || strings.HasPrefix(segments[pos], "{") {
			continue
		}
		switch segments[0] {
		case "users":
			if segments[pos] == "search" || segments[pos] == "count" {
				continue
			}
			segments[pos] = "{username}"
		case "chat":
			segments[pos] = "{ownerId}"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// Storage operation names used in store metrics and spans.
const (
	OperationGet    = "get"
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationFind   = "find_by_access"
	OperationSearch = "search"
	OperationCount  = "count"
	OperationPing   = "ping"
)
