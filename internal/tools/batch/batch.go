package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatmate/chatmate/internal/access"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one username in a batch.
type Result struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary aggregates the per-user results of a batch.
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Usernames parses a parameter holding either one username or a list of
// them. MCP clients sometimes send the list JSON-encoded inside a string, so
// a string that parses as a JSON array is accepted too. Duplicates are
// dropped, first occurrence wins.
func Usernames(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var raw []string
	switch v := param.(type) {
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		var arr []string
		if strings.HasPrefix(v, "[") && json.Unmarshal([]byte(v), &arr) == nil {
			if len(arr) == 0 {
				return nil, fmt.Errorf("%s cannot be empty", paramName)
			}
			raw = arr
		} else {
			raw = []string{v}
		}
	case []string:
		raw = v
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// Apply runs fn for each username in order. A failure is recorded and the
// batch continues; once ctx is done the remaining users fail with its error.
func Apply(ctx context.Context, usernames []string, fn func(ctx context.Context, username string) error) Summary {
	s := Summary{Results: make([]Result, 0, len(usernames))}
	for _, u := range usernames {
		err := ctx.Err()
		if err == nil {
			err = fn(ctx, u)
		}
		if err != nil {
			s.Results = append(s.Results, NewErrorResult(u, err))
		} else {
			s.Results = append(s.Results, NewSuccessResult(u))
		}
	}
	s.tally()
	return s
}

func (s *Summary) tally() {
	s.Total = len(s.Results)
	s.Successful, s.Failed = 0, 0
	for _, r := range s.Results {
		if r.Status == StatusSuccess {
			s.Successful++
		} else {
			s.Failed++
		}
	}
}

// JSON renders the summary as indented JSON.
func (s Summary) JSON() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

// NewSuccessResult creates a success result.
func NewSuccessResult(username string) Result {
	return Result{Username: username, Status: StatusSuccess}
}

// NewErrorResult creates an error result carrying the access error kind.
func NewErrorResult(username string, err error) Result {
	return Result{
		Username: username,
		Status:   StatusError,
		Kind:     string(access.KindOf(err)),
		Error:    access.MessageOf(err),
	}
}
