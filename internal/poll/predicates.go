package poll

import "github.com/tonimelisma/davharness/internal/dav"

// Predicates over raw DAV responses for the common staleness windows.

// StatusIs accepts responses with exactly the given status.
func StatusIs(code int) func(*dav.Response) bool {
	return func(r *dav.Response) bool {
		return r != nil && r.StatusCode == code
	}
}

// NotStatus accepts any response whose status differs from code, e.g.
// NotStatus(401) while a freshly created user propagates to the auth cache.
func NotStatus(code int) func(*dav.Response) bool {
	return func(r *dav.Response) bool {
		return r != nil && r.StatusCode != code
	}
}

// Succeeded accepts 2xx responses.
func Succeeded(r *dav.Response) bool {
	return r != nil && r.Success()
}

// All accepts when every predicate accepts.
func All[T any](preds ...func(T) bool) func(T) bool {
	return func(v T) bool {
		for _, p := range preds {
			if !p(v) {
				return false
			}
		}

		return true
	}
}
