package server

import (
	"net/http"
	"net/url"
)

// Call is one request/response pair as seen by the server.
type Call struct {
	URL    *url.URL
	Method string
	Status int

	RequestHeader http.Header
	RequestBody   []byte

	ResponseHeader http.Header
	ResponseBody   []byte
}

type callWatcher struct {
	watchFn func(Call)

	paths map[string]struct{}
}

// newCallWatcher watches the given paths; with no paths given, it watches
// everything.
func newCallWatcher(fn func(Call), paths ...string) callWatcher {
	pathMap := make(map[string]struct{}, len(paths))

	for _, path := range paths {
		pathMap[path] = struct{}{}
	}

	return callWatcher{
		watchFn: fn,
		paths:   pathMap,
	}
}

func (watcher *callWatcher) isWatching(path string) bool {
	if len(watcher.paths) == 0 {
		return true
	}

	_, ok := watcher.paths[path]

	return ok
}

func (watcher *callWatcher) publish(call Call) {
	watcher.watchFn(call)
}
