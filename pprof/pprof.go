package pprof

import (
	"net/http"
	_ "net/http/pprof"
)

// StartPprofServer serves the runtime profiles on addr. An empty addr
// disables it.
func StartPprofServer(addr string) error {
	if addr == "" {
		return nil
	}
	return http.ListenAndServe(addr, nil)
}
