// Package httpapi implements the Network Service's request/response
// HTTP surface for non-persistent clients, mirroring the
// fabric verbs' authorization model. Routing follows the bare
// net/http.ServeMux + route-table idiom this codebase's central HTTP
// handler package uses, rather than a third-party router.
package httpapi

import "net/http"

type route struct {
	pattern string
	method  string
	handler http.HandlerFunc
}

func mountRoutes(mux *http.ServeMux, routes ...route) {
	byPattern := make(map[string][]route)
	for _, rt := range routes {
		byPattern[rt.pattern] = append(byPattern[rt.pattern], rt)
	}
	for pattern, rts := range byPattern {
		rts := rts
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			for _, rt := range rts {
				if rt.method == r.Method {
					rt.handler(w, r)
					return
				}
			}
			methodNotAllowed(w, rts)
		})
	}
}

func methodNotAllowed(w http.ResponseWriter, rts []route) {
	allowed := make([]string, 0, len(rts))
	for _, rt := range rts {
		allowed = append(allowed, rt.method)
	}
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, errValidation("method not allowed"))
}
