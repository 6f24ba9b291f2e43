package server

import (
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
)

const (
	allowOriginHeader = "Access-Control-Allow-Origin"
	allowAnyOrigin    = "*"
)

// CORSMiddleware adds Access-Control-Allow-Origin: * to every response.
//
// The header is (re)applied at the moment the header block is finalized
// (WriteHeader, the first Write or ReadFrom, Flush) so it survives handlers
// that reset the header map on their error paths. Handlers that write
// nothing get it after they return, before net/http sends the implicit 200.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		sent := false
		allow := func() {
			if !sent {
				h.Set(allowOriginHeader, allowAnyOrigin)
				sent = true
			}
		}

		hooked := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					// 1xx responses do not finalize the header block.
					if code >= 200 {
						allow()
					}
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					allow()
					return next(b)
				}
			},
			ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
				return func(src io.Reader) (int64, error) {
					allow()
					return next(src)
				}
			},
			Flush: func(next httpsnoop.FlushFunc) httpsnoop.FlushFunc {
				return func() {
					allow()
					next()
				}
			},
		})

		next.ServeHTTP(hooked, r)
		allow()
	})
}
