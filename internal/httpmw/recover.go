package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500 in the file
// API's error shape. http.ErrAbortHandler is re-raised so net/http can
// abort the connection as intended. onPanic may be nil.
func Recover(logger log.Logger, onPanic func()) Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", v)
				}
				ctx := r.Context()
				log.FromContextOr(ctx, logger).Error(ctx, xerrors.WithStack(err), "panic recovered in http handler",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				)
				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"internal server error"}` + "\n"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
