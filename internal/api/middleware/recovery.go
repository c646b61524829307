package middleware

import (
	"net/http"
	"runtime/debug"

	"brokerlink/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers.
// Перехватывает panic, логирует stack trace и возвращает 500, не роняя
// сервер целиком.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.L().WithComponent("http").Sugar().Errorw("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
