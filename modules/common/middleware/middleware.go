// Package middleware - HTTP 공통 미들웨어 (CORS, request id, recovery, 접근 로그/지표)
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"promptoon-server/modules/common/apperr"
	"promptoon-server/modules/common/metrics"
)

// RequestIDHeader - 요청 ID 헤더
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestIDFrom - context에 저장된 요청 ID
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// CORS - 모든 origin 허용 (브라우저에서 직접 호출)
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestID - 헤더에 있으면 그대로, 없으면 새로 생성
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, requestID)))
	})
}

// Recovery - panic을 500 JSON 응답으로 변환
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("💥 [Recovery] panic on %s %s (request %s): %v\n%s",
					r.Method, r.URL.Path, RequestIDFrom(r.Context()), rec, debug.Stack())

				appErr := apperr.New(apperr.CodeInternalError, "internal server error")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(appErr.HTTPStatus)
				json.NewEncoder(w).Encode(map[string]any{
					"success":      false,
					"errorCode":    appErr.Code,
					"errorMessage": appErr.Message,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLog - 요청 로그 + HTTP 지표
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := routeTemplate(r)
		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())

		if path != "/health" && path != "/metrics" {
			log.Printf("📨 %s %s → %d (%s) [%s]", r.Method, r.URL.Path, rec.status, duration.Round(time.Millisecond), RequestIDFrom(r.Context()))
		}
	})
}

// routeTemplate - 라벨 폭증 방지를 위해 mux 라우트 템플릿 사용
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unknown"
}
