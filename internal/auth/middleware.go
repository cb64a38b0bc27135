package auth

import (
	"errors"
	"net/http"
	"strings"

	"OpenAgent-Hub/pkg/logger"
)

// MiddlewareConfig 描述鉴权中间件的行为。
type MiddlewareConfig struct {
	// RequiredPermissions 以 "METHOD /path/prefix" 为键声明各路由需要的权限。
	RequiredPermissions map[string][]string
	// AuditEvent 非空时将访问结果写入审计日志。
	AuditEvent string
}

// Middleware 返回校验 Bearer 令牌并执行权限检查的 HTTP 中间件。
// 服务处于 disabled 模式时直接透传。
func Middleware(service *Service, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := service.AuthenticateRequest(r)
			if err != nil {
				writeAuthError(w, err)
				auditAccess(cfg, r, nil, http.StatusUnauthorized)
				return
			}

			if perms := requiredPermissions(cfg.RequiredPermissions, r); len(perms) > 0 {
				if err := subject.Authorize(perms...); err != nil {
					writeAuthError(w, err)
					auditAccess(cfg, r, subject, http.StatusForbidden)
					return
				}
			}

			recorder := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(WithSubject(r.Context(), subject)))
			auditAccess(cfg, r, subject, recorder.status)
		})
	}
}

func requiredPermissions(rules map[string][]string, r *http.Request) []string {
	if len(rules) == 0 {
		return nil
	}
	for rule, perms := range rules {
		method, prefix, ok := strings.Cut(rule, " ")
		if !ok {
			continue
		}
		if !strings.EqualFold(method, r.Method) {
			continue
		}
		if strings.HasPrefix(r.URL.Path, prefix) {
			return perms
		}
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := "UNAUTHORIZED"
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrSubjectRevoked):
		status = http.StatusForbidden
		code = "FORBIDDEN"
	case errors.Is(err, ErrMissingToken):
		code = "MISSING_TOKEN"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"code":"` + code + `","message":"` + err.Error() + `"}`))
}

func auditAccess(cfg MiddlewareConfig, r *http.Request, subject *Subject, status int) {
	if cfg.AuditEvent == "" {
		return
	}
	username := "-"
	if subject != nil {
		username = subject.Username
	}
	logger.Audit().Info(cfg.AuditEvent,
		"method", r.Method,
		"path", r.URL.Path,
		"username", username,
		"status", status,
	)
}

// auditWriter 捕获写出的状态码供审计使用。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
