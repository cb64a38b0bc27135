package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"OpenAgent-Hub/pkg/logger"
)

// Service 负责令牌签发与请求认证。Mode 为 disabled 时所有检查直接放行。
type Service struct {
	mode  Mode
	store Store
	jwt   *jwtManager
}

// NewService 按配置构造认证服务, 并写入种子账户。
func NewService(ctx context.Context, cfg Config, store Store) (*Service, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDisabled
	}
	switch mode {
	case ModeDisabled:
		return &Service{mode: mode}, nil
	case ModeJWT:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}

	if store == nil {
		return nil, fmt.Errorf("auth store is required for mode %q", mode)
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	if writer, ok := store.(SeedWriter); ok {
		for _, seed := range cfg.Seeds {
			if err := writer.ApplySeed(ctx, seed); err != nil {
				return nil, fmt.Errorf("apply auth seed %q: %w", seed.Username, err)
			}
		}
	}

	accessTTL := time.Duration(cfg.JWT.AccessTTL) * time.Second
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := time.Duration(cfg.JWT.RefreshTTL) * time.Second
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}

	return &Service{
		mode:  mode,
		store: store,
		jwt: &jwtManager{
			secret:     []byte(cfg.JWT.Secret),
			issuer:     cfg.JWT.Issuer,
			audience:   cfg.JWT.Audience,
			accessTTL:  accessTTL,
			refreshTTL: refreshTTL,
		},
	}, nil
}

// Enabled 报告服务是否参与认证。
func (s *Service) Enabled() bool {
	return s != nil && s.mode != ModeDisabled
}

// Authenticate 处理 password 授权, 校验口令并签发令牌对。
func (s *Service) Authenticate(ctx context.Context, req TokenRequest) (*TokenPair, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	grant := strings.ToLower(strings.TrimSpace(req.GrantType))
	if grant != "" && grant != "password" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGrant, req.GrantType)
	}

	user, err := s.store.FindUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrSubjectRevoked
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		logger.Audit().Warn("认证失败", "username", req.Username)
		return nil, ErrInvalidCredentials
	}

	subject, err := s.store.LoadSubject(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	pair, err := s.jwt.Issue(subject)
	if err != nil {
		return nil, err
	}
	logger.Audit().Info("令牌签发成功", "username", subject.Username, "subject_id", subject.ID)
	return pair, nil
}

// Verify 校验访问令牌并还原认证主体。
func (s *Service) Verify(_ context.Context, token string) (*Subject, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	return s.jwt.Verify(token)
}

// AuthenticateRequest 从 HTTP 请求中解析 Bearer 令牌并校验。
func (s *Service) AuthenticateRequest(r *http.Request) (*Subject, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, ErrMissingToken
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, ErrInvalidToken
	}
	return s.Verify(r.Context(), strings.TrimSpace(header[len(prefix):]))
}

// jwtManager 使用 HMAC-SHA256 手工签发与校验紧凑 JWT。
type jwtManager struct {
	secret     []byte
	issuer     string
	audience   []string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type jwtClaims struct {
	Issuer      string   `json:"iss,omitempty"`
	Subject     string   `json:"sub"`
	Audience    []string `json:"aud,omitempty"`
	ExpiresAt   int64    `json:"exp"`
	IssuedAt    int64    `json:"iat"`
	TokenType   string   `json:"typ"`
	SubjectID   int64    `json:"sid"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
}

// Issue 签发访问令牌与刷新令牌。
func (m *jwtManager) Issue(subject *Subject) (*TokenPair, error) {
	if subject == nil {
		return nil, ErrInvalidToken
	}
	now := time.Now()

	access, err := m.sign(subject, "access", now, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(subject, "refresh", now, m.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		ExpiresIn:        int64(m.accessTTL / time.Second),
		RefreshToken:     refresh,
		RefreshExpiresIn: int64(m.refreshTTL / time.Second),
		TokenType:        "Bearer",
		Subject:          subject.Clone(),
		GrantedScopes:    append([]string(nil), subject.Permissions...),
	}, nil
}

func (m *jwtManager) sign(subject *Subject, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	claims := jwtClaims{
		Issuer:      m.issuer,
		Subject:     subject.Username,
		Audience:    m.audience,
		ExpiresAt:   now.Add(ttl).Unix(),
		IssuedAt:    now.Unix(),
		TokenType:   tokenType,
		SubjectID:   subject.ID,
		Username:    subject.Username,
		Roles:       subject.Roles,
		Permissions: subject.Permissions,
		Disabled:    subject.Disabled,
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	encode := base64.RawURLEncoding.EncodeToString
	signingInput := encode(headerJSON) + "." + encode(claimsJSON)
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + encode(mac.Sum(nil)), nil
}

// Verify 校验签名与时间窗口, 并还原令牌内嵌的主体信息。
func (m *jwtManager) Verify(token string) (*Subject, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(signingInput))
	want := mac.Sum(nil)

	got, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || !hmac.Equal(got, want) {
		return nil, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims jwtClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	now := time.Now().Unix()
	if claims.ExpiresAt != 0 && claims.ExpiresAt < now {
		return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if claims.TokenType != "access" {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if len(m.audience) > 0 && !audienceMatches(m.audience, claims.Audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.Disabled {
		return nil, ErrSubjectRevoked
	}

	subject := &Subject{
		ID:          claims.SubjectID,
		Username:    claims.Username,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		Disabled:    claims.Disabled,
	}
	subject.normalise()
	return subject, nil
}

func audienceMatches(expected, actual []string) bool {
	for _, want := range expected {
		for _, got := range actual {
			if want == got {
				return true
			}
		}
	}
	return false
}
