package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/unillm/types"
)

const (
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	defaultScope    = "https://www.googleapis.com/auth/cloud-platform"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// 提前刷新窗口：令牌剩余有效期低于该值即视为过期
	expirySafetyWindow = 5 * time.Minute
	assertionLifetime  = time.Hour
)

// ServiceAccountCredentials 是服务账号密钥文件的相关字段。
type ServiceAccountCredentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri,omitempty"`
}

// ParseServiceAccountJSON 从密钥文件 JSON 解析凭据。
func ParseServiceAccountJSON(data []byte) (*ServiceAccountCredentials, error) {
	var creds ServiceAccountCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "服务账号 JSON 解析失败").WithCause(err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, types.NewError(types.ErrConfiguration, "服务账号缺少 client_email 或 private_key")
	}
	return &creds, nil
}

// ServiceAccountProvider 用 RS256 签名的 JWT 断言换取 Bearer 令牌，
// 并缓存至过期窗口。并发刷新通过 singleflight 合并为一次。
type ServiceAccountProvider struct {
	creds  *ServiceAccountCredentials
	scopes []string
	client *http.Client
	logger *zap.Logger

	key *rsa.PrivateKey

	mu      sync.RWMutex
	token   string
	expires time.Time

	group singleflight.Group

	// 测试钩子：替换断言生成
	signAssertion func(now time.Time) (string, error)
	now           func() time.Time
}

// NewServiceAccountProvider 创建服务账号令牌提供者。
// scopes 为空时使用 cloud-platform 默认 scope。
func NewServiceAccountProvider(creds *ServiceAccountCredentials, scopes []string, client *http.Client, logger *zap.Logger) (*ServiceAccountProvider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "服务账号私钥解析失败").WithCause(err)
	}
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &ServiceAccountProvider{
		creds:  creds,
		scopes: scopes,
		client: client,
		logger: logger.Named("auth.sa"),
		key:    key,
		now:    time.Now,
	}
	p.signAssertion = p.defaultSignAssertion
	return p, nil
}

func (p *ServiceAccountProvider) tokenURI() string {
	if p.creds.TokenURI != "" {
		return p.creds.TokenURI
	}
	return defaultTokenURI
}

// defaultSignAssertion 构建并签名 JWT 断言：
// iss/sub 为服务账号身份，aud 为令牌端点，有效期一小时。
func (p *ServiceAccountProvider) defaultSignAssertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   p.creds.ClientEmail,
		"sub":   p.creds.ClientEmail,
		"aud":   p.tokenURI(),
		"scope": strings.Join(p.scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "JWT 断言签名失败").WithCause(err)
	}
	return signed, nil
}

// Token 返回缓存令牌，临近过期时刷新。并发调用只触发一次交换。
func (p *ServiceAccountProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expires := p.token, p.expires
	p.mu.RUnlock()

	if token != "" && p.now().Add(expirySafetyWindow).Before(expires) {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		// 双检：等锁期间别的调用可能已经刷新
		p.mu.RLock()
		token, expires := p.token, p.expires
		p.mu.RUnlock()
		if token != "" && p.now().Add(expirySafetyWindow).Before(expires) {
			return token, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate 作废缓存令牌。
func (p *ServiceAccountProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expires = time.Time{}
	p.mu.Unlock()
}

// refresh 执行 jwt-bearer 表单交换。
func (p *ServiceAccountProvider) refresh(ctx context.Context) (string, error) {
	now := p.now()
	assertion, err := p.signAssertion(now)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURI(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "构建令牌请求失败").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "令牌端点请求失败").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "读取令牌响应失败").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.NewError(types.ErrAuthentication, "令牌交换被拒绝").
			WithHTTPStatus(resp.StatusCode).
			WithDetail("body_sample", sample(body))
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", types.NewError(types.ErrAuthentication, "令牌响应解析失败").WithCause(err)
	}
	if tr.AccessToken == "" {
		return "", types.NewError(types.ErrAuthentication, "令牌响应缺少 access_token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}

	expires := now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	p.mu.Lock()
	p.token = tr.AccessToken
	p.expires = expires
	p.mu.Unlock()

	p.logger.Debug("服务账号令牌已刷新",
		zap.String("client_email", p.creds.ClientEmail),
		zap.Time("expires", expires),
	)
	return tr.AccessToken, nil
}

func sample(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
