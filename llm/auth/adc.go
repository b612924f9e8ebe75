package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/unillm/types"
)

const (
	// 显式令牌覆盖。设置后优先级最高，不再探测其他来源。
	adcTokenEnv = "UNILLM_ACCESS_TOKEN"

	metadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
	metadataFlavor   = "Google"
)

// ADCProvider 实现应用默认凭据的严格优先级探测：
//  1. 环境变量中的显式令牌覆盖
//  2. 实例元数据服务（要求 Metadata-Flavor: Google 头）
//
// 第一个可用的来源胜出，来源之间绝不混合。全部失败时返回
// 列出已尝试来源的鉴权错误。
type ADCProvider struct {
	client      *http.Client
	logger      *zap.Logger
	metadataURL string

	mu      sync.RWMutex
	token   string
	expires time.Time

	group singleflight.Group
	now   func() time.Time
}

// NewADCProvider 创建 ADC 令牌提供者。
func NewADCProvider(client *http.Client, logger *zap.Logger) *ADCProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ADCProvider{
		client:      client,
		logger:      logger.Named("auth.adc"),
		metadataURL: metadataTokenURL,
		now:         time.Now,
	}
}

// Token 按优先级探测并返回令牌。元数据令牌带缓存与提前刷新窗口。
func (p *ADCProvider) Token(ctx context.Context) (string, error) {
	// 来源 1：显式环境变量覆盖
	if tok := strings.TrimSpace(os.Getenv(adcTokenEnv)); tok != "" {
		return tok, nil
	}

	p.mu.RLock()
	token, expires := p.token, p.expires
	p.mu.RUnlock()
	if token != "" && p.now().Add(expirySafetyWindow).Before(expires) {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		p.mu.RLock()
		token, expires := p.token, p.expires
		p.mu.RUnlock()
		if token != "" && p.now().Add(expirySafetyWindow).Before(expires) {
			return token, nil
		}
		return p.fetchMetadataToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate 作废缓存令牌。
func (p *ADCProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expires = time.Time{}
	p.mu.Unlock()
}

// 来源 2：实例元数据服务
func (p *ADCProvider) fetchMetadataToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metadataURL, nil)
	if err != nil {
		return "", p.exhausted(err)
	}
	req.Header.Set("Metadata-Flavor", metadataFlavor)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", p.exhausted(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", p.exhausted(
			types.NewError(types.ErrAuthentication, "元数据服务返回非 200").WithHTTPStatus(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", p.exhausted(err)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", p.exhausted(
			types.NewError(types.ErrAuthentication, "元数据令牌响应无效").WithCause(err))
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}

	expires := p.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	p.mu.Lock()
	p.token = tr.AccessToken
	p.expires = expires
	p.mu.Unlock()

	p.logger.Debug("元数据服务令牌已刷新", zap.Time("expires", expires))
	return tr.AccessToken, nil
}

// exhausted 所有来源都失败时的统一错误，列出已尝试的来源。
func (p *ADCProvider) exhausted(cause error) error {
	err := types.NewError(types.ErrAuthentication, "应用默认凭据不可用").
		WithDetail("sources_tried", []string{adcTokenEnv + " 环境变量", "实例元数据服务"})
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
