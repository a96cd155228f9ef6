package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/hanasu/internal/model"
)

// OIDCConfig はOIDCプロバイダーの設定。
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// ディスカバリー文書のキャッシュ有効期間。0の場合は1時間
	DiscoveryCacheTTL time.Duration

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// discoveryDocument はOIDCディスカバリー文書のうち必要なフィールド。
type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// TokenSet はトークンエンドポイントから取得したトークン一式。
// ExpiresAtはアクセストークンの有効期限（エポック秒）。
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// ExchangeResult は認可コード交換の結果。
type ExchangeResult struct {
	Claims    model.SessionClaims
	Email     string
	FirstName string
	LastName  string
	Tokens    TokenSet
}

// OIDCProvider はOIDC認証フローを提供する。
// ディスカバリー文書は暗黙のメモ化ではなく、TTL付きの明示的キャッシュで保持する。
type OIDCProvider struct {
	config OIDCConfig
	client *http.Client

	discoveryMu        sync.Mutex
	discovery          *discoveryDocument
	discoveryFetchedAt time.Time
}

// NewOIDCProvider はOIDCProviderを生成する。
func NewOIDCProvider(config OIDCConfig) *OIDCProvider {
	if config.DiscoveryCacheTTL <= 0 {
		config.DiscoveryCacheTTL = time.Hour
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCProvider{
		config: config,
		client: client,
	}
}

// GetLoginURL はOIDC認可エンドポイントのURLを生成する。
// スコープにはopenid email profile offline_accessを含む。
func (p *OIDCProvider) GetLoginURL(ctx context.Context, state string) (string, error) {
	doc, err := p.discoveryDoc(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile offline_access"},
		"state":         {state},
		"prompt":        {"login consent"},
	}
	return doc.AuthorizationEndpoint + "?" + params.Encode(), nil
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// userinfoResponse はuserinfoエンドポイントのレスポンス。
type userinfoResponse struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*ExchangeResult, error) {
	doc, err := p.discoveryDoc(ctx)
	if err != nil {
		return nil, err
	}

	// 1. 認可コードをトークンに交換
	tokenResp, err := p.postTokenEndpoint(ctx, doc.TokenEndpoint, url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	userInfo, err := p.fetchUserInfo(ctx, doc.UserinfoEndpoint, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return &ExchangeResult{
		Claims:    model.SessionClaims{Sub: userInfo.Sub},
		Email:     userInfo.Email,
		FirstName: userInfo.GivenName,
		LastName:  userInfo.FamilyName,
		Tokens:    tokenSetFromResponse(tokenResp),
	}, nil
}

// Refresh はリフレッシュトークンで新しいトークン一式を取得する。
// 認証ゲートの1回限りのリフレッシュ試行から呼ばれる。
func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	doc, err := p.discoveryDoc(ctx)
	if err != nil {
		return nil, err
	}

	tokenResp, err := p.postTokenEndpoint(ctx, doc.TokenEndpoint, url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	tokens := tokenSetFromResponse(tokenResp)
	// リフレッシュトークンが返されない場合は既存のものを使い続ける
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return &tokens, nil
}

// discoveryDoc はディスカバリー文書をTTL付きキャッシュ経由で取得する。
func (p *OIDCProvider) discoveryDoc(ctx context.Context) (*discoveryDocument, error) {
	p.discoveryMu.Lock()
	defer p.discoveryMu.Unlock()

	if p.discovery != nil && time.Since(p.discoveryFetchedAt) < p.config.DiscoveryCacheTTL {
		return p.discovery, nil
	}

	wellKnown := strings.TrimSuffix(p.config.IssuerURL, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery failed with status %d: %s", resp.StatusCode, string(body))
	}

	doc := &discoveryDocument{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("failed to parse discovery response: %w", err)
	}
	if doc.TokenEndpoint == "" {
		return nil, fmt.Errorf("discovery document has no token endpoint")
	}

	p.discovery = doc
	p.discoveryFetchedAt = time.Now()
	return doc, nil
}

// postTokenEndpoint はトークンエンドポイントへのPOSTを実行する。
func (p *OIDCProvider) postTokenEndpoint(ctx context.Context, endpoint string, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	tokenResp := &tokenResponse{}
	if err := json.Unmarshal(body, tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return tokenResp, nil
}

// fetchUserInfo はアクセストークンでuserinfoエンドポイントを呼び出す。
func (p *OIDCProvider) fetchUserInfo(ctx context.Context, endpoint, accessToken string) (*userinfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	userInfo := &userinfoResponse{}
	if err := json.Unmarshal(body, userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if userInfo.Sub == "" {
		return nil, fmt.Errorf("empty sub in user info response")
	}

	return userInfo, nil
}

// tokenSetFromResponse はトークンレスポンスをTokenSetに変換する。
func tokenSetFromResponse(resp *tokenResponse) TokenSet {
	tokens := TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		tokens.ExpiresAt = time.Now().Unix() + int64(resp.ExpiresIn)
	}
	return tokens
}
