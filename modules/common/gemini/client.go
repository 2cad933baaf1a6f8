package gemini

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/auth/httptransport"
	"google.golang.org/genai"

	"promptoon-server/modules/common/apperr"
	"promptoon-server/modules/common/config"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/"
	cloudPlatformScope    = "https://www.googleapis.com/auth/cloud-platform"
)

// Generator - 모델 호출 추상화 (테스트에서 가짜 구현으로 교체)
type Generator interface {
	Generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// keyedClient - API 키 하나에 묶인 genai 클라이언트
type keyedClient struct {
	label  string
	client *genai.Client
}

// Client - 시작 시 한 번 만들어 재사용하는 Gemini 클라이언트 묶음
type Client struct {
	clients    []keyedClient
	proxyURL   string
	timeout    time.Duration
	maxRetries int
	retryWait  time.Duration
	httpClient *http.Client
	endpoint   string
}

// NewClient - 설정에 맞는 백엔드로 클라이언트 생성
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	httpClient, err := NewHTTPClient(cfg.ProxyURL())
	if err != nil {
		return nil, err
	}

	c := &Client{
		proxyURL:   cfg.ProxyURL(),
		timeout:    cfg.GeminiTimeout,
		maxRetries: cfg.GeminiMaxRetries,
		retryWait:  2 * time.Second,
		httpClient: httpClient,
		endpoint:   defaultGeminiEndpoint,
	}
	if cfg.GeminiBaseURL != "" {
		c.endpoint = cfg.GeminiBaseURL
	}

	switch cfg.GeminiBackend {
	case config.BackendVertex:
		client, err := newVertexClient(ctx, cfg, httpClient)
		if err != nil {
			return nil, err
		}
		c.clients = append(c.clients, keyedClient{label: "vertex", client: client})
		c.endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com/", cfg.VertexAILocation)
	default:
		for i, key := range cfg.GeminiAPIKeys {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:      key,
				Backend:     genai.BackendGeminiAPI,
				HTTPClient:  httpClient,
				HTTPOptions: genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create Gemini client for key #%d: %w", i+1, err)
			}
			c.clients = append(c.clients, keyedClient{label: fmt.Sprintf("key #%d", i+1), client: client})
		}
	}

	if len(c.clients) == 0 {
		return nil, fmt.Errorf("no Gemini client configured")
	}

	log.Printf("✅ [Gemini] Client initialized (backend: %s, clients: %d, proxy: %t)", cfg.GeminiBackend, len(c.clients), c.proxyURL != "")
	return c, nil
}

// newVertexClient - Vertex AI 백엔드 클라이언트
// VERTEXAI_CREDENTIALS_JSON이 있으면 사용하고 없으면 ADC
func newVertexClient(ctx context.Context, cfg *config.Config, base *http.Client) (*genai.Client, error) {
	opts := &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}}
	if cfg.VertexAICredentialsJSON != "" {
		log.Println("✅ [Gemini] Using VERTEXAI_CREDENTIALS_JSON from environment")
		opts.CredentialsJSON = []byte(cfg.VertexAICredentialsJSON)
	} else {
		log.Println("⚠️  [Gemini] No explicit credentials found, using Application Default Credentials")
	}

	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load Vertex AI credentials: %w", err)
	}

	// 프록시 transport 위에 인증 헤더를 얹는다
	authClient, err := httptransport.NewClient(&httptransport.Options{
		Credentials:      creds,
		BaseRoundTripper: base.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated HTTP client: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.VertexAIProject,
		Location:    cfg.VertexAILocation,
		HTTPClient:  authClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	log.Printf("✅ [Gemini] Vertex AI client initialized for project=%s, location=%s", cfg.VertexAIProject, cfg.VertexAILocation)
	return client, nil
}

// Generate - 프록시 확인 → 타임아웃 적용 → 429만 재시도
func (c *Client) Generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if c.proxyURL != "" {
		if err := CheckProxy(ctx, c.proxyURL, ProxyCheckTimeout); err != nil {
			log.Printf("❌ [Gemini] Proxy pre-flight failed: %v", err)
			return nil, apperr.Wrap(err, apperr.CodeNetworkFailure, "proxy is unreachable")
		}
	}

	resp, err := c.generateWithRetry(ctx, model, contents, cfg)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

// CheckConnectivity - 시작 시 프록시/엔드포인트 점검 (결과는 경고로만 사용)
func (c *Client) CheckConnectivity(ctx context.Context) error {
	if c.proxyURL != "" {
		if err := CheckProxy(ctx, c.proxyURL, ProxyCheckTimeout); err != nil {
			return err
		}
		log.Printf("✅ [Gemini] Proxy reachable: %s", c.proxyURL)
	}
	return ProbeEndpoint(ctx, c.httpClient, strings.TrimSuffix(c.endpoint, "/")+"/", ProxyCheckTimeout)
}
