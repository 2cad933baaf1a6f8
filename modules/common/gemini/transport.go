package gemini

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ProxyCheckTimeout - 호출 전 프록시 TCP 확인 제한 시간
const ProxyCheckTimeout = 5 * time.Second

var defaultProxyPorts = map[string]string{
	"http":    "80",
	"https":   "443",
	"socks5":  "1080",
	"socks5h": "1080",
}

// NewHTTPClient - 프록시 설정을 반영한 HTTP 클라이언트
// proxyURL이 비어 있으면 HTTP(S)_PROXY 환경변수를 따른다
func NewHTTPClient(proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q: %v", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(u)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{Transport: transport}, nil
}

// proxyAddr - 프록시 URL에서 host:port 추출 (포트 없으면 스킴 기본값)
func proxyAddr(proxyURL string) (string, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("proxy url %q has no host", proxyURL)
	}
	port := u.Port()
	if port == "" {
		port = defaultProxyPorts[u.Scheme]
	}
	if port == "" {
		return "", fmt.Errorf("proxy url %q has no port", proxyURL)
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// CheckProxy - 프록시에 TCP 연결이 되는지 확인 (요청은 보내지 않음)
func CheckProxy(ctx context.Context, proxyURL string, timeout time.Duration) error {
	addr, err := proxyAddr(proxyURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy %s unreachable: %w", addr, err)
	}
	conn.Close()
	return nil
}

// ProbeEndpoint - 시작 시 Gemini 엔드포인트 도달 가능 여부 확인
// 상태 코드와 관계없이 응답이 오면 성공으로 본다
func ProbeEndpoint(ctx context.Context, httpClient *http.Client, endpoint string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint %s unreachable: %w", endpoint, err)
	}
	resp.Body.Close()
	log.Printf("🌐 [Gemini] Endpoint %s reachable (status %d)", endpoint, resp.StatusCode)
	return nil
}
