package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"promptoon-server/modules/common/apperr"
)

// errRetriesExhausted - 모든 키가 429로 소진됨
var errRetriesExhausted = errors.New("all API keys exhausted by rate limiting")

// generateWithRetry - 429 에러 시 같은 키로 재시도 후 다음 키로 넘어간다
// 429가 아닌 에러는 즉시 반환
func (c *Client) generateWithRetry(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for keyIndex, kc := range c.clients {
		if len(c.clients) > 1 {
			log.Printf("🔑 [Gemini Retry] Trying %s (%d/%d)", kc.label, keyIndex+1, len(c.clients))
		}

		for attempt := 1; attempt <= c.maxRetries; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 Retry attempt %d/%d for %s", attempt, c.maxRetries, kc.label)
			}

			result, err := c.callOnce(ctx, kc.client, model, contents, config)
			if err == nil {
				if attempt > 1 || keyIndex > 0 {
					log.Printf("✅ [Gemini Retry] Success with %s (attempt %d/%d)", kc.label, attempt, c.maxRetries)
				}
				return result, nil
			}
			lastErr = err

			if !isRateLimitError(err) {
				log.Printf("❌ [Gemini] %s failed with non-429 error: %v", kc.label, err)
				return nil, err
			}

			log.Printf("⚠️  [Gemini Retry] %s hit rate limit (429) on attempt %d/%d", kc.label, attempt, c.maxRetries)

			if attempt < c.maxRetries {
				log.Printf("   ⏳ Waiting %s before retry...", c.retryWait)
				if err := sleepContext(ctx, c.retryWait); err != nil {
					return nil, err
				}
			}
		}

		if keyIndex < len(c.clients)-1 {
			log.Printf("⚠️  [Gemini Retry] %s exhausted all %d attempts, trying next key...", kc.label, c.maxRetries)
		}
	}

	return nil, fmt.Errorf("%w (%d clients, %d attempts each): %w", errRetriesExhausted, len(c.clients), c.maxRetries, lastErr)
}

// callOnce - 호출 1회에 GEMINI_TIMEOUT 적용
func (c *Client) callOnce(
	ctx context.Context,
	client *genai.Client,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// GenerateContent가 config에 기본값을 채우므로 호출마다 복사본 사용
	var cfgCopy *genai.GenerateContentConfig
	if config != nil {
		cp := *config
		cfgCopy = &cp
	}
	return client.Models.GenerateContent(callCtx, model, contents, cfgCopy)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRateLimitError - 429 Rate Limit 에러인지 확인
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}

	// 전송 에러 메시지에는 URL(포트 번호 포함)이 들어가므로 문자열 검사 대상에서 제외
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota")
}

// classifyError - 모델 호출 에러를 응답용 AppError로 변환
func classifyError(err error) error {
	if _, ok := err.(*apperr.AppError); ok {
		return err
	}

	if errors.Is(err, errRetriesExhausted) {
		return apperr.Wrap(err, apperr.CodeRateLimited, "model service is rate limiting requests, please try again later")
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("model service returned %d", apiErr.Code)
		if apiErr.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, apiErr.Message)
		}
		return apperr.Wrap(err, apperr.CodeUpstreamError, msg)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.CodeNetworkFailure, "model service did not respond in time")
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(err, apperr.CodeNetworkFailure, "request was cancelled")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(err, apperr.CodeNetworkFailure, "could not reach model service")
	}

	return apperr.Wrap(err, apperr.CodeUpstreamError, "model service call failed")
}
