package prompt

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"

	"promptoon-server/modules/common/apperr"
	"promptoon-server/modules/common/config"
	"promptoon-server/modules/common/gemini"
	"promptoon-server/modules/common/metrics"
	"promptoon-server/modules/common/quota"
	"promptoon-server/modules/common/storage"
	"promptoon-server/modules/common/utils"
)

const webpQuality = 80

type Service struct {
	cfg       *config.Config
	composer  *Composer
	parser    Parser
	generator gemini.Generator
	store     *storage.TransientStore
	limiter   *quota.Limiter
	sem       *semaphore.Weighted
}

func NewService(cfg *config.Config, generator gemini.Generator, assets *Assets, store *storage.TransientStore, limiter *quota.Limiter) *Service {
	return &Service{
		cfg:       cfg,
		composer:  NewComposer(assets),
		parser:    NewSectionParser(),
		generator: generator,
		store:     store,
		limiter:   limiter,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}
}

// ResolveModel - 요청 모델이 비었으면 기본 모델, 허용 목록 밖이면 INVALID_REQUEST
func (s *Service) ResolveModel(requested string) (string, error) {
	if requested == "" {
		return s.cfg.GeminiModel, nil
	}
	if !s.cfg.IsModelAllowed(requested) {
		return "", apperr.Newf(apperr.CodeInvalidRequest, "model %q is not supported", requested)
	}
	return requested, nil
}

// Generate - 사용량 예약 → 임시 저장 → 최적화 → 모델 호출 → 파싱
// 업로드 파일은 성공/실패와 관계없이 호출 후 삭제
// 대기열 + 재시도 전체가 REQUEST_TIMEOUT 안에서 끝나야 한다
func (s *Service) Generate(ctx context.Context, req *GenerateRequest) (resp *GenerateResponse, err error) {
	img := req.Image

	model, err := s.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	usage, err := s.limiter.Reserve(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	defer func() {
		// 실패한 요청은 사용량에서 뺀다
		if err != nil {
			s.limiter.Release(ctx, usage)
		}
	}()

	path, err := s.store.Save(img.ID, utils.ExtensionFor(img.MIMEType), img.Data)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternalError, "failed to store upload")
	}
	defer s.store.Remove(path)
	metrics.UploadSize.Observe(float64(img.Size))

	data, mimeType := utils.OptimizeImage(img.Data, img.MIMEType, s.cfg.CompressThresholdBytes, webpQuality)
	sendImage := *img
	sendImage.Data, sendImage.MIMEType = data, mimeType

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeServiceBusy, "server is busy, please try again later")
	}
	defer s.sem.Release(1)

	modelReq := s.composer.Compose(model, &sendImage)

	log.Printf("📤 [Prompt] Calling %s for %s (%s, %d bytes)", model, img.ID, mimeType, len(data))
	start := time.Now()
	modelResp, err := s.generator.Generate(ctx, modelReq.Model, modelReq.Contents, modelReq.Config)
	metrics.ModelCallDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("❌ [Prompt] Model call failed for %s: %v", img.ID, err)
		return nil, err
	}
	log.Printf("📥 [Prompt] Model responded for %s in %s", img.ID, time.Since(start).Round(time.Millisecond))

	tokenUsage := ExtractTokenUsage(modelResp.UsageMetadata)
	if tokenUsage != nil {
		metrics.TokensTotal.WithLabelValues(model, "prompt").Add(float64(tokenUsage.PromptTokens))
		metrics.TokensTotal.WithLabelValues(model, "completion").Add(float64(tokenUsage.CompletionTokens))
	}

	raw := modelResp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, apperr.New(apperr.CodeMalformedResponse, "model returned no text").WithDetail(finishReason(modelResp))
	}

	result, err := s.parser.Parse(raw)
	if err != nil {
		log.Printf("❌ [Prompt] Failed to parse response for %s: %s", img.ID, utils.TruncateString(raw, 80))
		return nil, err
	}

	metrics.EmptyFields.WithLabelValues(string(LangChinese)).Observe(float64(result.Chinese.EmptyCount()))
	metrics.EmptyFields.WithLabelValues(string(LangEnglish)).Observe(float64(result.English.EmptyCount()))
	log.Printf("✅ [Prompt] Parsed %s: empty fields zh=%d en=%d", img.ID, result.Chinese.EmptyCount(), result.English.EmptyCount())

	resp = &GenerateResponse{
		Success:     true,
		UUID:        img.ID,
		Model:       model,
		PromptData:  result,
		RawResponse: raw,
		TokenUsage:  tokenUsage,
	}
	if s.limiter.Enabled() {
		resp.Quota = usage
	}
	return resp, nil
}

// ExtractTokenUsage - usageMetadata → TokenUsage (modality 이름은 소문자)
func ExtractTokenUsage(meta *genai.GenerateContentResponseUsageMetadata) *TokenUsage {
	if meta == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     meta.PromptTokenCount,
		CompletionTokens: meta.CandidatesTokenCount,
		TotalTokens:      meta.TotalTokenCount,
		PromptDetail:     modalityCounts(meta.PromptTokensDetails),
		CompletionDetail: modalityCounts(meta.CandidatesTokensDetails),
	}
}

func modalityCounts(details []*genai.ModalityTokenCount) map[string]int32 {
	if len(details) == 0 {
		return nil
	}
	counts := make(map[string]int32, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		counts[strings.ToLower(string(d.Modality))] += d.TokenCount
	}
	return counts
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		return "finish reason: " + string(resp.Candidates[0].FinishReason)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "blocked: " + string(resp.PromptFeedback.BlockReason)
	}
	return ""
}
