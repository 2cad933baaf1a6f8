package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"

	"promptoon-server/modules/common/apperr"
	"promptoon-server/modules/common/metrics"
	"promptoon-server/modules/common/quota"
	"promptoon-server/modules/common/utils"
)

func uploaded(t *testing.T, side int) *UploadedImage {
	t.Helper()
	data := noisyPNG(t, side)
	return &UploadedImage{ID: "0123456789abcdef0123456789abcdef", Filename: "a.png", MIMEType: utils.MIMEPNG, Data: data, Size: int64(len(data))}
}

func TestServiceGenerate(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{text: fullMarkerReply}
	filesDuringCall := -1
	gen.onCall = func() { filesDuringCall = countFiles(t, cfg.UploadDir) }

	svc := newTestService(t, cfg, gen, nil)
	resp, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 32), ClientID: "ip"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !resp.Success || resp.UUID == "" || resp.Model != cfg.GeminiModel {
		t.Errorf("resp = %+v", resp)
	}
	if resp.PromptData.Chinese.EmptyCount() != 0 || resp.PromptData.English.EmptyCount() != 0 {
		t.Error("expected all fields populated")
	}
	if resp.RawResponse != fullMarkerReply {
		t.Error("raw response should be passed through")
	}
	if resp.TokenUsage == nil || resp.TokenUsage.TotalTokens != 1720 || resp.TokenUsage.PromptDetail["image"] != 258 {
		t.Errorf("token usage = %+v", resp.TokenUsage)
	}
	if resp.Quota != nil {
		t.Error("quota should be omitted when disabled")
	}

	if filesDuringCall != 1 {
		t.Errorf("upload files during call = %d, want 1", filesDuringCall)
	}
	if n := countFiles(t, cfg.UploadDir); n != 0 {
		t.Errorf("upload files after call = %d, want 0", n)
	}
}

func TestServiceRemovesUploadOnFailure(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{err: apperr.New(apperr.CodeNetworkFailure, "proxy is unreachable")}
	svc := newTestService(t, cfg, gen, nil)

	_, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16)})
	if !apperr.IsCode(err, apperr.CodeNetworkFailure) {
		t.Fatalf("err = %v", err)
	}
	if n := countFiles(t, cfg.UploadDir); n != 0 {
		t.Errorf("upload files after failed call = %d, want 0", n)
	}
}

func TestServiceModelSelection(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{text: fullMarkerReply}
	svc := newTestService(t, cfg, gen, nil)

	if _, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), Model: "gemini-2.5-flash"}); err != nil {
		t.Fatal(err)
	}
	if gen.models[0] != "gemini-2.5-flash" {
		t.Errorf("model = %q", gen.models[0])
	}

	_, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), Model: "doubao"})
	if !apperr.IsCode(err, apperr.CodeInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
	if gen.callCount() != 1 {
		t.Errorf("calls = %d, disallowed model must not reach the API", gen.callCount())
	}
}

func TestServiceMalformedResponses(t *testing.T) {
	for _, text := range []string{"", "Sorry, I can't describe this image."} {
		cfg := testConfig(t)
		svc := newTestService(t, cfg, &fakeGenerator{text: text}, nil)

		_, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16)})
		if !apperr.IsCode(err, apperr.CodeMalformedResponse) {
			t.Errorf("text %q: err = %v, want MALFORMED_RESPONSE", text, err)
		}
	}
}

func TestServiceBusy(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrentRequests = 1
	gen := &fakeGenerator{text: fullMarkerReply}
	svc := newTestService(t, cfg, gen, nil)

	if err := svc.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer svc.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Generate(ctx, &GenerateRequest{Image: uploaded(t, 16)})
	if !apperr.IsCode(err, apperr.CodeServiceBusy) {
		t.Fatalf("err = %v, want SERVICE_BUSY", err)
	}
	if gen.callCount() != 0 {
		t.Error("model should not be called while all slots are taken")
	}
}

func TestServiceDailyQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig(t)
	gen := &fakeGenerator{text: fullMarkerReply}
	svc := newTestService(t, cfg, gen, quota.NewLimiter(rdb, 2))

	for i := 1; i <= 2; i++ {
		resp, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "203.0.113.5"})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Quota == nil || resp.Quota.UsedCount != i {
			t.Errorf("call %d quota = %+v", i, resp.Quota)
		}
	}

	_, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "203.0.113.5"})
	if !apperr.IsCode(err, apperr.CodeRateLimited) {
		t.Fatalf("err = %v, want RATE_LIMITED", err)
	}
	if gen.callCount() != 2 {
		t.Errorf("calls = %d, want 2", gen.callCount())
	}

	if _, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "203.0.113.6"}); err != nil {
		t.Errorf("other client should not be limited: %v", err)
	}
}

func TestServiceFailedCallDoesNotCountTowardQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig(t)
	gen := &fakeGenerator{err: errors.New("boom")}
	limiter := quota.NewLimiter(rdb, 1)
	svc := newTestService(t, cfg, gen, limiter)

	svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "ip"})
	if _, err := limiter.Check(context.Background(), "ip"); err != nil {
		t.Errorf("failed call consumed quota: %v", err)
	}
}

func TestServiceRequestDeadlineCoversQueueWait(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig(t)
	cfg.MaxConcurrentRequests = 1
	cfg.RequestTimeout = 30 * time.Millisecond
	gen := &fakeGenerator{text: fullMarkerReply}
	limiter := quota.NewLimiter(rdb, 1)
	svc := newTestService(t, cfg, gen, limiter)

	if err := svc.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer svc.sem.Release(1)

	start := time.Now()
	_, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "ip"})
	if !apperr.IsCode(err, apperr.CodeServiceBusy) {
		t.Fatalf("err = %v, want SERVICE_BUSY", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("queued request waited %s, want it bounded by the request timeout", elapsed)
	}
	if gen.callCount() != 0 {
		t.Error("model should not be called")
	}
	if _, err := limiter.Check(context.Background(), "ip"); err != nil {
		t.Errorf("timed out request consumed quota: %v", err)
	}
}

func TestServiceRequestDeadlineCoversModelCall(t *testing.T) {
	cfg := testConfig(t)
	cfg.RequestTimeout = 30 * time.Millisecond
	gen := &fakeGenerator{hang: true}
	svc := newTestService(t, cfg, gen, nil)

	start := time.Now()
	_, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "ip"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("model call ran %s past the request timeout", elapsed)
	}
	if n := countFiles(t, cfg.UploadDir); n != 0 {
		t.Errorf("upload files after timeout = %d, want 0", n)
	}
}

func TestServiceRecordsEmptyFieldsPerResult(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, &fakeGenerator{text: fullMarkerReply}, nil)

	before := emptyFieldSamples(t, LangEnglish)
	for i := 0; i < 2; i++ {
		if _, err := svc.Generate(context.Background(), &GenerateRequest{Image: uploaded(t, 16), ClientID: "ip"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := emptyFieldSamples(t, LangEnglish) - before; got != 2 {
		t.Errorf("empty field observations = %d, want 2", got)
	}
}

func emptyFieldSamples(t *testing.T, lang Language) uint64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.EmptyFields.WithLabelValues(string(lang)).(prometheus.Metric).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestExtractTokenUsage(t *testing.T) {
	if ExtractTokenUsage(nil) != nil {
		t.Error("nil metadata should give nil usage")
	}
}
