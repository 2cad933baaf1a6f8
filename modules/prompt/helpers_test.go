package prompt

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"promptoon-server/modules/common/config"
	"promptoon-server/modules/common/quota"
	"promptoon-server/modules/common/storage"
)

const maxUpload = 3 * 1024 * 1024

// fakeGenerator - 고정 응답을 돌려주는 모델 대역
type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	models []string
	text   string
	err    error
	onCall func()
	// hang - 컨텍스트가 끝날 때까지 응답하지 않는다
	hang bool
}

func (f *fakeGenerator) Generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls++
	f.models = append(f.models, model)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall()
	}
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: f.text}}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1300,
			CandidatesTokenCount: 420,
			TotalTokenCount:      1720,
			PromptTokensDetails: []*genai.ModalityTokenCount{
				{Modality: genai.MediaModalityText, TokenCount: 1042},
				{Modality: genai.MediaModalityImage, TokenCount: 258},
			},
		},
	}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		GeminiModel:            "gemini-2.5-flash-lite",
		GeminiAllowedModels:    []string{"gemini-2.5-flash-lite", "gemini-2.5-flash"},
		UploadDir:              t.TempDir(),
		MaxUploadBytes:         maxUpload,
		CompressThresholdBytes: 1024 * 1024,
		MaxConcurrentRequests:  2,
		RequestTimeout:         10 * time.Second,
	}
}

func newTestService(t *testing.T, cfg *config.Config, gen *fakeGenerator, limiter *quota.Limiter) *Service {
	t.Helper()
	store, err := storage.NewTransientStore(cfg.UploadDir)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(cfg, gen, DefaultAssets(), store, limiter)
}

// countFiles - 업로드 디렉터리의 일반 파일 수
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

// noisyPNG - 압축이 잘 안 되는 PNG (side x side, 약 3*side^2 바이트)
func noisyPNG(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	rng := rand.New(rand.NewSource(7))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func smallGIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 8, 8), []color.Color{color.Black, color.White}), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartRequest - image 파일 + 추가 필드로 POST 요청 생성
func multipartRequest(t *testing.T, target string, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if data != nil {
		fw, err := mw.CreateFormFile(imageField, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "198.51.100.20:40000"
	return req
}
