package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"promptoon-server/modules/prompt"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer([]string{"gemini-2.5-flash-lite", "gemini-2.5-flash"}, "gemini-2.5-flash-lite", 3*1024*1024)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func filledResult() *prompt.PromptResult {
	result := &prompt.PromptResult{FullPromptCN: "完整中文", FullPromptEN: "full english"}
	for _, f := range prompt.Fields {
		result.Chinese.Set(f.Key, "值-"+f.Key)
		result.English.Set(f.Key, "value-"+f.Key)
	}
	return result
}

func TestRenderResultTabsHaveMatchingFieldCounts(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderResult(&buf, &prompt.GenerateResponse{
		Success:    true,
		UUID:       "abc",
		Model:      "gemini-2.5-flash-lite",
		PromptData: filledResult(),
		TokenUsage: &prompt.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
	if err != nil {
		t.Fatalf("RenderResult: %v", err)
	}
	html := buf.String()

	for _, lang := range []string{"zh", "en"} {
		panelStart := strings.Index(html, `data-panel="`+lang+`"`)
		if panelStart < 0 {
			t.Fatalf("panel %s missing", lang)
		}
		panel := html[panelStart:]
		if end := strings.Index(panel[1:], `data-panel="`); end >= 0 {
			panel = panel[:end+1]
		}
		if n := strings.Count(panel, `class="field" data-field=`); n != len(prompt.Fields) {
			t.Errorf("%s panel has %d fields, want %d", lang, n, len(prompt.Fields))
		}
		if !strings.Contains(panel, `id="`+lang+`-full"`) {
			t.Errorf("%s panel has no full prompt copy target", lang)
		}
	}

	for _, want := range []string{"风格与媒介", "Style &amp; Medium", "value-avoid", "值-scene", "完整中文", "tokens 10 + 5 = 15"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered html missing %q", want)
		}
	}
	if n := strings.Count(html, `class="copy"`); n != 2*(len(prompt.Fields)+1) {
		t.Errorf("copy buttons = %d", n)
	}
}

func TestRenderResultEmptyFieldsAndEscaping(t *testing.T) {
	r := newTestRenderer(t)
	result := &prompt.PromptResult{}
	result.English.Set("subject", "<script>alert(1)</script>")

	var buf bytes.Buffer
	if err := r.RenderResult(&buf, &prompt.GenerateResponse{Success: true, PromptData: result}); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	if strings.Contains(html, "<script>alert") {
		t.Error("field values must be escaped")
	}
	if n := strings.Count(html, `field-value empty`); n != 2*len(prompt.Fields)-1 {
		t.Errorf("empty fields = %d", n)
	}
}

func TestRenderError(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	err := r.RenderResult(&buf, &prompt.GenerateResponse{ErrorCode: "FILE_TOO_LARGE", ErrorMessage: "image exceeds the 3MB limit"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `data-error-code="FILE_TOO_LARGE"`) || !strings.Contains(buf.String(), "3MB") {
		t.Errorf("error html = %s", buf.String())
	}
}

func TestHandleIndex(t *testing.T) {
	r := newTestRenderer(t)
	rec := httptest.NewRecorder()
	r.HandleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `name="image"`) {
		t.Fatalf("index = %d", rec.Code)
	}
	if !strings.Contains(body, `<option value="gemini-2.5-flash-lite" selected>`) || !strings.Contains(body, "最大 3MB") {
		t.Error("index should list models and the upload limit")
	}
}

func TestStaticHandler(t *testing.T) {
	h := StaticHandler()
	for _, path := range []string{"/static/app.js", "/static/style.css"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}
}
