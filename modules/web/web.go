// Package web - 업로드 페이지와 결과 화면 (html/template, 바이너리에 포함)
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"

	"promptoon-server/modules/prompt"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// tabView - 언어 탭 하나
type tabView struct {
	Lang       prompt.Language
	Title      string
	FullLabel  string
	CopyLabel  string
	Fields     []fieldView
	FullPrompt string
}

type fieldView struct {
	Key   string
	Label string
	Value string
}

type resultView struct {
	*prompt.GenerateResponse
	Tabs []tabView
}

type indexView struct {
	Models       []string
	DefaultModel string
	MaxUploadMB  int64
}

// Renderer - 페이지/결과 렌더러
type Renderer struct {
	tmpl  *template.Template
	index indexView
}

func NewRenderer(models []string, defaultModel string, maxUploadBytes int64) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{
		tmpl: tmpl,
		index: indexView{
			Models:       append([]string(nil), models...),
			DefaultModel: defaultModel,
			MaxUploadMB:  maxUploadBytes / (1024 * 1024),
		},
	}, nil
}

// HandleIndex - GET /
func (r *Renderer) HandleIndex(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.tmpl.ExecuteTemplate(w, "index.html", r.index); err != nil {
		log.Printf("❌ [Web] Failed to render index: %v", err)
	}
}

// RenderResult - 결과(또는 에러) 조각 렌더링
func (r *Renderer) RenderResult(w io.Writer, resp *prompt.GenerateResponse) error {
	return r.tmpl.ExecuteTemplate(w, "result", buildResultView(resp))
}

func buildResultView(resp *prompt.GenerateResponse) resultView {
	view := resultView{GenerateResponse: resp}
	if resp.PromptData == nil {
		return view
	}
	view.Tabs = []tabView{
		buildTab(resp.PromptData, prompt.LangChinese, "中文提示词", "完整提示词", "复制"),
		buildTab(resp.PromptData, prompt.LangEnglish, "English Prompt", "Full Prompt", "Copy"),
	}
	return view
}

func buildTab(result *prompt.PromptResult, lang prompt.Language, title, fullLabel, copyLabel string) tabView {
	set := result.FieldSet(lang)
	tab := tabView{
		Lang:       lang,
		Title:      title,
		FullLabel:  fullLabel,
		CopyLabel:  copyLabel,
		FullPrompt: result.FullPrompt(lang),
	}
	for _, f := range prompt.Fields {
		tab.Fields = append(tab.Fields, fieldView{Key: f.Key, Label: f.Label(lang), Value: set.Get(f.Key)})
	}
	return tab
}

// StaticHandler - /static/ 아래 CSS/JS
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
