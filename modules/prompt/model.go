package prompt

import (
	"strings"

	"promptoon-server/modules/common/quota"
)

// Language - 프롬프트 언어
type Language string

const (
	LangChinese Language = "zh"
	LangEnglish Language = "en"
)

// Field - 고정된 10개 프롬프트 필드 정의
type Field struct {
	Key     string
	LabelZH string
	LabelEN string
}

// Label - 언어별 표시 이름
func (f Field) Label(lang Language) string {
	if lang == LangChinese {
		return f.LabelZH
	}
	return f.LabelEN
}

// Fields - 출력 순서 그대로
var Fields = []Field{
	{Key: "style_medium", LabelZH: "风格与媒介", LabelEN: "Style & Medium"},
	{Key: "style_details", LabelZH: "风格细节", LabelEN: "Style Details"},
	{Key: "scene", LabelZH: "场景描述", LabelEN: "Scene Description"},
	{Key: "subject", LabelZH: "主体", LabelEN: "Main Subject"},
	{Key: "outfit_props", LabelZH: "服饰与道具", LabelEN: "Outfit & Props"},
	{Key: "background", LabelZH: "背景", LabelEN: "Background"},
	{Key: "composition", LabelZH: "构图与视角", LabelEN: "Composition & Perspective"},
	{Key: "lighting_color", LabelZH: "光影与色彩", LabelEN: "Lighting & Color"},
	{Key: "special_effects", LabelZH: "特效", LabelEN: "Special Effects"},
	{Key: "avoid", LabelZH: "避免元素", LabelEN: "Avoid Elements"},
}

// FieldSet - 한 언어의 10개 필드 값 (누락 필드는 빈 문자열)
type FieldSet struct {
	StyleMedium    string `json:"style_medium"`
	StyleDetails   string `json:"style_details"`
	Scene          string `json:"scene"`
	Subject        string `json:"subject"`
	OutfitProps    string `json:"outfit_props"`
	Background     string `json:"background"`
	Composition    string `json:"composition"`
	LightingColor  string `json:"lighting_color"`
	SpecialEffects string `json:"special_effects"`
	Avoid          string `json:"avoid"`
}

func (s *FieldSet) slot(key string) *string {
	switch key {
	case "style_medium":
		return &s.StyleMedium
	case "style_details":
		return &s.StyleDetails
	case "scene":
		return &s.Scene
	case "subject":
		return &s.Subject
	case "outfit_props":
		return &s.OutfitProps
	case "background":
		return &s.Background
	case "composition":
		return &s.Composition
	case "lighting_color":
		return &s.LightingColor
	case "special_effects":
		return &s.SpecialEffects
	case "avoid":
		return &s.Avoid
	}
	return nil
}

// Get - 키로 값 조회 (모르는 키는 "")
func (s *FieldSet) Get(key string) string {
	if p := s.slot(key); p != nil {
		return *p
	}
	return ""
}

// Set - 키로 값 설정, 모르는 키면 false
func (s *FieldSet) Set(key, value string) bool {
	p := s.slot(key)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// Values - Fields 순서의 값 목록
func (s *FieldSet) Values() []string {
	values := make([]string, len(Fields))
	for i, f := range Fields {
		values[i] = s.Get(f.Key)
	}
	return values
}

// EmptyCount - 비어 있는 필드 수
func (s *FieldSet) EmptyCount() int {
	n := 0
	for _, v := range s.Values() {
		if strings.TrimSpace(v) == "" {
			n++
		}
	}
	return n
}

// PromptResult - 파싱된 이중 언어 프롬프트
type PromptResult struct {
	Chinese      FieldSet `json:"chinese_prompt"`
	English      FieldSet `json:"english_prompt"`
	FullPromptCN string   `json:"full_prompt_cn"`
	FullPromptEN string   `json:"full_prompt_en"`
}

// FieldSet - 언어별 필드 묶음
func (p *PromptResult) FieldSet(lang Language) *FieldSet {
	if lang == LangChinese {
		return &p.Chinese
	}
	return &p.English
}

// FullPrompt - 언어별 전체 프롬프트
func (p *PromptResult) FullPrompt(lang Language) string {
	if lang == LangChinese {
		return p.FullPromptCN
	}
	return p.FullPromptEN
}

// fillFullPrompts - 모델이 전체 프롬프트를 주지 않았으면 avoid를 제외한 9개 필드로 조합
func (p *PromptResult) fillFullPrompts() {
	if strings.TrimSpace(p.FullPromptCN) == "" {
		p.FullPromptCN = joinFields(&p.Chinese, "，")
	}
	if strings.TrimSpace(p.FullPromptEN) == "" {
		p.FullPromptEN = joinFields(&p.English, ", ")
	}
}

func joinFields(s *FieldSet, sep string) string {
	var parts []string
	for _, f := range Fields {
		if f.Key == "avoid" {
			continue
		}
		if v := strings.TrimSpace(s.Get(f.Key)); v != "" {
			parts = append(parts, strings.ReplaceAll(v, "\n", " "))
		}
	}
	return strings.Join(parts, sep)
}

// TokenUsage - Gemini usageMetadata 요약
type TokenUsage struct {
	PromptTokens     int32            `json:"promptTokens"`
	CompletionTokens int32            `json:"completionTokens"`
	TotalTokens      int32            `json:"totalTokens"`
	PromptDetail     map[string]int32 `json:"promptDetail,omitempty"`
	CompletionDetail map[string]int32 `json:"completionDetail,omitempty"`
}

// UploadedImage - 검증을 통과한 업로드 이미지
type UploadedImage struct {
	ID           string
	Filename     string
	DeclaredType string
	MIMEType     string
	Data         []byte
	Size         int64
}

// UploadForm - multipart 요청에서 읽은 값
type UploadForm struct {
	Image  *UploadedImage
	Model  string
	Format string
}

// GenerateRequest - 서비스 입력
type GenerateRequest struct {
	Image    *UploadedImage
	Model    string
	ClientID string
}

// GenerateResponse - /generate_prompt 응답
type GenerateResponse struct {
	Success      bool          `json:"success"`
	UUID         string        `json:"uuid,omitempty"`
	Model        string        `json:"model,omitempty"`
	PromptData   *PromptResult `json:"promptData,omitempty"`
	RawResponse  string        `json:"rawResponse,omitempty"`
	TokenUsage   *TokenUsage   `json:"tokenUsage,omitempty"`
	Quota        *quota.Usage  `json:"quota,omitempty"`
	ErrorCode    string        `json:"errorCode,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Details      string        `json:"details,omitempty"`
}
