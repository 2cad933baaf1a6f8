package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"promptoon-server/modules/common/apperr"
)

// Parser - 모델 응답 텍스트를 구조화된 결과로 변환
type Parser interface {
	Parse(raw string) (*PromptResult, error)
}

// fullPromptKey - 전체 프롬프트 라벨용 가상 키
const fullPromptKey = "full_prompt"

type labelAlias struct {
	text string
	key  string
	lang Language
}

// fieldAliases - 라벨로 인식하는 표기 (표시 이름 + 흔한 변형)
var fieldAliases = map[string]map[Language][]string{
	"style_medium":    {LangChinese: {"风格与媒介", "风格和媒介", "风格媒介"}, LangEnglish: {"Style & Medium", "Style and Medium", "Style/Medium"}},
	"style_details":   {LangChinese: {"风格细节"}, LangEnglish: {"Style Details"}},
	"scene":           {LangChinese: {"场景描述", "场景"}, LangEnglish: {"Scene Description", "Scene"}},
	"subject":         {LangChinese: {"主体描述", "主体"}, LangEnglish: {"Main Subject", "Subject"}},
	"outfit_props":    {LangChinese: {"服饰与道具", "服饰和道具", "服装与道具", "服饰道具"}, LangEnglish: {"Outfit & Props", "Outfit and Props", "Outfits & Props"}},
	"background":      {LangChinese: {"背景"}, LangEnglish: {"Background"}},
	"composition":     {LangChinese: {"构图与视角", "构图和视角", "构图"}, LangEnglish: {"Composition & Perspective", "Composition and Perspective", "Composition"}},
	"lighting_color":  {LangChinese: {"光影与色彩", "光影和色彩", "光影色彩"}, LangEnglish: {"Lighting & Color", "Lighting and Color", "Lighting & Colour"}},
	"special_effects": {LangChinese: {"特效", "特殊效果"}, LangEnglish: {"Special Effects", "Effects"}},
	"avoid":           {LangChinese: {"避免元素", "避免"}, LangEnglish: {"Avoid Elements", "Avoid"}},
	fullPromptKey:     {LangChinese: {"完整提示词", "完整提示"}, LangEnglish: {"Full Prompt"}},
}

// blockHeaders - 언어 구역 제목 (공백/구두점 제거, 소문자 기준)
var blockHeaders = map[string]Language{
	"中文":            LangChinese,
	"中文提示词":         LangChinese,
	"中文提示":          LangChinese,
	"chinese":       LangChinese,
	"chineseprompt": LangChinese,
	"英文":            LangEnglish,
	"英文提示词":         LangEnglish,
	"英文提示":          LangEnglish,
	"english":       LangEnglish,
	"englishprompt": LangEnglish,
}

// SectionParser - JSON 응답 또는 "라벨: 값" 형식 응답 파서
//
// 인식하지 못한 줄은 바로 앞 필드에 이어 붙이고, 첫 필드 이전이나
// 언어 구역 제목 직후의 텍스트는 버린다. 같은 라벨이 다시 나오면 그 필드를 이어 쓴다.
type SectionParser struct {
	aliases []labelAlias
}

func NewSectionParser() *SectionParser {
	var aliases []labelAlias
	for key, byLang := range fieldAliases {
		for lang, texts := range byLang {
			for _, text := range texts {
				aliases = append(aliases, labelAlias{text: text, key: key, lang: lang})
			}
		}
	}
	// 긴 라벨 먼저 ("Scene Description" 이 "Scene" 보다 우선)
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i].text) != len(aliases[j].text) {
			return len(aliases[i].text) > len(aliases[j].text)
		}
		return aliases[i].text < aliases[j].text
	})
	return &SectionParser{aliases: aliases}
}

// Parse - 빈 응답이거나 필드를 하나도 찾지 못하면 MALFORMED_RESPONSE
func (p *SectionParser) Parse(raw string) (*PromptResult, error) {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if text == "" {
		return nil, apperr.New(apperr.CodeMalformedResponse, "model returned an empty response")
	}

	result, found := parseJSON(text)
	if !found {
		result, found = p.parseSections(text)
	}
	if !found {
		return nil, apperr.New(apperr.CodeMalformedResponse, "no prompt fields found in model response").WithDetail(raw)
	}

	result.fillFullPrompts()
	return result, nil
}

type jsonPrompt struct {
	Chinese      map[string]any `json:"chinese_prompt"`
	English      map[string]any `json:"english_prompt"`
	FullPromptCN any            `json:"full_prompt_cn"`
	FullPromptEN any            `json:"full_prompt_en"`
}

// parseJSON - ```json 펜스 또는 앞뒤 설명이 섞인 JSON 객체도 허용
func parseJSON(text string) (*PromptResult, bool) {
	body := stripCodeFence(text)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var doc jsonPrompt
	if err := json.Unmarshal([]byte(body[start:end+1]), &doc); err != nil {
		return nil, false
	}

	result := &PromptResult{
		FullPromptCN: jsonString(doc.FullPromptCN),
		FullPromptEN: jsonString(doc.FullPromptEN),
	}
	found := false
	for _, f := range Fields {
		if v := jsonString(doc.Chinese[f.Key]); v != "" {
			result.Chinese.Set(f.Key, v)
			found = true
		}
		if v := jsonString(doc.English[f.Key]); v != "" {
			result.English.Set(f.Key, v)
			found = true
		}
	}
	return result, found
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := text[3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// jsonString - 문자열 또는 문자열 배열 값
func jsonString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := jsonString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

type fieldRef struct {
	lang Language
	key  string
}

// parseSections - 한 줄씩 라벨/구역 제목/이어지는 값을 판별
func (p *SectionParser) parseSections(text string) (*PromptResult, bool) {
	result := &PromptResult{}
	var (
		blockLang Language
		blockSeen bool
		current   *fieldRef
		found     bool
	)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isRule(trimmed) {
			continue
		}

		if lang, ok := matchBlockHeader(trimmed); ok {
			blockLang, blockSeen = lang, true
			current = nil
			continue
		}

		if alias, value, ok := p.matchLabel(trimmed); ok {
			// 완전 프롬프트 라벨은 언어가 라벨 자체에 있으므로 구역 언어를 따르지 않는다
			lang := alias.lang
			if blockSeen && alias.key != fullPromptKey {
				lang = blockLang
			}
			current = &fieldRef{lang: lang, key: alias.key}
			if alias.key != fullPromptKey {
				found = true
			}
			appendValue(result, current, value)
			continue
		}

		if current != nil {
			appendValue(result, current, trimmed)
		}
	}

	if !found {
		return nil, false
	}
	trimResult(result)
	return result, true
}

func appendValue(result *PromptResult, ref *fieldRef, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	if ref.key == fullPromptKey {
		target := &result.FullPromptEN
		if ref.lang == LangChinese {
			target = &result.FullPromptCN
		}
		*target = joinLine(*target, value)
		return
	}

	set := result.FieldSet(ref.lang)
	set.Set(ref.key, joinLine(set.Get(ref.key), value))
}

func joinLine(existing, value string) string {
	if existing == "" {
		return value
	}
	return existing + "\n" + value
}

func trimResult(result *PromptResult) {
	for _, set := range []*FieldSet{&result.Chinese, &result.English} {
		for _, f := range Fields {
			set.Set(f.Key, strings.TrimSpace(set.Get(f.Key)))
		}
	}
	result.FullPromptCN = strings.TrimSpace(result.FullPromptCN)
	result.FullPromptEN = strings.TrimSpace(result.FullPromptEN)
}

// matchLabel - 장식 제거 후 알려진 라벨 + 괄호 병기(선택) + (':' | '：' | 줄 끝) 이면 라벨
// 예: "风格与媒介 (Style & Medium)：数字插画", "Style & Medium (风格与媒介): ..."
func (p *SectionParser) matchLabel(line string) (labelAlias, string, bool) {
	s := stripDecoration(line)
	for _, alias := range p.aliases {
		if len(s) < len(alias.text) || !strings.EqualFold(s[:len(alias.text)], alias.text) {
			continue
		}
		rest := strings.TrimLeft(s[len(alias.text):], " \t*_】]）)")
		rest = strings.TrimLeft(skipBracketed(rest), " \t*_")
		if rest == "" {
			return alias, "", true
		}
		if after, ok := cutSeparator(rest); ok {
			return alias, strings.Trim(strings.TrimSpace(after), "*_"), true
		}
	}
	return labelAlias{}, "", false
}

// skipBracketed - 맨 앞의 "(...)", "（...）", "[...]", "【...】" 한 덩어리를 건너뛴다
// 닫는 괄호가 없으면 그대로 반환
func skipBracketed(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	switch r {
	case '(', '（', '[', '【':
	default:
		return s
	}
	if end := strings.IndexAny(s[size:], ")）]】"); end >= 0 {
		_, closerSize := utf8.DecodeRuneInString(s[size+end:])
		return s[size+end+closerSize:]
	}
	return s
}

func cutSeparator(s string) (string, bool) {
	if after, ok := strings.CutPrefix(s, ":"); ok {
		return after, true
	}
	if after, ok := strings.CutPrefix(s, "："); ok {
		return after, true
	}
	return "", false
}

// matchBlockHeader - "中文提示词", "## English Prompt:" 같은 구역 제목
func matchBlockHeader(line string) (Language, bool) {
	s := stripDecoration(line)
	s = strings.TrimRight(s, " \t:：*_】])）")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	lang, ok := blockHeaders[s]
	return lang, ok
}

// stripDecoration - 머리의 markdown 제목/목록 기호/번호/강조 제거
func stripDecoration(line string) string {
	s := strings.TrimSpace(line)
	for {
		before := s
		s = strings.TrimLeft(s, "#>*_-•·+【[（( \t")
		s = stripNumbering(s)
		if s == before {
			return s
		}
	}
}

// stripNumbering - "1.", "2)", "3、", "10:" 이 아닌 번호 접두어 제거
func stripNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch r {
		case '.', ')', '、', '）', '．':
			return s[i+size:]
		}
		return s
	}
	// ①-⑩
	if r, size := utf8.DecodeRuneInString(s); r >= '①' && r <= '⑩' {
		return s[size:]
	}
	return s
}

// isRule - markdown 구분선 (---, ***, ===)
func isRule(line string) bool {
	return len(line) >= 3 && strings.Trim(line, "-*=_ ") == ""
}
