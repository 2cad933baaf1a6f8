package prompt

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

const (
	templateFile = "default_prompt.txt"
	dialogsFile  = "default_dialogs.json"
)

//go:embed assets/default_prompt.txt
var embeddedTemplate string

//go:embed assets/default_dialogs.json
var embeddedDialogs []byte

// DialogPart - 예시 대화의 텍스트 조각
type DialogPart struct {
	Text string `json:"text"`
}

// Dialog - few-shot 예시 대화 한 턴
type Dialog struct {
	Role  string       `json:"role"`
	Parts []DialogPart `json:"parts"`
}

// Assets - 시작 시 한 번 읽는 템플릿 + 예시 대화 (읽기 전용)
type Assets struct {
	template string
	dialogs  []Dialog
}

// NewAssets - 값 검증 후 Assets 생성
func NewAssets(template string, dialogs []Dialog) (*Assets, error) {
	if strings.TrimSpace(template) == "" {
		return nil, errors.New("prompt template is empty")
	}
	if err := validateDialogs(dialogs); err != nil {
		return nil, err
	}
	return &Assets{template: template, dialogs: copyDialogs(dialogs)}, nil
}

// DefaultAssets - 바이너리에 포함된 기본 템플릿/대화
func DefaultAssets() *Assets {
	dialogs, err := decodeDialogs(embeddedDialogs)
	if err != nil {
		panic(fmt.Sprintf("embedded dialogs are invalid: %v", err))
	}
	assets, err := NewAssets(embeddedTemplate, dialogs)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt assets are invalid: %v", err))
	}
	return assets
}

// LoadAssets - PROMPT_DIR의 파일을 우선 사용, 없거나 잘못되면 내장 기본값
// 템플릿과 대화는 각각 따로 대체된다
func LoadAssets(dir string) *Assets {
	defaults := DefaultAssets()
	template := defaults.template
	dialogs := defaults.dialogs

	if dir == "" {
		log.Println("ℹ️  [Prompt] PROMPT_DIR not set, using embedded prompt assets")
		return defaults
	}

	if data, err := os.ReadFile(filepath.Join(dir, templateFile)); err != nil {
		log.Printf("⚠️  [Prompt] %s not loaded, using embedded template: %v", templateFile, err)
	} else if strings.TrimSpace(string(data)) == "" {
		log.Printf("⚠️  [Prompt] %s is empty, using embedded template", templateFile)
	} else {
		template = string(data)
		log.Printf("✅ [Prompt] Template loaded from %s (%d chars)", dir, len([]rune(template)))
	}

	if data, err := os.ReadFile(filepath.Join(dir, dialogsFile)); err != nil {
		log.Printf("⚠️  [Prompt] %s not loaded, using embedded dialogs: %v", dialogsFile, err)
	} else if loaded, err := decodeDialogs(data); err != nil {
		log.Printf("⚠️  [Prompt] %s is invalid, using embedded dialogs: %v", dialogsFile, err)
	} else {
		dialogs = loaded
		log.Printf("✅ [Prompt] %d example dialogs loaded from %s", len(dialogs), dir)
	}

	assets, err := NewAssets(template, dialogs)
	if err != nil {
		// 위에서 이미 검증했으므로 여기 오지 않는다
		log.Printf("⚠️  [Prompt] Falling back to embedded assets: %v", err)
		return defaults
	}
	return assets
}

// Template - 지시 템플릿
func (a *Assets) Template() string {
	return a.template
}

// Dialogs - 예시 대화 복사본
func (a *Assets) Dialogs() []Dialog {
	return copyDialogs(a.dialogs)
}

// Contents - 예시 대화를 genai Content로 변환 (호출마다 새 값)
func (a *Assets) Contents() []*genai.Content {
	contents := make([]*genai.Content, 0, len(a.dialogs))
	for _, d := range a.dialogs {
		parts := make([]*genai.Part, 0, len(d.Parts))
		for _, p := range d.Parts {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
		contents = append(contents, &genai.Content{Role: d.Role, Parts: parts})
	}
	return contents
}

func decodeDialogs(data []byte) ([]Dialog, error) {
	var dialogs []Dialog
	if err := json.Unmarshal(data, &dialogs); err != nil {
		return nil, fmt.Errorf("failed to decode dialogs: %w", err)
	}
	if err := validateDialogs(dialogs); err != nil {
		return nil, err
	}
	return dialogs, nil
}

func validateDialogs(dialogs []Dialog) error {
	if len(dialogs) == 0 {
		return errors.New("example dialogs are empty")
	}
	for i, d := range dialogs {
		if d.Role != genai.RoleUser && d.Role != genai.RoleModel {
			return fmt.Errorf("dialog #%d has invalid role %q", i+1, d.Role)
		}
		if len(d.Parts) == 0 {
			return fmt.Errorf("dialog #%d has no parts", i+1)
		}
		for _, p := range d.Parts {
			if strings.TrimSpace(p.Text) == "" {
				return fmt.Errorf("dialog #%d has an empty part", i+1)
			}
		}
	}
	return nil
}

func copyDialogs(dialogs []Dialog) []Dialog {
	out := make([]Dialog, len(dialogs))
	for i, d := range dialogs {
		out[i] = Dialog{Role: d.Role, Parts: append([]DialogPart(nil), d.Parts...)}
	}
	return out
}
