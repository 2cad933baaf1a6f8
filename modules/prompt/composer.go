package prompt

import (
	"google.golang.org/genai"
)

const (
	acknowledgement = "我明白了，我会按照您的要求分析图片并生成结构化的提示词..."
	instruction     = "请分析这张图片并生成提示词:"

	defaultMaxOutputTokens int32   = 2048
	defaultTemperature     float32 = 0.7
)

// ModelRequest - 모델 호출 한 번에 필요한 값
type ModelRequest struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// Composer - 템플릿 + 예시 대화 + 이미지를 하나의 요청으로 합친다
// 내부 상태를 바꾸지 않으므로 같은 입력이면 같은 요청
type Composer struct {
	assets *Assets
}

func NewComposer(assets *Assets) *Composer {
	return &Composer{assets: assets}
}

// Compose - [user: 템플릿] [model: 확인] [예시 대화...] [user: 지시 + 이미지]
func (c *Composer) Compose(model string, image *UploadedImage) *ModelRequest {
	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(c.assets.Template())}},
		{Role: genai.RoleModel, Parts: []*genai.Part{genai.NewPartFromText(acknowledgement)}},
	}
	contents = append(contents, c.assets.Contents()...)
	contents = append(contents, &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(instruction),
			genai.NewPartFromBytes(image.Data, image.MIMEType),
		},
	})

	return &ModelRequest{
		Model:    model,
		Contents: contents,
		Config: &genai.GenerateContentConfig{
			MaxOutputTokens: defaultMaxOutputTokens,
			Temperature:     genai.Ptr(defaultTemperature),
		},
	}
}
