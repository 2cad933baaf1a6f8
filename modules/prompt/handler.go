package prompt

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"promptoon-server/modules/common/apperr"
	"promptoon-server/modules/common/metrics"
	"promptoon-server/modules/common/utils"
)

// ResultRenderer - format=html 요청의 서버 렌더링
type ResultRenderer interface {
	RenderResult(w io.Writer, resp *GenerateResponse) error
}

type Handler struct {
	service        *Service
	renderer       ResultRenderer
	maxUploadBytes int64
}

func NewHandler(service *Service, renderer ResultRenderer, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		renderer:       renderer,
		maxUploadBytes: maxUploadBytes,
	}
}

// HandleGenerate - POST /generate_prompt
// multipart "image" 필드 필수, "model"/"format" 선택 (format은 쿼리로도 가능)
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	form, err := ReadUpload(w, r, h.maxUploadBytes)
	if err != nil {
		log.Printf("❌ [Prompt] Upload rejected: %v", err)
		h.writeError(w, form.Format, err)
		return
	}

	clientID := utils.ClientIP(r)
	log.Printf("🎨 [Prompt] Processing upload: id=%s, file=%s, type=%s, size=%d, client=%s",
		form.Image.ID, form.Image.Filename, form.Image.MIMEType, form.Image.Size, clientID)

	resp, err := h.service.Generate(r.Context(), &GenerateRequest{
		Image:    form.Image,
		Model:    form.Model,
		ClientID: clientID,
	})
	if err != nil {
		log.Printf("❌ [Prompt] Generation failed for %s: %v", form.Image.ID, err)
		h.writeError(w, form.Format, err)
		return
	}

	metrics.GenerationTotal.WithLabelValues("OK").Inc()
	log.Printf("✅ [Prompt] Response sent: id=%s, model=%s", resp.UUID, resp.Model)

	if form.Format == "html" && h.renderer != nil {
		h.writeHTML(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth - GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "promptoon-server",
	})
}

func (h *Handler) writeError(w http.ResponseWriter, format string, err error) {
	appErr := apperr.As(err)
	metrics.GenerationTotal.WithLabelValues(string(appErr.Code)).Inc()

	resp := ErrorResponse(appErr)
	if format == "html" && h.renderer != nil {
		h.writeHTML(w, appErr.HTTPStatus, resp)
		return
	}
	writeJSON(w, appErr.HTTPStatus, resp)
}

// ErrorResponse - AppError → 실패 응답
func ErrorResponse(appErr *apperr.AppError) *GenerateResponse {
	return &GenerateResponse{
		Success:      false,
		ErrorCode:    string(appErr.Code),
		ErrorMessage: appErr.Message,
		Details:      appErr.Detail,
	}
}

func (h *Handler) writeHTML(w http.ResponseWriter, status int, resp *GenerateResponse) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.renderer.RenderResult(w, resp); err != nil {
		log.Printf("❌ [Prompt] Failed to render result: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ [Prompt] Failed to encode response: %v", err)
	}
}
