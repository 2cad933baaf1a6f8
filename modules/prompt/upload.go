package prompt

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"promptoon-server/modules/common/apperr"
	"promptoon-server/modules/common/utils"
)

const (
	imageField = "image"
	// multipart 헤더와 작은 폼 필드용 여유분
	formOverhead   = 64 * 1024
	maxFieldLength = 256
)

// ReadUpload - multipart 요청에서 이미지와 폼 값을 읽고 검증
// 크기/형식 검증에 실패하면 모델 호출 전에 AppError 반환
// 에러가 나도 그때까지 읽은 폼 값(format 등)은 form에 담아 돌려준다
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*UploadForm, error) {
	form := &UploadForm{Format: r.URL.Query().Get("format")}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return form, apperr.New(apperr.CodeInvalidRequest, "request must be multipart/form-data")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		return form, apperr.Wrap(err, apperr.CodeInvalidRequest, "invalid multipart body")
	}

	var (
		imageSeen bool
		imageErr  error
	)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return form, bodyError(err, maxBytes)
		}

		switch part.FormName() {
		case imageField:
			if imageSeen {
				part.Close()
				return form, apperr.New(apperr.CodeInvalidRequest, "only one image per request is allowed")
			}
			imageSeen = true
			// 이미지 검증 실패는 뒤따르는 format 필드를 마저 읽은 뒤 반환
			form.Image, imageErr = readImagePart(part.FileName(), part.Header.Get("Content-Type"), part, maxBytes)
		case "model":
			form.Model, err = readField(part)
		case "format":
			form.Format, err = readField(part)
		default:
			// 모르는 필드는 버린다
			_, err = io.Copy(io.Discard, part)
		}
		part.Close()
		if err != nil {
			return form, bodyError(err, maxBytes)
		}
	}

	if imageErr != nil {
		return form, imageErr
	}
	if form.Image == nil {
		return form, apperr.New(apperr.CodeInvalidRequest, "no image uploaded")
	}
	return form, nil
}

// readImagePart - limit+1 바이트까지만 읽어서 초과 여부 판단
func readImagePart(filename, declared string, r io.Reader, maxBytes int64) (*UploadedImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, bodyError(err, maxBytes)
	}
	if int64(len(data)) > maxBytes {
		log.Printf("🚫 [Upload] %s exceeds %d bytes", filename, maxBytes)
		return nil, tooLarge(maxBytes)
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "uploaded image is empty")
	}

	mimeType, err := utils.DetectImageType(data)
	if err != nil {
		log.Printf("🚫 [Upload] Rejected %s (declared %s): %v", filename, declared, err)
		if errors.Is(err, utils.ErrUnsupportedImageType) {
			return nil, apperr.Newf(apperr.CodeInvalidFileType, "unsupported image type %s, only JPEG, PNG and WebP are accepted", mimeType)
		}
		return nil, apperr.Wrap(err, apperr.CodeInvalidFileType, "image could not be decoded")
	}

	return &UploadedImage{
		ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
		Filename:     filename,
		DeclaredType: declared,
		MIMEType:     mimeType,
		Data:         data,
		Size:         int64(len(data)),
	}, nil
}

func readField(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFieldLength+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldLength {
		return "", apperr.New(apperr.CodeInvalidRequest, "form field is too long")
	}
	return strings.TrimSpace(string(data)), nil
}

// bodyError - MaxBytesReader 초과는 FILE_TOO_LARGE, 나머지는 INVALID_REQUEST
func bodyError(err error, maxBytes int64) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return tooLarge(maxBytes)
	}
	return apperr.Wrap(err, apperr.CodeInvalidRequest, "failed to read request body")
}

func tooLarge(maxBytes int64) *apperr.AppError {
	return apperr.New(apperr.CodeFileTooLarge, fmt.Sprintf("image exceeds the %.0fMB limit", float64(maxBytes)/(1024*1024)))
}
