package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"log"
	"net/http"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
)

var (
	// ErrUnsupportedImageType - JPEG/PNG/WebP 외의 포맷
	ErrUnsupportedImageType = errors.New("unsupported image type")
	// ErrCorruptImage - 시그니처는 맞지만 디코딩 실패
	ErrCorruptImage = errors.New("image data could not be decoded")
)

var extensions = map[string]string{
	MIMEJPEG: ".jpg",
	MIMEPNG:  ".png",
	MIMEWebP: ".webp",
}

// IsSupportedImageType - 허용 MIME 타입인지
func IsSupportedImageType(mimeType string) bool {
	_, ok := extensions[mimeType]
	return ok
}

// ExtensionFor - MIME 타입에 맞는 파일 확장자
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// DetectImageType - 바이트 내용으로 포맷 판별 후 실제로 디코딩 가능한지 확인
// 선언된 Content-Type은 신뢰하지 않는다
func DetectImageType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrCorruptImage
	}

	sniffed := http.DetectContentType(data)
	if !IsSupportedImageType(sniffed) {
		return sniffed, fmt.Errorf("%w: %s", ErrUnsupportedImageType, sniffed)
	}

	if sniffed == MIMEWebP {
		if _, err := webp.Decode(bytes.NewReader(data), &decoder.Options{}); err != nil {
			return sniffed, fmt.Errorf("%w: %v", ErrCorruptImage, err)
		}
		return sniffed, nil
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return sniffed, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return sniffed, nil
}

// ConvertToWebP - JPEG/PNG/WebP 바이너리를 손실 WebP로 변환
func ConvertToWebP(data []byte, mimeType string, quality float32) ([]byte, error) {
	log.Printf("🔄 Converting %s to WebP (quality: %.1f)", mimeType, quality)

	var (
		img image.Image
		err error
	)
	if mimeType == MIMEWebP {
		img, err = webp.Decode(bytes.NewReader(data), &decoder.Options{})
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", mimeType, err)
	}

	// WebP 인코딩
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("✅ %s converted to WebP: %d bytes → %d bytes (%.1f%% reduction)",
		mimeType, len(data), len(webpData),
		float64(len(data)-len(webpData))/float64(len(data))*100)

	return webpData, nil
}

// OptimizeImage - threshold 초과 이미지만 WebP로 재인코딩, 더 작아질 때만 교체
// 실패하면 원본 그대로 반환
func OptimizeImage(data []byte, mimeType string, threshold int64, quality float32) ([]byte, string) {
	if threshold <= 0 || int64(len(data)) <= threshold {
		return data, mimeType
	}

	log.Printf("🗜️  Image exceeds %d bytes (%d), compressing...", threshold, len(data))
	webpData, err := ConvertToWebP(data, mimeType, quality)
	if err != nil {
		log.Printf("⚠️  WebP conversion failed, using original: %v", err)
		return data, mimeType
	}
	if len(webpData) >= len(data) {
		log.Printf("ℹ️  WebP output not smaller, keeping original %s", mimeType)
		return data, mimeType
	}
	return webpData, MIMEWebP
}
