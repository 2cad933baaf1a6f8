// Package apperr - 클라이언트에 그대로 내려가는 구조화된 에러
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code - 응답의 errorCode 값
type Code string

const (
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeInvalidFileType   Code = "INVALID_FILE_TYPE"
	CodeFileTooLarge      Code = "FILE_TOO_LARGE"
	CodeNetworkFailure    Code = "NETWORK_FAILURE"
	CodeUpstreamError     Code = "UPSTREAM_ERROR"
	CodeMalformedResponse Code = "MALFORMED_RESPONSE"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeServiceBusy       Code = "SERVICE_BUSY"
	CodeInternalError     Code = "INTERNAL_ERROR"
)

// AppError - 코드 + 사람이 읽을 수 있는 메시지
type AppError struct {
	Code       Code   `json:"errorCode"`
	Message    string `json:"errorMessage"`
	Detail     string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail - 상세 정보를 붙인 복사본 반환
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// New - 새 에러 생성
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf - 포맷 메시지 버전
func Newf(code Code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap - 원인 에러를 감싸서 생성
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// As - 체인에서 AppError를 찾고, 없으면 INTERNAL_ERROR로 감싼다
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal server error")
}

// IsCode - err 체인에 해당 코드의 AppError가 있는지
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeInvalidFileType:
		return http.StatusUnsupportedMediaType
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeNetworkFailure, CodeUpstreamError, CodeMalformedResponse:
		return http.StatusBadGateway
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
