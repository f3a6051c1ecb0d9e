package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/middleware"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/resource"
)

// maxRequestBodyBytes はリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// dataEnvelope は成功レスポンスの統一フォーマット。
type dataEnvelope struct {
	Data any `json:"data"`
}

// writeData は {"data": ...} 形式でレスポンスを書き込む。
func writeData(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(dataEnvelope{Data: data}); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// resourceNameはNotFoundのメッセージに使う、リクエストで指定されたリソース種別。
func handleServiceError(w http.ResponseWriter, r *http.Request, resourceName string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var validationErr *resource.ValidationError
	if errors.As(err, &validationErr) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationErr.Field, validationErr.Reason))
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(resourceName))
		return
	case errors.Is(err, auth.ErrForbidden):
		slog.WarnContext(r.Context(), "authorization failed",
			slog.String("identity", middleware.IdentityFromContext(r.Context()).Identity),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		middleware.WriteForbidden(w)
		return
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrMalformed),
		errors.Is(err, auth.ErrBadSignature), errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrInvalidCredentials):
		middleware.WriteUnauthorized(w)
		return
	}

	// それ以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorの種別からHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Kind {
	case model.ErrKindUnauthorized:
		return http.StatusUnauthorized
	case model.ErrKindForbidden:
		return http.StatusForbidden
	case model.ErrKindRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrKindNotFound:
		return http.StatusNotFound
	case model.ErrKindValidation, model.ErrKindInvalidRequest:
		return http.StatusBadRequest
	case model.ErrKindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディを1つのJSONオブジェクトとしてdstにデコードする。
// 未知のフィールド、型の不一致、末尾の余分なデータはエラーにする。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// writeDecodeError はdecodeJSONのエラーをレスポンスに変換する。
// 型の不一致はフィールド名付きのバリデーションエラー、それ以外は解析失敗として扱う。
func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(typeErr.Field, fmt.Sprintf("must be of type %s", typeErr.Type)))
		return
	}
	writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
}

// parseID はURLパラメータのidを正の整数として解釈する。
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, &resource.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

// pageResponse は一覧取得のレスポンス。
type pageResponse[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// toPageResponse はストアのページをレスポンス型に変換する。
func toPageResponse[E, T any](page *repository.Page[E], convert func(E) T) pageResponse[T] {
	items := make([]T, len(page.Items))
	for i, item := range page.Items {
		items[i] = convert(item)
	}
	return pageResponse[T]{
		Items:      items,
		Page:       page.Page,
		Limit:      page.PageSize,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	}
}
