package resource

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/security"
)

// 入力値の上限。
const (
	MaxNameLength     = 100
	MaxCategoryLength = 50
	MaxEmailLength    = 254
	MaxAge            = 150
	MaxQueryLength    = 100
	DefaultPageSize   = 10
	MaxPageSize       = 100
)

// ValidationError は入力値がルールを満たさない場合のエラー。
// ストアを変更する前に判定し、不正な値をデフォルト値に置き換えることはしない。
type ValidationError struct {
	Field  string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ListQuery は一覧取得の条件。
type ListQuery struct {
	Page  int
	Limit int
	Query string // 名前などに対する大文字小文字を区別しない部分一致
}

// ParseListQuery はクエリ文字列の値からListQueryを生成する。
// 空の値はデフォルト（page=1、limit=DefaultPageSize）を使い、
// 数値として解釈できない値や範囲外の値はValidationErrorを返す。
func ParseListQuery(page, limit, query string) (ListQuery, error) {
	q := ListQuery{Page: 1, Limit: DefaultPageSize, Query: strings.TrimSpace(query)}

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return ListQuery{}, invalid("page", "must be a positive integer")
		}
		q.Page = n
	}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxPageSize {
			return ListQuery{}, invalid("limit", fmt.Sprintf("must be an integer between 1 and %d", MaxPageSize))
		}
		q.Limit = n
	}

	if utf8.RuneCountInString(q.Query) > MaxQueryLength {
		return ListQuery{}, invalid("q", fmt.Sprintf("must be at most %d characters", MaxQueryLength))
	}

	return q, nil
}

// matchesQuery はいずれかのフィールドにqueryが部分一致するかを返す。queryは小文字化済みであること。
func matchesQuery(query string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// cleanText はサニタイズ後のテキストを検証する。
// タグだけの入力のようにサニタイズ後に空になる値は拒否する。
func cleanText(s security.TextSanitizer, field, raw string, maxLen int) (string, error) {
	v := s.Clean(raw)
	if v == "" {
		return "", invalid(field, "must not be empty")
	}
	if utf8.RuneCountInString(v) > maxLen {
		return "", invalid(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	return v, nil
}

// validateEmail はRFC 5322形式の単一アドレスかを検証する。表示名付きの形式は受け付けない。
func validateEmail(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" || len(v) > MaxEmailLength {
		return "", invalid("email", "must be a valid email address")
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return "", invalid("email", "must be a valid email address")
	}
	return v, nil
}

func validateAge(age int) error {
	if age < 0 || age > MaxAge {
		return invalid("age", fmt.Sprintf("must be between 0 and %d", MaxAge))
	}
	return nil
}

func validateRole(raw string) (model.Role, error) {
	role := model.Role(raw)
	if !role.Valid() {
		return "", invalid("role", "must be one of admin, user")
	}
	return role, nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return invalid("price", "must be a non-negative number")
	}
	return nil
}

func validateStock(stock int) error {
	if stock < 0 {
		return invalid("stock", "must be a non-negative integer")
	}
	return nil
}
