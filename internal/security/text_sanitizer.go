// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はリソースの名前やカテゴリなど、プレーンテキストとして扱う
// ユーザー入力からマークアップを取り除く。
// bluemondayのStrictPolicyで全タグを除去し、エンティティを元の文字に戻す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses はエスケープされたタグを剥がすための最大反復回数。
const maxSanitizePasses = 4

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Clean は全てのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Clean(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので複数のリクエストから共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean は全てのHTMLタグを除去する。
// "&lt;b&gt;" のようにエスケープされたタグも、復元後に再度除去されるまで繰り返す。
func (s *textSanitizer) Clean(raw string) string {
	out := strings.TrimSpace(raw)
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(out)))
		if next == out {
			return out
		}
		out = next
	}
	// 収束しない入力はタグ由来の文字を残さない
	return strings.NewReplacer("<", "", ">", "").Replace(out)
}
