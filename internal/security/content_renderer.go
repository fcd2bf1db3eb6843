// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentRenderer は利用者が投稿したMarkdownをHTMLに変換し、
// そのままページに埋め込んでも安全な形にサニタイズする。
// Markdown変換はgoldmark、サニタイズはbluemondayの許可リストポリシーで行う。
package security

import (
	"bytes"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/hitoshi/debatehub/internal/metrics"
)

// MaxRenderInputBytes はレンダリング対象とする入力の上限。超過分は切り捨てる。
const MaxRenderInputBytes = 1 << 20

// ContentRenderer はMarkdownを安全なHTMLに変換する機能のインターフェース。
type ContentRenderer interface {
	// Render はMarkdownを安全なHTMLに変換する。
	// 許可リスト外のタグはテキストを残して除去され、script/styleは内容ごと除去される。
	// 同一入力に対して常に同一出力を返す。I/Oは行わない。
	Render(markdown string) string
}

// contentRenderer はContentRendererの実装。
// goldmarkとbluemondayのポリシーはいずれも並行利用できる。
type contentRenderer struct {
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	metrics metrics.MetricsCollector
}

// NewContentRenderer はContentRendererの新しいインスタンスを生成する。
// collectorがnilの場合はレイテンシを記録しない。
func NewContentRenderer(collector metrics.MetricsCollector) *contentRenderer {
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	// 生のHTMLはここでは落とさず、後段のサニタイザーに判断させる
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	return &contentRenderer{
		md:      md,
		policy:  newContentPolicy(),
		metrics: collector,
	}
}

// newContentPolicy は投稿コンテンツ用の許可リストを構築する。
func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	// 基本の書式タグ
	p.AllowElements(
		"b", "i", "strong", "em", "code",
		"blockquote", "ul", "ol", "li",
		"abbr", "acronym",
	)
	p.AllowAttrs("title").OnElements("a", "abbr", "acronym")

	// Markdownが生成するブロック要素と表
	p.AllowElements(
		"p", "pre", "hr", "br",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	// リンクはhttp/https/mailtoと相対URLのみ。全リンクにnofollowを付与する
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)

	return p
}

// Render はMarkdownを安全なHTMLに変換する。
func (r *contentRenderer) Render(markdown string) string {
	start := time.Now()
	defer func() {
		r.metrics.RecordRenderLatency(time.Since(start))
	}()

	src := truncateUTF8(markdown, MaxRenderInputBytes)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		// 変換に失敗した場合は入力をテキストとしてサニタイズした結果を返す
		slog.Warn("markdown conversion failed", slog.String("error", err.Error()))
		return r.policy.Sanitize(src)
	}

	return r.policy.Sanitize(buf.String())
}

// truncateUTF8 は文字の途中で切らないようにsをmaxBytes以内に切り詰める。
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
