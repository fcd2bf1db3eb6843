package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Stance は議論の立場（賛成/反対）を表す閉じた列挙型。
// ゼロ値は無効な立場であり、永続化・JSON境界では拒否される。
type Stance int

const (
	StanceFor Stance = iota + 1
	StanceAgainst
)

// ParseStance は文字列表現からStanceを生成する。
// "for" と "against" 以外はエラーを返す。
func ParseStance(s string) (Stance, error) {
	switch s {
	case "for":
		return StanceFor, nil
	case "against":
		return StanceAgainst, nil
	default:
		return 0, fmt.Errorf("invalid stance: %q", s)
	}
}

// String は永続化に使う固定の文字列表現を返す。
func (s Stance) String() string {
	switch s {
	case StanceFor:
		return "for"
	case StanceAgainst:
		return "against"
	default:
		return fmt.Sprintf("Stance(%d)", int(s))
	}
}

// Valid は定義済みの立場かどうかを返す。
func (s Stance) Valid() bool {
	return s == StanceFor || s == StanceAgainst
}

// Value はdriver.Valuerを実装する。無効な値は書き込まない。
func (s Stance) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stance: %d", int(s))
	}
	return s.String(), nil
}

// Scan はsql.Scannerを実装する。DBから読んだ未知の値は拒否する。
func (s *Stance) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported stance type: %T", src)
	}
	parsed, err := ParseStance(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalJSON は立場を "for" / "against" として出力する。
func (s Stance) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stance: %d", int(s))
	}
	return json.Marshal(s.String())
}

// Opinion は議論のルートとなる意見を表す。
// Contentはユーザーが入力したMarkdownのまま保持する。
type Opinion struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
	UserID    string
}

// Argument は意見に対する賛成/反対の主張を表す。
// StanceとOpinionIDは作成後に変更されない。
type Argument struct {
	ID        string
	Content   string
	Stance    Stance
	CreatedAt time.Time
	UserID    string
	OpinionID string
}

// Reasoning は主張を補強する理由を表す。
type Reasoning struct {
	ID         string
	Content    string
	CreatedAt  time.Time
	UserID     string
	ArgumentID string
}

// OpinionWithAuthor は一覧表示用に投稿者名を結合した意見。
type OpinionWithAuthor struct {
	Opinion
	AuthorName string
}

// ArgumentWithAuthor は投稿者名を結合した主張。
type ArgumentWithAuthor struct {
	Argument
	AuthorName string
}

// ReasoningWithAuthor は投稿者名を結合した理由。
type ReasoningWithAuthor struct {
	Reasoning
	AuthorName string
}
