// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Emailは小文字に正規化された値のみを保持する。
// PasswordHashはPasswordVaultが生成したエンコード済みハッシュで、平文は保持しない。
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Confirmed    bool
	IsAdmin      bool
	IsBlocked    bool
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Rememberが真の場合は長期間有効なセッションとして発行されている。
type Session struct {
	ID        string
	UserID    string
	Remember  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserAction は管理者がユーザーに対して実行できる操作を表す。
type UserAction string

const (
	UserActionPromote UserAction = "promote"
	UserActionDemote  UserAction = "demote"
	UserActionBlock   UserAction = "block"
	UserActionUnblock UserAction = "unblock"
)

// Valid は定義済みの操作かどうかを返す。
func (a UserAction) Valid() bool {
	switch a {
	case UserActionPromote, UserActionDemote, UserActionBlock, UserActionUnblock:
		return true
	default:
		return false
	}
}
