// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Fieldsはフィールド単位のエラー（入力検証・一意制約違反）を保持する。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, debate, admin, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド名 -> メッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountBlocked     = "ACCOUNT_BLOCKED"
	ErrCodeEmailUnconfirmed   = "EMAIL_UNCONFIRMED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeOpinionNotFound    = "OPINION_NOT_FOUND"
	ErrCodeArgumentNotFound   = "ARGUMENT_NOT_FOUND"
	ErrCodeSelfActionDenied   = "SELF_ACTION_DENIED"
	ErrCodeUnknownAction      = "UNKNOWN_ACTION"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目のエラーを確認して再入力してください。",
		Fields:   fields,
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの不一致とパスワードの不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewAccountBlockedError はアカウント停止エラーを生成する。
func NewAccountBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountBlocked,
		Message:  "このアカウントは停止されています。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewEmailUnconfirmedError はメールアドレス未確認エラーを生成する。
func NewEmailUnconfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailUnconfirmed,
		Message:  "メールアドレスの確認が完了していません。",
		Category: "auth",
		Action:   "確認メールのリンクを開いてから再度ログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// リソースの存在有無は明かさない。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "",
	}
}

// NewConflictError は一意制約違反エラーを生成する。
func NewConflictError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "既に使用されている値があります。",
		Category: "validation",
		Action:   "別の値を入力してください。",
		Fields:   fields,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "admin",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewOpinionNotFoundError は意見が見つからない場合のエラーを生成する。
func NewOpinionNotFoundError(opinionID string) *APIError {
	return &APIError{
		Code:     ErrCodeOpinionNotFound,
		Message:  fmt.Sprintf("指定された意見が見つかりません: %s", opinionID),
		Category: "debate",
		Action:   "意見IDを確認してください。",
	}
}

// NewArgumentNotFoundError は主張が見つからない場合のエラーを生成する。
func NewArgumentNotFoundError(argumentID string) *APIError {
	return &APIError{
		Code:     ErrCodeArgumentNotFound,
		Message:  fmt.Sprintf("指定された主張が見つかりません: %s", argumentID),
		Category: "debate",
		Action:   "主張IDを確認してください。",
	}
}

// NewSelfActionDeniedError は自分自身の停止・降格を試みた場合のエラーを生成する。
func NewSelfActionDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfActionDenied,
		Message:  "自分自身を停止または降格することはできません。",
		Category: "admin",
		Action:   "別の管理者に依頼してください。",
	}
}

// NewUnknownActionError は未定義の管理操作エラーを生成する。
func NewUnknownActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownAction,
		Message:  fmt.Sprintf("未定義の操作です: %s", action),
		Category: "admin",
		Action:   "操作には promote、demote、block、unblock のいずれかを指定してください。",
	}
}
