// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, club, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeMissingField        = "MISSING_FIELD"
	ErrCodeInvalidBody         = "INVALID_BODY"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeProviderError       = "PROVIDER_ERROR"
	ErrCodeMissingStripeUserID = "MISSING_STRIPE_USER_ID"
	ErrCodePersistenceFailed   = "PERSISTENCE_FAILED"
	ErrCodeClubNotFound        = "CLUB_NOT_FOUND"
	ErrCodeClubAlreadyExists   = "CLUB_ALREADY_EXISTS"
	ErrCodeInvalidClubName     = "INVALID_CLUB_NAME"
	ErrCodeCSRFFailed          = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError はロール不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作はマネージャーのみ実行できます。",
		Category: "auth",
		Action:   "マネージャーアカウントでログインしてください。",
	}
}

// NewMissingFieldError は必須フィールド欠落エラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("%s is required", field),
		Category: "validation",
		Action:   "必須項目を指定してください。",
	}
}

// NewInvalidBodyError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  "リクエストボディが不正です。",
		Category: "validation",
		Action:   "JSON形式で送信してください。",
	}
}

// NewInvalidStateError はOAuth stateの検証失敗エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "invalid or expired state parameter",
		Category: "validation",
		Action:   "Stripe連携をはじめからやり直してください。",
	}
}

// NewProviderError は決済プロバイダーが認可コードの交換を拒否した場合のエラーを生成する。
// メッセージにはプロバイダーのエラー内容をそのまま設定する。
func NewProviderError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  message,
		Category: "provider",
		Action:   "Stripe連携をはじめからやり直してください。",
	}
}

// NewMissingStripeUserIDError はトークン応答にアカウントIDが含まれない場合のエラーを生成する。
func NewMissingStripeUserIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingStripeUserID,
		Message:  "stripe_user_id missing from provider response",
		Category: "provider",
		Action:   "Stripe連携をはじめからやり直してください。",
	}
}

// NewPersistenceFailedError はプロバイダー連携後のクラブ更新失敗エラーを生成する。
func NewPersistenceFailedError() *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailed,
		Message:  "failed to save stripe account to club",
		Category: "system",
		Action:   "連携内容は自動的に再反映されます。しばらく待ってから連携状態を確認してください。",
	}
}

// NewClubNotFoundError はクラブ未登録エラーを生成する。
func NewClubNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeClubNotFound,
		Message:  "クラブが登録されていません。",
		Category: "club",
		Action:   "クラブ認証ページからクラブを登録してください。",
	}
}

// NewClubAlreadyExistsError はクラブ重複登録エラーを生成する。
func NewClubAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeClubAlreadyExists,
		Message:  "このアカウントには既にクラブが登録されています。",
		Category: "club",
		Action:   "登録済みのクラブ設定を編集してください。",
	}
}

// NewInvalidClubNameError はクラブ名の検証エラーを生成する。
func NewInvalidClubNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidClubName,
		Message:  fmt.Sprintf("無効なクラブ名です: %s", reason),
		Category: "validation",
		Action:   "1文字以上100文字以内のクラブ名を入力してください。",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
