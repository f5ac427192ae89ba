// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, alert, contact, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingLocation    = "MISSING_LOCATION"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidAlertType   = "INVALID_ALERT_TYPE"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeNotFullyVerified   = "NOT_FULLY_VERIFIED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeAlertNotFound      = "ALERT_NOT_FOUND"
	ErrCodeContactNotFound    = "CONTACT_NOT_FOUND"
	ErrCodeContactLimit       = "CONTACT_LIMIT"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewMissingLocationError は位置情報欠落エラーを生成する。
func NewMissingLocationError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingLocation,
		Message:  "緯度と経度は必須です。",
		Category: "validation",
		Action:   "端末の位置情報を有効にしてから再度送信してください。",
	}
}

// NewInvalidRequestError はリクエスト内容の不備を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidAlertTypeError は未知のアラート種別エラーを生成する。
func NewInvalidAlertTypeError(alertType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAlertType,
		Message:  fmt.Sprintf("無効なアラート種別です: %s", alertType),
		Category: "validation",
		Action:   "emergency、panic、medical、security のいずれかを指定してください。",
	}
}

// NewInvalidStatusError は無効なステータス指定エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "resolved または false_alarm を指定してください。",
	}
}

// NewInvalidTransitionError は終端状態からの遷移を拒否するエラーを生成する。
func NewInvalidTransitionError(from, to AlertStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("アラートは既に %s で終了しているため %s に変更できません。", from, to),
		Category: "alert",
		Action:   "アラートの現在の状態を確認してください。",
	}
}

// NewNotFullyVerifiedError は未検証ユーザーのSOS送信を拒否するエラーを生成する。
func NewNotFullyVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFullyVerified,
		Message:  "Only verified users can send SOS alerts",
		Category: "auth",
		Action:   "電話番号と本人確認書類の認証を完了してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAlertNotFoundError はアラートが見つからない場合のエラーを生成する。
func NewAlertNotFoundError(alertID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlertNotFound,
		Message:  fmt.Sprintf("指定されたアラートが見つかりません: %s", alertID),
		Category: "alert",
		Action:   "アラートIDを確認してください。",
	}
}

// NewContactNotFoundError は緊急連絡先が見つからない場合のエラーを生成する。
func NewContactNotFoundError(contactID string) *APIError {
	return &APIError{
		Code:     ErrCodeContactNotFound,
		Message:  fmt.Sprintf("指定された緊急連絡先が見つかりません: %s", contactID),
		Category: "contact",
		Action:   "連絡先IDを確認してください。",
	}
}

// NewContactLimitError は緊急連絡先の上限エラーを生成する。
func NewContactLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeContactLimit,
		Message:  fmt.Sprintf("緊急連絡先は最大%d件までです。", MaxEmergencyContacts),
		Category: "contact",
		Action:   "不要な連絡先を削除してから追加してください。",
	}
}

// NewPersistenceFailureError はアラート記録の保存失敗エラーを生成する。
func NewPersistenceFailureError() *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  "SOSアラートの記録に失敗しました。",
		Category: "system",
		Action:   "直ちに現地の緊急通報番号（112）へ電話してください。",
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
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "認証情報が正しくありません。",
		Category: "auth",
		Action:   "メールアドレス（またはユーザー名）とパスワードを確認してください。",
	}
}

// NewDuplicateUserError は既に登録済みのメールアドレスまたは電話番号のエラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "このメールアドレスまたは電話番号は既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}
