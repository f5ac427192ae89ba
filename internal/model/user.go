// Package model はドメインモデルを定義する。
package model

import "time"

// MaxEmergencyContacts はユーザーが登録できる緊急連絡先の上限数。
const MaxEmergencyContacts = 5

// User はサービスを利用する旅行者を表す。
// 検証フラグは外部の電話番号確認・本人書類審査の結果を保持する。
type User struct {
	ID               string
	Name             string
	Email            string
	Phone            string
	PasswordHash     string
	PhoneVerified    bool
	DocumentVerified bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsFullyVerified は電話番号と本人書類の両方が承認済みかを返す。
// SOS送信はこの条件を満たすユーザーにのみ許可される。
func (u *User) IsFullyVerified() bool {
	return u.PhoneVerified && u.DocumentVerified
}

// EmergencyContact はユーザーの緊急連絡先を表す。
// Positionは登録順で、通知順序を決める。
type EmergencyContact struct {
	ID           string
	UserID       string
	Name         string
	Phone        string
	Relationship string
	Priority     int
	Position     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Admin は管理コンソールのオペレーターを表す。
type Admin struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// UserStats は管理ダッシュボード用の集計値。
type UserStats struct {
	ActiveAlerts  int
	TotalUsers    int
	VerifiedUsers int
}
