// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーのロールを表す。
type Role string

const (
	// RoleManager はクラブを運営するマネージャー。
	RoleManager Role = "manager"
	// RoleUser はイベントを探してチケットを予約する一般ユーザー。
	RoleUser Role = "user"
)

// ParseRole は文字列をRoleに変換する。
// 未知の値や空文字列はRoleUserとして扱う。
func ParseRole(s string) Role {
	if Role(s) == RoleManager {
		return RoleManager
	}
	return RoleUser
}

// Session は認証サービスが発行したログインセッションを表す。
// アプリケーションからは読み取り専用。
type Session struct {
	UserID    string
	Role      Role
	ExpiresAt time.Time
}

// IsManager はセッションのロールがマネージャーかどうかを返す。
func (s *Session) IsManager() bool {
	return s != nil && s.Role == RoleManager
}
