// Package model はドメインモデルを定義する。
package model

import "time"

// Club はマネージャーが運営するクラブ（会場）を表す。
// 1人のマネージャーにつき最大1件。
type Club struct {
	ID              string
	ManagerID       string
	Name            string
	Verified        bool
	StripeAccountID string // 未連携の場合は空文字列
	StripeStatus    StripeStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StripeStatus はStripe Connectアカウントの連携状態を表す。
type StripeStatus string

const (
	// StripeStatusNone は未連携状態。
	StripeStatusNone StripeStatus = "none"
	// StripeStatusActive は連携済み状態。
	StripeStatusActive StripeStatus = "active"
)

// IsStripeLinked はStripeアカウントが連携済みかどうかを返す。
func (c *Club) IsStripeLinked() bool {
	return c.StripeStatus == StripeStatusActive && c.StripeAccountID != ""
}
