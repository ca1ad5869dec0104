package model

import "time"

// PendingLink はプロバイダー側で連携が成立したものの、
// クラブへの永続化に失敗したStripeアカウント連携を表す。
// 再調整ワーカーがキュー経由で受け取り、冪等に再適用する。
type PendingLink struct {
	ManagerID    string    `json:"manager_id"`
	StripeUserID string    `json:"stripe_user_id"`
	Attempt      int       `json:"attempt"`
	OccurredAt   time.Time `json:"occurred_at"`
}
