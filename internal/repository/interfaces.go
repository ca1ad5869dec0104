// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/clubster/internal/model"
)

var (
	// ErrClubAlreadyExists は同一マネージャーのクラブが既に存在する場合のエラー。
	ErrClubAlreadyExists = errors.New("club already exists for manager")
	// ErrClubNotFound は更新対象のクラブが存在しない場合のエラー。
	ErrClubNotFound = errors.New("club not found")
	// ErrStalePendingLink は再適用しようとした連携より新しい連携が既に保存されている場合のエラー。
	ErrStalePendingLink = errors.New("pending link is older than the current stripe link")
)

// ClubRepository はクラブデータの永続化インターフェース。
// クラブの正本は常にデータベースにあり、呼び出しごとに再取得する。
type ClubRepository interface {
	// FindByManagerID はマネージャーIDでクラブを取得する。見つからない場合はnilを返す。
	FindByManagerID(ctx context.Context, managerID string) (*model.Club, error)

	// Create はクラブを作成する。
	// 同一マネージャーのクラブが既に存在する場合はErrClubAlreadyExistsを返す。
	Create(ctx context.Context, club *model.Club) error

	// UpdateStripeAccount はマネージャーのクラブにStripeアカウントIDを保存し、
	// 連携状態をactiveにする。単一行UPDATEで、後勝ちとなる。
	// 対象クラブが存在しない場合はErrClubNotFoundを返す。
	UpdateStripeAccount(ctx context.Context, managerID, stripeAccountID string) error

	// ApplyPendingLink は永続化に失敗した連携を再適用する。
	// 連携発生時刻より後にクラブが連携済みへ更新されていればErrStalePendingLinkを返し、何も変更しない。
	// 同じアカウントIDの再適用は成功として扱う。
	ApplyPendingLink(ctx context.Context, link model.PendingLink) error
}
