package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/clubster/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresClubRepo はPostgreSQLを使用したクラブリポジトリ。
type PostgresClubRepo struct {
	db *sql.DB
}

// NewPostgresClubRepo はPostgresClubRepoを生成する。
func NewPostgresClubRepo(db *sql.DB) *PostgresClubRepo {
	return &PostgresClubRepo{db: db}
}

// FindByManagerID はマネージャーIDでクラブを取得する。見つからない場合はnilを返す。
func (r *PostgresClubRepo) FindByManagerID(ctx context.Context, managerID string) (*model.Club, error) {
	club := &model.Club{}
	var stripeAccountID sql.NullString
	var stripeStatus string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, manager_id, name, verified, stripe_account_id, stripe_status, created_at, updated_at
		 FROM clubs
		 WHERE manager_id = $1`,
		managerID,
	).Scan(
		&club.ID, &club.ManagerID, &club.Name, &club.Verified,
		&stripeAccountID, &stripeStatus, &club.CreatedAt, &club.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find club by manager ID: %w", err)
	}

	club.StripeAccountID = stripeAccountID.String
	club.StripeStatus = model.StripeStatus(stripeStatus)
	return club, nil
}

// Create はクラブを作成する。
func (r *PostgresClubRepo) Create(ctx context.Context, club *model.Club) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clubs (id, manager_id, name, verified, stripe_account_id, stripe_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		club.ID, club.ManagerID, club.Name, club.Verified,
		nullIfEmpty(club.StripeAccountID), string(club.StripeStatus),
		club.CreatedAt, club.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrClubAlreadyExists
		}
		return fmt.Errorf("failed to create club: %w", err)
	}
	return nil
}

// UpdateStripeAccount はクラブのStripeアカウントIDと連携状態を更新する。
func (r *PostgresClubRepo) UpdateStripeAccount(ctx context.Context, managerID, stripeAccountID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clubs
		 SET stripe_account_id = $2, stripe_status = $3, updated_at = now()
		 WHERE manager_id = $1`,
		managerID, stripeAccountID, string(model.StripeStatusActive),
	)
	if err != nil {
		return fmt.Errorf("failed to update stripe account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrClubNotFound
	}
	return nil
}

// ApplyPendingLink はPendingLinkを条件付きUPDATEで再適用する。
// 未連携、同一アカウント、またはlink.OccurredAt以前の更新であれば上書きする。
func (r *PostgresClubRepo) ApplyPendingLink(ctx context.Context, link model.PendingLink) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clubs
		 SET stripe_account_id = $2, stripe_status = $3, updated_at = now()
		 WHERE manager_id = $1
		   AND (stripe_status <> $3 OR stripe_account_id = $2 OR updated_at <= $4)`,
		link.ManagerID, link.StripeUserID, string(model.StripeStatusActive), link.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to apply pending link: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM clubs WHERE manager_id = $1)`, link.ManagerID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check club existence: %w", err)
	}
	if !exists {
		return ErrClubNotFound
	}
	return ErrStalePendingLink
}

// nullIfEmpty は空文字列をNULLとして扱う。
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ ClubRepository = (*PostgresClubRepo)(nil)
