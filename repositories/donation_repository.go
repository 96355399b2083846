package repositories

import (
	"context"
	"time"

	"github.com/Dosada05/campus-games/models"
)

// DonationRepository is an append-only ledger: there is deliberately no Update or Delete.
type DonationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, donation *models.Donation) error
	List(ctx context.Context, exec SQLExecutor) ([]models.Donation, error)
	TotalCents(ctx context.Context, exec SQLExecutor) (int64, error)
}

type sqlDonationRepository struct {
	dialect Dialect
}

func NewDonationRepository(dialect Dialect) DonationRepository {
	return &sqlDonationRepository{dialect: dialect}
}

func (r *sqlDonationRepository) Create(ctx context.Context, exec SQLExecutor, donation *models.Donation) error {
	donation.CreatedAt = fromMillis(toMillis(time.Now()))
	q := r.dialect.builder.Insert("donations").
		Columns("donor_name", "donor_type", "amount_cents", "recorded_by", "created_at").
		Values(donation.DonorName, string(donation.DonorType), donation.AmountCents, donation.RecordedBy, toMillis(donation.CreatedAt)).
		Suffix("RETURNING id")
	return scanRow(ctx, exec, q, &donation.ID)
}

func (r *sqlDonationRepository) List(ctx context.Context, exec SQLExecutor) ([]models.Donation, error) {
	q := r.dialect.builder.
		Select("id", "donor_name", "donor_type", "amount_cents", "recorded_by", "created_at").
		From("donations").
		OrderBy("created_at DESC", "id DESC")
	rows, err := queryRows(ctx, exec, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	donations := make([]models.Donation, 0)
	for rows.Next() {
		var (
			d         models.Donation
			donorType string
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.DonorName, &donorType, &d.AmountCents, &d.RecordedBy, &createdAt); err != nil {
			return nil, err
		}
		d.DonorType = models.DonorType(donorType)
		d.CreatedAt = fromMillis(createdAt)
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

func (r *sqlDonationRepository) TotalCents(ctx context.Context, exec SQLExecutor) (int64, error) {
	var total int64
	err := scanRow(ctx, exec, r.dialect.builder.Select("COALESCE(SUM(amount_cents), 0)").From("donations"), &total)
	return total, err
}
