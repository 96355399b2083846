package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
)

type DonationService interface {
	RecordDonation(ctx context.Context, exec repositories.SQLExecutor, recorder models.Principal, input DonationInput) (*models.Donation, error)
	ListDonations(ctx context.Context, exec repositories.SQLExecutor) (*models.DonationLedger, error)
}

type DonationInput struct {
	DonorName   string           `json:"donor_name"`
	DonorType   models.DonorType `json:"donor_type"`
	AmountCents int64            `json:"amount_cents"`
}

type donationService struct {
	donationRepo repositories.DonationRepository
}

func NewDonationService(donationRepo repositories.DonationRepository) DonationService {
	return &donationService{donationRepo: donationRepo}
}

func (s *donationService) RecordDonation(ctx context.Context, exec repositories.SQLExecutor, recorder models.Principal, input DonationInput) (*models.Donation, error) {
	name := strings.TrimSpace(input.DonorName)
	if name == "" {
		return nil, validationError("donor name is required")
	}
	donorType := models.DonorType(strings.ToLower(strings.TrimSpace(string(input.DonorType))))
	if !donorType.Valid() {
		return nil, validationError("donor type must be one of individual, organization, alumni")
	}
	if input.AmountCents <= 0 {
		return nil, validationError("donation amount must be positive")
	}

	donation := &models.Donation{
		DonorName:   name,
		DonorType:   donorType,
		AmountCents: input.AmountCents,
		RecordedBy:  recorder.UserID,
	}
	if err := s.donationRepo.Create(ctx, exec, donation); err != nil {
		return nil, fmt.Errorf("failed to record donation: %w", err)
	}
	return donation, nil
}

func (s *donationService) ListDonations(ctx context.Context, exec repositories.SQLExecutor) (*models.DonationLedger, error) {
	donations, err := s.donationRepo.List(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	total, err := s.donationRepo.TotalCents(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to sum donations: %w", err)
	}
	return &models.DonationLedger{Donations: donations, TotalCents: total}, nil
}
