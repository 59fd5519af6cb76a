package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/yoked/internal/models"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// TierRepository defines the interface for tier catalog data access
type TierRepository interface {
	List(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, error)
	GetByID(ctx context.Context, id string) (*models.SubscriptionTier, error)
	Create(ctx context.Context, t *models.SubscriptionTier) (*models.SubscriptionTier, error)
	Update(ctx context.Context, t *models.SubscriptionTier, expectedVersion *int) (*models.SubscriptionTier, error)
	Deactivate(ctx context.Context, id string) (*models.SubscriptionTier, error)
	Delete(ctx context.Context, id string) error
	CountReferences(ctx context.Context, id, name string) (int, error)
	CatalogVersion(ctx context.Context) (int64, error)
	BumpCatalogVersion(ctx context.Context) (int64, error)
}

// TierService manages the subscription tier catalog. Every mutation bumps
// the catalog version in the same transaction.
type TierService struct {
	repo        TierRepository
	tx          Transactor
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewTierService(repo TierRepository, tx Transactor, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *TierService {
	return &TierService{
		repo:        repo,
		tx:          tx,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// List returns the catalog together with the version it was read at.
func (s *TierService) List(ctx context.Context, includeInactive bool) ([]*models.SubscriptionTier, int64, error) {
	var (
		tiers   []*models.SubscriptionTier
		version int64
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if version, err = s.repo.CatalogVersion(ctx); err != nil {
			return err
		}
		tiers, err = s.repo.List(ctx, includeInactive)
		return err
	})
	if err != nil {
		s.logger.Error("failed to list tiers", slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}
	return tiers, version, nil
}

func (s *TierService) CatalogVersion(ctx context.Context) (int64, error) {
	v, err := s.repo.CatalogVersion(ctx)
	if err != nil {
		s.logger.Error("failed to read catalog version", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return v, nil
}

func (s *TierService) Get(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapErr("get tier", id, err)
	}
	return t, nil
}

func (s *TierService) Create(ctx context.Context, actorID string, req models.TierRequest) (*models.SubscriptionTier, error) {
	var created *models.SubscriptionTier
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t := &models.SubscriptionTier{}
		req.Apply(t)

		var err error
		if created, err = s.repo.Create(ctx, t); err != nil {
			return err
		}
		_, err = s.repo.BumpCatalogVersion(ctx)
		return err
	})
	if err != nil {
		return nil, s.mapErr("create tier", req.Name, err)
	}

	s.auditLogger.LogAdminAction(ctx, "tier_created", actorID, "", map[string]string{"tier_id": created.ID, "name": created.Name})
	return created, nil
}

// Update replaces a tier. With req.ExpectedVersion set a stale write fails
// with ErrVersionMismatch.
func (s *TierService) Update(ctx context.Context, actorID, id string, req models.TierRequest) (*models.SubscriptionTier, error) {
	var updated *models.SubscriptionTier
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		req.Apply(t)

		if updated, err = s.repo.Update(ctx, t, req.ExpectedVersion); err != nil {
			return err
		}
		_, err = s.repo.BumpCatalogVersion(ctx)
		return err
	})
	if err != nil {
		return nil, s.mapErr("update tier", id, err)
	}

	s.auditLogger.LogAdminAction(ctx, "tier_updated", actorID, "", map[string]string{"tier_id": id})
	return updated, nil
}

func (s *TierService) Deactivate(ctx context.Context, actorID, id string) (*models.SubscriptionTier, error) {
	var t *models.SubscriptionTier
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = s.repo.Deactivate(ctx, id); err != nil {
			return err
		}
		_, err = s.repo.BumpCatalogVersion(ctx)
		return err
	})
	if err != nil {
		return nil, s.mapErr("deactivate tier", id, err)
	}

	s.auditLogger.LogAdminAction(ctx, "tier_deactivated", actorID, "", map[string]string{"tier_id": id})
	return t, nil
}

// Delete removes a tier nobody references. Referenced tiers can only be
// deactivated.
func (s *TierService) Delete(ctx context.Context, actorID, id string) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		refs, err := s.repo.CountReferences(ctx, t.ID, t.Name)
		if err != nil {
			return err
		}
		if refs > 0 {
			return models.ErrTierInUse
		}

		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		_, err = s.repo.BumpCatalogVersion(ctx)
		return err
	})
	if err != nil {
		return s.mapErr("delete tier", id, err)
	}

	s.auditLogger.LogAdminAction(ctx, "tier_deleted", actorID, "", map[string]string{"tier_id": id})
	return nil
}

func (s *TierService) mapErr(op, ref string, err error) error {
	for _, sentinel := range []error{
		models.ErrNotFound, models.ErrConflict, models.ErrVersionMismatch, models.ErrTierInUse, models.ErrBadRequest,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	s.logger.Error("failed to "+op, slog.String("tier", ref), slog.Any("error", err))
	return models.ErrInternalServer
}
