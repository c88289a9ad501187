package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/repositories"
)

const maxReviewCommentRunes = 2000

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Products    repositories.ProductRepository
	Permissions repositories.ReviewPermissionRepository
	Reviews     repositories.ReviewRepository
	Clock       func() time.Time
	Logger      Logger
}

type reviewService struct {
	products    repositories.ProductRepository
	permissions repositories.ReviewPermissionRepository
	reviews     repositories.ReviewRepository
	policy      *bluemonday.Policy
	clock       func() time.Time
	logger      Logger
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("review service: product repository is required")
	case deps.Permissions == nil:
		return nil, errors.New("review service: review permission repository is required")
	case deps.Reviews == nil:
		return nil, errors.New("review service: review repository is required")
	}
	return &reviewService{
		products:    deps.Products,
		permissions: deps.Permissions,
		reviews:     deps.Reviews,
		policy:      bluemonday.StrictPolicy(),
		clock:       defaultClock(deps.Clock),
		logger:      defaultLogger(deps.Logger),
	}, nil
}

func (s *reviewService) IsEligible(ctx context.Context, buyerID, productID string) (bool, error) {
	buyerID = strings.TrimSpace(buyerID)
	productID = strings.TrimSpace(productID)
	if buyerID == "" || productID == "" {
		return false, fmt.Errorf("%w: buyer and product are required", ErrValidation)
	}
	granted, err := s.permissions.IsGranted(ctx, productID, buyerID)
	if err != nil {
		return false, s.classify(ctx, "review.eligibility.error", err, productID, buyerID)
	}
	return granted, nil
}

// SubmitReview creates the actor's review or replaces it in place, keeping the first creation time.
func (s *reviewService) SubmitReview(ctx context.Context, actor domain.Actor, cmd SubmitReviewCommand) (domain.Review, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.Review{}, fmt.Errorf("%w: authenticated buyer is required", ErrForbidden)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.Review{}, fmt.Errorf("%w: product is required", ErrValidation)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return domain.Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	comment := s.cleanComment(cmd.Comment)
	if utf8.RuneCountInString(comment) > maxReviewCommentRunes {
		return domain.Review{}, fmt.Errorf("%w: comment exceeds %d characters", ErrValidation, maxReviewCommentRunes)
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return domain.Review{}, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return domain.Review{}, s.classify(ctx, "review.submit.error", err, productID, actor.ID)
	}
	eligible, err := s.IsEligible(ctx, actor.ID, productID)
	if err != nil {
		return domain.Review{}, err
	}
	if !eligible {
		return domain.Review{}, fmt.Errorf("%w: buyer has not received product %s", ErrForbidden, productID)
	}

	now := s.clock()
	review := domain.Review{
		ProductID: productID,
		BuyerID:   actor.ID,
		Rating:    cmd.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	existing, err := s.reviews.Find(ctx, productID, actor.ID)
	switch {
	case err == nil:
		review.CreatedAt = existing.CreatedAt
	case !isRepoNotFound(err):
		return domain.Review{}, s.classify(ctx, "review.submit.error", err, productID, actor.ID)
	}
	if err := s.reviews.Save(ctx, review); err != nil {
		return domain.Review{}, s.classify(ctx, "review.submit.error", err, productID, actor.ID)
	}
	s.logger(ctx, "review.saved", map[string]any{
		"productId": productID,
		"buyerId":   actor.ID,
		"rating":    review.Rating,
		"updated":   !review.CreatedAt.Equal(now),
	})
	return review, nil
}

// classify maps a repository failure and logs the cause when it surfaces as ErrInternal.
func (s *reviewService) classify(ctx context.Context, event string, err error, productID, buyerID string) error {
	mapped := mapRepositoryError(err)
	if errors.Is(mapped, ErrInternal) {
		s.logger(ctx, event, map[string]any{
			"productId": productID,
			"buyerId":   buyerID,
			"error":     err,
		})
	}
	return mapped
}

func (s *reviewService) cleanComment(raw string) string {
	return strings.TrimSpace(norm.NFC.String(s.policy.Sanitize(raw)))
}
