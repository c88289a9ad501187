package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/marketcart/api/internal/domain"
)

func TestReviewServiceSubmitRequiresPermission(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	h, err := newHarness(store)
	if err != nil {
		t.Fatalf("newHarness: %v", err)
	}

	_, err = h.reviews.SubmitReview(ctx, buyer, SubmitReviewCommand{ProductID: "prod-1", Rating: 5})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden before delivery, got %v", err)
	}
	if _, err := h.reviews.SubmitReview(ctx, buyer, SubmitReviewCommand{ProductID: "prod-x", Rating: 5}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
	for _, rating := range []int{0, 6} {
		if _, err := h.reviews.SubmitReview(ctx, buyer, SubmitReviewCommand{ProductID: "prod-1", Rating: rating}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for rating %d, got %v", rating, err)
		}
	}
}

func TestReviewServiceSubmitUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.permissions["prod-1"] = []string{buyer.ID}
	created := testNow.Add(-48 * time.Hour)
	store.reviews["prod-1_"+buyer.ID] = domain.Review{ProductID: "prod-1", BuyerID: buyer.ID, Rating: 2, CreatedAt: created, UpdatedAt: created}
	h, err := newHarness(store)
	if err != nil {
		t.Fatalf("newHarness: %v", err)
	}

	review, err := h.reviews.SubmitReview(ctx, buyer, SubmitReviewCommand{
		ProductID: "prod-1",
		Rating:    4,
		Comment:   "  Great <script>alert(1)</script>mug <b>indeed</b> Café ",
	})
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if review.Rating != 4 || !review.CreatedAt.Equal(created) || !review.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected review %+v", review)
	}
	if review.Comment != "Great mug indeed Café" {
		t.Fatalf("expected sanitised NFC comment, got %q", review.Comment)
	}
	if len(store.reviews) != 1 {
		t.Fatalf("expected one review per buyer and product, got %d", len(store.reviews))
	}
}

func TestReviewServiceIsEligibleValidates(t *testing.T) {
	store := seededStore()
	h, err := newHarness(store)
	if err != nil {
		t.Fatalf("newHarness: %v", err)
	}
	if _, err := h.reviews.IsEligible(context.Background(), "", "prod-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReviewServiceLogsStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.permissions["prod-1"] = []string{buyer.ID}
	store.fail["reviews.Save"] = errors.New("firestore unavailable")

	var events []string
	var cause any
	svc, err := NewReviewService(ReviewServiceDeps{
		Products:    memoryProducts{store},
		Permissions: memoryPermissions{store},
		Reviews:     memoryReviews{store},
		Clock:       func() time.Time { return testNow },
		Logger: func(_ context.Context, event string, fields map[string]any) {
			events = append(events, event)
			cause = fields["error"]
		},
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	_, err = svc.SubmitReview(ctx, buyer, SubmitReviewCommand{ProductID: "prod-1", Rating: 4})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(events) != 1 || events[0] != "review.submit.error" {
		t.Fatalf("expected one failure log, got %v", events)
	}
	if causeErr, ok := cause.(error); !ok || causeErr.Error() != "firestore unavailable" {
		t.Fatalf("expected the storage cause to be logged, got %v", cause)
	}
}
