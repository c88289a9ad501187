package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketcart/api/internal/platform/auth"
	"github.com/marketcart/api/internal/services"
)

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes review eligibility and submission for buyers.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes registers the /products/{productID}/reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/{productID}/reviews/eligibility", h.eligibility)
	r.Put("/{productID}/reviews", h.submitReview)
}

type submitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type eligibilityResponse struct {
	ProductID string `json:"productId"`
	Eligible  bool   `json:"eligible"`
}

type reviewPayload struct {
	ProductID string `json:"productId"`
	BuyerID   string `json:"buyerId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

func (h *ReviewHandlers) eligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}

	eligible, err := h.reviews.IsEligible(ctx, actor.ID, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, eligibilityResponse{ProductID: productID, Eligible: eligible})
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	var req submitReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, false, &req) {
		return
	}

	review, err := h.reviews.SubmitReview(ctx, actor, services.SubmitReviewCommand{
		ProductID: productID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reviewResponse{Review: reviewPayload{
		ProductID: review.ProductID,
		BuyerID:   review.BuyerID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: formatTime(review.CreatedAt),
		UpdatedAt: formatTime(review.UpdatedAt),
	}})
}
