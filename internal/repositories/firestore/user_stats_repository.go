package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const usersCollection = "users"

// UserStatsRepository maintains the order counters stored on the user document.
type UserStatsRepository struct {
	base *pfirestore.BaseRepository[userStatsDocument]
}

// NewUserStatsRepository constructs a Firestore-backed user counter repository.
func NewUserStatsRepository(provider *pfirestore.Provider) (*UserStatsRepository, error) {
	if provider == nil {
		return nil, errors.New("user stats repository requires firestore provider")
	}
	return &UserStatsRepository{
		base: pfirestore.NewBaseRepository[userStatsDocument](provider, usersCollection, nil, nil),
	}, nil
}

// Increment merges server-side increments for the non-zero counters of delta.
func (r *UserStatsRepository) Increment(ctx context.Context, userID string, delta repositories.UserStatsDelta) error {
	fields := map[string]any{}
	if delta.TotalBuy != 0 {
		fields["totalBuy"] = firestore.Increment(delta.TotalBuy)
	}
	if delta.TotalCancel != 0 {
		fields["totalCancel"] = firestore.Increment(delta.TotalCancel)
	}
	if delta.TotalOrderReject != 0 {
		fields["totalOrderReject"] = firestore.Increment(delta.TotalOrderReject)
	}
	if len(fields) == 0 {
		return nil
	}
	return r.base.SetFields(ctx, strings.TrimSpace(userID), fields)
}

func (r *UserStatsRepository) Get(ctx context.Context, userID string) (domain.UserStats, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.UserStats{}, err
	}
	return domain.UserStats{
		UserID:           doc.ID,
		Email:            doc.Data.Email,
		Name:             doc.Data.Name,
		TotalBuy:         doc.Data.TotalBuy,
		TotalCancel:      doc.Data.TotalCancel,
		TotalOrderReject: doc.Data.TotalOrderReject,
	}, nil
}

type userStatsDocument struct {
	Email            string `firestore:"email,omitempty"`
	Name             string `firestore:"name,omitempty"`
	TotalBuy         int    `firestore:"totalBuy"`
	TotalCancel      int    `firestore:"totalCancel"`
	TotalOrderReject int    `firestore:"totalOrderReject"`
}

var _ repositories.UserStatsRepository = (*UserStatsRepository)(nil)
