package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const notificationsCollection = "notifications"

// NotificationRepository writes buyer notification records.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{
		base: pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil),
	}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) error {
	_, err := r.base.Create(ctx, n.ID, notificationDocument{
		UserID:  n.UserID,
		Title:   n.Title,
		Content: n.Content,
		Type:    string(n.Target.Kind),
		Status:  n.Read,
		Specs: notificationSpecsDoc{
			OrderID:   n.Target.OrderID,
			ItemID:    n.Target.ItemID,
			ProductID: n.Target.ProductID,
		},
		CreatedAt: n.CreatedAt.UTC(),
	})
	return err
}

type notificationDocument struct {
	UserID    string               `firestore:"user"`
	Title     string               `firestore:"title"`
	Content   string               `firestore:"content"`
	Type      string               `firestore:"type"`
	Status    bool                 `firestore:"status"`
	Specs     notificationSpecsDoc `firestore:"specs"`
	CreatedAt time.Time            `firestore:"createdAt"`
}

type notificationSpecsDoc struct {
	OrderID   string `firestore:"orderId"`
	ItemID    string `firestore:"itemId"`
	ProductID string `firestore:"productId"`
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
