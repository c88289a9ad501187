//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	pconfig "github.com/marketcart/api/internal/platform/config"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

func TestRegistryCheckoutFlowIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "marketcart-test", EmulatorHost: endpoint})
	reg, err := NewRegistry(provider, WithHealthEnvironment("test"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := client.Collection(productsCollection).Doc("p1").Set(ctx, map[string]any{
		"sellerId": "seller-1", "name": "Mug", "totalSold": 0,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := client.Collection("products/p1/variants").Doc("v1").Set(ctx, map[string]any{
		"name": "Blue", "price": 2000, "discountPercent": 10, "quantity": 5,
	}); err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	order := domain.Order{
		ID:            "o1",
		BuyerID:       "buyer-1",
		Currency:      "USD",
		PaymentMethod: domain.PaymentMethodCOD,
		SellerIDs:     []string{"seller-1"},
		CreatedAt:     now,
		UpdatedAt:     now,
		Items: []domain.OrderItem{domain.NewOrderItem("i1", domain.PricedLine{
			ProductID: "p1", VariantID: "v1", SellerID: "seller-1", Quantity: 2, UnitPrice: 2000, TotalPaid: 4100,
		}, now, false)},
	}

	err = reg.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := reg.Products().FindByID(txCtx, "p1"); err != nil {
			return err
		}
		if err := reg.Orders().Create(txCtx, order); err != nil {
			return err
		}
		if err := reg.Products().AdjustVariantQuantity(txCtx, "p1", "v1", -2); err != nil {
			return err
		}
		if err := reg.Inventory().AppendReservation(txCtx, "p1", "seller-1", domain.Reservation{
			ID: "r1", OrderID: "o1", BuyerID: "buyer-1", VariantID: "v1", Quantity: 2, CreatedAt: now,
		}); err != nil {
			return err
		}
		return reg.Outbox().Append(txCtx, repositories.OutboxEntry{
			ID: "e1", Type: string(domain.EventOrderSuccess), AggregateID: "o1", Payload: []byte(`{}`), OccurredAt: now,
		})
	})
	if err != nil {
		t.Fatalf("checkout transaction: %v", err)
	}

	product, err := reg.Products().FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if v, _ := product.Variant("v1"); v.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", v.Quantity)
	}

	stored, err := reg.Orders().FindByID(ctx, "o1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].Status != domain.ItemStatusOrdered {
		t.Fatalf("unexpected stored order %+v", stored)
	}

	inv, err := reg.Inventory().FindByProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("find inventory: %v", err)
	}
	if inv.SellerID != "seller-1" || inv.ReservedQuantity("o1") != 2 {
		t.Fatalf("unexpected inventory %+v", inv)
	}

	// Replaying the create must conflict without touching stock.
	err = reg.RunInTx(ctx, func(txCtx context.Context) error {
		return reg.Orders().Create(txCtx, order)
	})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on replay, got %v", err)
	}

	pending, err := reg.Outbox().ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "e1" {
		t.Fatalf("unexpected pending entries %+v", pending)
	}
	if err := reg.Outbox().MarkFailed(ctx, "e1", "broker down", now, true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if pending, _ = reg.Outbox().ListPending(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected dead-lettered entry to leave the pending list, got %+v", pending)
	}

	if err := reg.ReviewPermissions().Grant(ctx, "p1", "buyer-1", now); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := reg.ReviewPermissions().Grant(ctx, "p1", "buyer-1", now); err != nil {
		t.Fatalf("grant again: %v", err)
	}
	granted, err := reg.ReviewPermissions().IsGranted(ctx, "p1", "buyer-1")
	if err != nil || !granted {
		t.Fatalf("expected grant, got %v %v", granted, err)
	}
	if granted, _ := reg.ReviewPermissions().IsGranted(ctx, "p2", "buyer-1"); granted {
		t.Fatalf("expected unknown product to be ungranted")
	}

	report, err := reg.Health().Collect(ctx)
	if err != nil || report.Status != domain.HealthStatusOK {
		t.Fatalf("unexpected health %+v %v", report, err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
