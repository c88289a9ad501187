package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code codes.Code
		want Kind
	}{
		{codes.NotFound, KindNotFound},
		{codes.AlreadyExists, KindConflict},
		{codes.Aborted, KindConflict},
		{codes.FailedPrecondition, KindConflict},
		{codes.InvalidArgument, KindInvalid},
		{codes.Unavailable, KindUnknown},
		{codes.Internal, KindUnknown},
	}
	for _, tc := range cases {
		err := WrapError("orders.get", status.Error(tc.code, "boom"))
		if got := KindOf(err); got != tc.want {
			t.Fatalf("%s: kind = %d, want %d", tc.code, got, tc.want)
		}
		var wrapped *Error
		if !errors.As(err, &wrapped) || wrapped.Op != "orders.get" {
			t.Fatalf("%s: expected op to be recorded, got %v", tc.code, err)
		}
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "client went away")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", fmt.Errorf("read: %w", context.DeadlineExceeded)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if KindOf(WrapError("op", context.Canceled)) != KindUnknown {
		t.Fatalf("cancellation must not carry a repository kind")
	}
}

func TestWrapErrorKeepsFirstClassification(t *testing.T) {
	inner := WrapError("carts.get", status.Error(codes.NotFound, "missing"))
	outer := WrapError("checkout.load", inner)
	var wrapped *Error
	if !errors.As(outer, &wrapped) || wrapped.Op != "carts.get" || !wrapped.IsNotFound() {
		t.Fatalf("expected original classification, got %v", outer)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
