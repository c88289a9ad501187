package auth

import (
	"context"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/marketcart/api/internal/platform/config"
)

type recordingTokenClient struct {
	plain, revocation int
}

func (c *recordingTokenClient) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	c.plain++
	return &firebaseauth.Token{UID: "buyer-1"}, nil
}

func (c *recordingTokenClient) VerifyIDTokenAndCheckRevoked(context.Context, string) (*firebaseauth.Token, error) {
	c.revocation++
	return &firebaseauth.Token{UID: "buyer-1"}, nil
}

func TestFirebaseVerifierRevocationCheck(t *testing.T) {
	for _, checkRevoked := range []bool{false, true} {
		client := &recordingTokenClient{}
		verifier := &FirebaseVerifier{client: client, checkRevoked: checkRevoked}
		if _, err := verifier.VerifyIDToken(context.Background(), "tok"); err != nil {
			t.Fatalf("VerifyIDToken: %v", err)
		}
		if checkRevoked && (client.revocation != 1 || client.plain != 0) {
			t.Fatalf("expected revocation check, got %+v", client)
		}
		if !checkRevoked && (client.plain != 1 || client.revocation != 0) {
			t.Fatalf("expected plain verification, got %+v", client)
		}
	}
}

func TestFirebaseVerifierRequiresProject(t *testing.T) {
	if _, err := NewFirebaseVerifier(context.Background(), config.FirebaseConfig{}); err == nil {
		t.Fatalf("expected missing project id to fail")
	}
	var nilVerifier *FirebaseVerifier
	if _, err := nilVerifier.VerifyIDToken(context.Background(), "tok"); err == nil {
		t.Fatalf("expected uninitialised verifier to fail")
	}
}
