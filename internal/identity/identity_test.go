package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return signed
}

func TestParseTokenRoundTrip(t *testing.T) {
	signed := signToken(t, config.Conf.JWTSecret, &Claims{
		UserID: "u-1",
		Name:   "Avery",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ParseToken(signed)

	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "Avery", claims.Name)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	signed := signToken(t, "some-other-secret", &Claims{UserID: "u-1"})

	_, err := ParseToken(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	signed := signToken(t, config.Conf.JWTSecret, &Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := ParseToken(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()

	first := hub.Subscribe()
	second := hub.Subscribe()

	hub.Publish(Event{Type: SignedOut, UserID: "u-1"})

	for _, events := range []<-chan Event{first, second} {
		select {
		case event := <-events:
			require.Equal(t, SignedOut, event.Type)
			require.Equal(t, "u-1", event.UserID)
		case <-time.After(time.Second):
			t.Fatal("expected event was not delivered")
		}
	}
}

func TestHubDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	_ = hub.Subscribe()

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Event{Type: SignedIn})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
