package signal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedirectConsumer_Success(t *testing.T) {
	consumer := NewRedirectConsumer(2)

	sig, stripped, err := consumer.Consume("https://app.example.com/onboarding?booking=success&tab=1")
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Equal(t, SourceRedirect, sig.Source)
	require.Equal(t, 2, sig.TargetStep)
	require.Equal(t, "success", sig.Payload[BookingParam])
	require.NotContains(t, stripped, "booking=")
	require.Contains(t, stripped, "tab=1", "unrelated query parameters survive")
}

func TestRedirectConsumer_Manual(t *testing.T) {
	consumer := NewRedirectConsumer(2)

	sig, stripped, err := consumer.Consume("https://app.example.com/onboarding?booking=manual")
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Equal(t, SourceManual, sig.Source)
	require.NotContains(t, stripped, "booking")
}

func TestRedirectConsumer_ConsumedExactlyOnce(t *testing.T) {
	consumer := NewRedirectConsumer(2)

	sig, stripped, err := consumer.Consume("https://app.example.com/onboarding?booking=success")
	require.NoError(t, err)
	require.NotNil(t, sig)

	// Re-consuming the stripped URL simulates a refresh after replace-state:
	// the flag is gone, so no second signal fires.
	again, unchanged, err := consumer.Consume(stripped)
	require.NoError(t, err)
	require.Nil(t, again)
	require.Equal(t, stripped, unchanged)
}

func TestRedirectConsumer_NoParam(t *testing.T) {
	consumer := NewRedirectConsumer(2)

	sig, stripped, err := consumer.Consume("https://app.example.com/onboarding")
	require.NoError(t, err)
	require.Nil(t, sig)
	require.Equal(t, "https://app.example.com/onboarding", stripped)
}

func TestRedirectConsumer_UnknownValueStrippedWithoutSignal(t *testing.T) {
	consumer := NewRedirectConsumer(2)

	sig, stripped, err := consumer.Consume("https://app.example.com/onboarding?booking=maybe")
	require.NoError(t, err)
	require.Nil(t, sig)
	require.NotContains(t, stripped, "booking", "unknown values must not survive to re-trigger")
}

func TestNewSignalHasIdentity(t *testing.T) {
	a := New(SourcePoll, 2, nil)
	b := New(SourcePoll, 2, nil)

	require.NotEqual(t, a.ID, b.ID)
	require.False(t, a.ReceivedAt.IsZero())
}
