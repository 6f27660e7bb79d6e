package broker

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
)

func TestWaitForContextElapses(t *testing.T) {
	assert.NoError(t, WaitForContext(context.Background(), time.Millisecond))
	assert.NoError(t, WaitForContext(context.Background(), -time.Second))
}

func TestWaitForContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitForContext(ctx, time.Hour), context.Canceled)
}

func TestIsNotFound(t *testing.T) {
	notFound := &alpaca.APIError{StatusCode: http.StatusNotFound, Message: "position does not exist"}
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", notFound)))
	assert.False(t, IsNotFound(&alpaca.APIError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsNotFound(fmt.Errorf("boom")))
}
