package mq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerFunc(t *testing.T) {
	var gotKey, gotValue string
	var h Handler = HandlerFunc(func(_ context.Context, key, value []byte) error {
		gotKey, gotValue = string(key), string(value)
		return nil
	})

	assert.NoError(t, h.HandleMessage(context.Background(), []byte("k"), []byte("v")))
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "v", gotValue)
}
