package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "feedback.outcome", Data: "forwarded"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, "feedback.outcome", e.Type)
		assert.Equal(t, "forwarded", e.Data)
		assert.False(t, e.Time.IsZero())
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "y"})

	e := <-ch
	assert.Equal(t, "x", e.Type)
	d, ok := b.(Dropper)
	require.True(t, ok)
	assert.EqualValues(t, 1, d.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	b.Publish(Event{Type: "after"})
}
