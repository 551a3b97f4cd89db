package pubsub

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestPublisher(t *testing.T) {
	assert := assert_.New(t)
	pub := NewPublisher[int]()

	// Sending with no subscribers just succeeds
	assert.True(pub.Send(1))

	s1 := pub.Subscribe()
	select {
	case <-s1.Receive():
		assert.Fail("subscriber should be waiting")
	default:
	}
	assert.True(pub.Send(2))
	assert.Equal(2, <-s1.Receive())

	// Both subscribers see the same value
	s2 := pub.Subscribe()
	assert.True(pub.Send(3))
	assert.Equal(3, <-s1.Receive())
	assert.Equal(3, <-s2.Receive())

	// A closed subscriber no longer receives, the other still does
	s1.Close()
	assert.True(pub.Send(4))
	_, ok := <-s1.Receive()
	assert.False(ok, "expected closed subscriber channel")
	assert.Equal(4, <-s2.Receive())
	// Closing is idempotent
	s1.Close()

	// Closing the publisher closes remaining subscribers and stops sends
	pub.Close()
	_, ok = <-s2.Receive()
	assert.False(ok, "expected subscriber closed by publisher")
	assert.False(pub.Send(5))
	assert.Nil(pub.Subscribe())
	pub.Close()
}

func TestPublisherSlowSubscriberDropsOldest(t *testing.T) {
	assert := assert_.New(t)
	pub := NewPublisher[int]()
	s := pub.SubscribeBufSize(2)

	assert.True(pub.Send(1))
	assert.True(pub.Send(2))
	assert.True(pub.Send(3)) // displaces 1

	assert.Equal(2, <-s.Receive())
	assert.Equal(3, <-s.Receive())
	select {
	case v := <-s.Receive():
		assert.Failf("unexpected value", "%d", v)
	default:
	}
}
