package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic_PublishInOrder(t *testing.T) {
	topic := &Topic[int]{}
	var got []string

	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })

	topic.Publish(1)
	topic.Publish(2)

	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}

func TestTopic_Unsubscribe(t *testing.T) {
	topic := &Topic[string]{}
	var received []string

	unsubscribe := topic.Subscribe(func(v string) { received = append(received, v) })
	topic.Publish("first")
	unsubscribe()
	unsubscribe()
	topic.Publish("second")

	assert.Equal(t, []string{"first"}, received)
	assert.Equal(t, 0, topic.Len())
}

func TestTopic_SubscribeDuringPublish(t *testing.T) {
	topic := &Topic[int]{}
	calls := 0

	topic.Subscribe(func(v int) {
		calls++
		topic.Subscribe(func(int) { calls += 10 })
	})

	topic.Publish(1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, topic.Len())
}
