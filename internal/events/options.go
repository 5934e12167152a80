package events

type ProducerOptions func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithSource sets the CloudEvents source attribute of produced events.
func WithSource(source string) ProducerOptions {
	return func(e *EventProducer) {
		e.source = source
	}
}

// WithBufferCapacity bounds the number of pending events. Zero means unbounded.
func WithBufferCapacity(n int) ProducerOptions {
	return func(e *EventProducer) {
		e.buffer = newBuffer(n)
	}
}
