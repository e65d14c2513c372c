package kafka

import "github.com/cockroachdb/errors"

var (
	ErrNoBrokers              = errors.New("kafka: no brokers configured")
	ErrEmptyTopic             = errors.New("kafka: empty topic")
	ErrEmptyGroupID           = errors.New("kafka: empty group id")
	ErrProducerClosed         = errors.New("kafka: producer is closed")
	ErrConsumerAlreadyRunning = errors.New("kafka: consumer is already running")
	ErrConsumerPanic          = errors.New("kafka: consumer panic")
)
