package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/contract-retrieval/internal/infrastructure/resilience"
)

// connectionErrors are the publish failures that clear up once the client reconnects.
var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	for _, target := range connectionErrors {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{Temporary: true, RecordFailure: true}
		}
	}
	return resilience.ClassifyTransport(err)
}
