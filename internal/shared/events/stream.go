package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/carebridge/platform/internal/shared/config"
	"github.com/google/uuid"
)

// StreamPublisher appends platform events to a durable EventStoreDB stream.
// It backs the audit trail; the in-process MemoryBus remains the coordination
// path between components.
type StreamPublisher struct {
	client *esdb.Client
	prefix string
}

// NewStreamPublisher connects to EventStoreDB
func NewStreamPublisher(cfg config.EventStreamConfig) (*StreamPublisher, error) {
	settings, err := esdb.ParseConnectionString(connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create event stream client: %w", err)
	}

	return &StreamPublisher{client: client, prefix: "carebridge"}, nil
}

func connectionString(cfg config.EventStreamConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Append writes an event to its type stream, e.g. carebridge-case-escalated.
func (p *StreamPublisher) Append(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	stream := fmt.Sprintf("%s-%s", p.prefix, streamName(event.Type))

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventID:     eventID,
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	}

	_, err = p.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// Health checks the event stream connection
func (p *StreamPublisher) Health(ctx context.Context) error {
	stream, err := p.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("event stream unreachable: %w", err)
	}
	defer stream.Close()
	return nil
}

// Close closes the underlying connection
func (p *StreamPublisher) Close() {
	p.client.Close()
}

// streamName converts an event type to a stream-safe name
func streamName(eventType string) string {
	result := make([]byte, len(eventType))
	for i := 0; i < len(eventType); i++ {
		if eventType[i] == '.' {
			result[i] = '-'
		} else {
			result[i] = eventType[i]
		}
	}
	return string(result)
}
