package client

import (
	"context"
	"log"

	"github.com/patchnotes/api/internal/model"
)

// OutboundMessage is one finished patch note prepared for delivery.
type OutboundMessage struct {
	NoteKey    string
	Subject    string
	Body       string
	VideoURL   string
	Recipients []string
}

// OutboundProvider defines the interface for a delivery channel. The actual
// email/social providers live outside this service; this contract is all
// the distribution worker depends on.
type OutboundProvider interface {
	Channel() model.DistributionChannel
	Send(ctx context.Context, msg *OutboundMessage) error
}

// LogProvider is the development fallback used when no real provider is
// configured: it logs the delivery instead of sending it.
type LogProvider struct {
	channel model.DistributionChannel
}

// NewLogProvider creates a logging provider for the given channel.
func NewLogProvider(channel model.DistributionChannel) *LogProvider {
	return &LogProvider{channel: channel}
}

func (p *LogProvider) Channel() model.DistributionChannel {
	return p.channel
}

func (p *LogProvider) Send(_ context.Context, msg *OutboundMessage) error {
	log.Printf("[Outbound %s] note %s → %d recipient(s): %s", p.channel, msg.NoteKey, len(msg.Recipients), msg.Subject)
	return nil
}
