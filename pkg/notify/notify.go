// Package notify posts operator-facing Slack notifications for events
// that need a human in the loop: a Fatal-kind error surfacing from
// anywhere in the coordinator, or a host flipping to offline.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

// Notifier posts messages to a single configured Slack channel. With
// no bot token it is a noop, logging instead of posting, so operators
// can run without Slack wired up.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the
// notifier is a noop (logging only).
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a live Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyFatalError posts a Fatal-kind coordinator error to the
// operator channel. Non-Fatal errors are not posted; callers should
// check coreerrors.KindOf themselves if they only want to notify on
// the subset they care about, but this is the boundary that decides
// what counts as page-worthy.
func (n *Notifier) NotifyFatalError(ctx context.Context, source string, err error) error {
	if coreerrors.KindOf(err) != coreerrors.KindFatal {
		return nil
	}
	return n.post(ctx, fatalErrorBlocks(source, err))
}

// NotifyHostOffline posts a host-offline transition to the operator
// channel.
func (n *Notifier) NotifyHostOffline(ctx context.Context, hostID, hostname, lastError string) error {
	return n.post(ctx, hostOfflineBlocks(hostID, hostname, lastError))
}

func (n *Notifier) post(ctx context.Context, msg blockMessage) error {
	if !n.IsEnabled() {
		n.logger.Warn("slack notifier disabled, dropping notification", "fallback_text", msg.fallback)
		return nil
	}

	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(msg.blocks...),
		goslack.MsgOptionText(msg.fallback, false),
	}
	_, ts, err := n.client.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	n.logger.Info("posted operator notification", "channel", n.channel, "ts", ts)
	return nil
}
