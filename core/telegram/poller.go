package telegram

import (
	"net"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"

	tele "gopkg.in/telebot.v4"
)

// WebhookOptions holds the webhook listener address and public URL.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// BuildPoller picks a webhook listener for the webhook run mode and a long
// poller otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	mode := strings.ToLower(strings.TrimSpace(opts.RunMode))
	if mode != coreconfig.RunModeWebhook {
		return &tele.LongPoller{Timeout: longPollTimeout(opts.LongPollTimeoutSeconds)}
	}
	return &tele.Webhook{
		Listen:   net.JoinHostPort(opts.Webhook.Listen, strconv.Itoa(opts.Webhook.Port)),
		Endpoint: &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
	}
}

// longPollTimeout defaults to ten seconds.
func longPollTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
