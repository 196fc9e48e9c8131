package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a tele endpoint such as a command or tele.OnText.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

type RunOptions struct {
	Config      *coreconfig.Config
	Registry    *Registry
	Middlewares []Middleware
	Routes      []Route

	// OnStop runs after polling ends with a fresh ten second budget.
	OnStop func(ctx context.Context, bot *tele.Bot) error
}

// NewBot builds a bot without starting it. Updates are handled synchronously;
// per-user ordering is kept by the dispatcher downstream.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	start := time.Now()
	window := longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Synchronous: true,
		// getUpdates keeps the response open for the whole poll window
		Client: BuildHTTPClient(HTTPClientOptions{
			ResponseTimeout: window + defaultResponseTimeout,
			Timeout:         window + defaultClientTimeout,
		}),
		OnError: func(err error, _ tele.Context) {
			logger.Error(context.Background(), "tg", "tg.error",
				slog.String("err", logger.SanitizeLimit(netutil.RedactError(err), 256)),
				slog.String("err_code", netutil.ClassifyError(err)),
			)
		},
	})
	if err != nil {
		return nil, errors.New("telegram: bot initialization failed: " + netutil.RedactError(err))
	}

	attrs := []slog.Attr{slog.String("status", "ok"), slog.Duration("duration", time.Since(start))}
	if hook, ok := poller.(*tele.Webhook); ok {
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", hook.Listen),
			slog.String("public_url", hook.Endpoint.PublicURL),
		)
	} else {
		attrs = append(attrs,
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(window/time.Second)),
		)
	}
	logger.Info(context.Background(), "tg", "bot.ready", attrs...)
	return bot, nil
}

// Run installs middlewares, routes and the command menu, then serves updates
// until ctx is cancelled. Cancellation is a clean exit.
func Run(ctx context.Context, bot *tele.Bot, opts RunOptions) error {
	if bot == nil || opts.Config == nil {
		return errors.New("telegram: bot and config are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	if _, hook := bot.Poller.(*tele.Webhook); !hook {
		// a leftover webhook makes getUpdates fail with 409
		err := bot.RemoveWebhook()
		logger.Info(ctx, "tg", "webhook.removed",
			slog.String("status", logger.Status(err)),
			slog.String("err", logger.SanitizeLimit(netutil.RedactError(err), 256)),
		)
	}
	install(bot, opts.Middlewares, opts.Routes)
	InitBotCommands(bot, reg)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-stopped
	case <-stopped:
	}

	if opts.OnStop == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(logger.Detach(ctx), 10*time.Second)
	defer cancel()
	return opts.OnStop(stopCtx, bot)
}

func install(bot *tele.Bot, mws []Middleware, routes []Route) {
	for _, mw := range mws {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	logger.Debug(context.Background(), "tg.wire", "handlers.installed",
		slog.Int("middlewares", len(mws)),
		slog.Int("count", len(routes)),
	)
}
