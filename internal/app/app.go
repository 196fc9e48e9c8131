// Package app wires the shop bot together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/bootstrap"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/dispatch"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/internal/bot"
	"github.com/m3rciful/shopbot/internal/cart"
	"github.com/m3rciful/shopbot/internal/catalog"
	"github.com/m3rciful/shopbot/internal/cms"
	"github.com/m3rciful/shopbot/internal/engine"
	"github.com/m3rciful/shopbot/internal/metrics"
	"github.com/m3rciful/shopbot/internal/notify"
	"github.com/m3rciful/shopbot/internal/registry"
	"github.com/m3rciful/shopbot/internal/view"
	tele "gopkg.in/telebot.v4"
)

// App is the running shop bot.
type App struct {
	cfg *coreconfig.Config
	bot *tele.Bot
	*services
}

// services are the parts that do not need a live Bot API connection.
type services struct {
	metrics    *metrics.Metrics
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	handler    *bot.Handler
	commands   *tg.Registry
}

// Build connects to Telegram and wires the app. It matches corecmd.Options.Build.
func Build(cfg *coreconfig.Config, infra *bootstrap.Result) (corecmd.App, error) {
	b, err := tg.NewBot(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := wire(cfg, infra, b)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, bot: b, services: svc}, nil
}

func wire(cfg *coreconfig.Config, infra *bootstrap.Result, api bot.API) (*services, error) {
	if cfg == nil || infra == nil {
		return nil, fmt.Errorf("app: config and infra are required")
	}
	svc := &services{}
	if cfg.Metrics.Listen != "" {
		svc.metrics = metrics.New()
	}

	timeout := time.Duration(cfg.CMS.TimeoutMS) * time.Millisecond
	retries := -1
	if cfg.CMS.Retries != nil {
		retries = tg.RetryBudget(*cfg.CMS.Retries)
	}
	cmsOpts := cms.Options{
		BaseURL: cfg.CMS.BaseURL,
		Token:   cfg.CMS.Token,
		Timeout: timeout,
		HTTPClient: tg.BuildHTTPClient(tg.HTTPClientOptions{
			Timeout:         timeout,
			ResponseTimeout: timeout,
			Retries:         retries,
		}),
	}
	if svc.metrics != nil {
		cmsOpts.Observer = svc.metrics
	}
	content, err := cms.New(cmsOpts)
	if err != nil {
		return nil, err
	}

	engOpts := engine.Options{
		Catalog:  catalog.New(content),
		Carts:    cart.New(content),
		Registry: registry.New(content),
		Renderer: bot.NewRenderer(api, content),
		Sessions: infra.Sessions,
		Locks:    infra.Locks,
		Views:    view.Builder{Currency: cfg.Shop.Currency, Unit: cfg.Shop.Unit},
	}
	if n := buildNotifier(cfg, api); n != nil {
		engOpts.Notifier = n
	}
	if svc.metrics != nil {
		engOpts.Observer = svc.metrics
	}
	svc.engine, err = engine.New(engOpts)
	if err != nil {
		return nil, err
	}

	dispOpts := dispatch.Options{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		MaxDuration: time.Duration(cfg.Dispatch.MaxDurationMS) * time.Millisecond,
	}
	if svc.metrics != nil {
		dispOpts.OnDone = svc.metrics.ObserveJob
	}
	svc.dispatcher = dispatch.NewDispatcher(dispOpts)
	svc.handler = bot.NewHandler(svc.engine, svc.dispatcher)

	svc.commands = tg.NewRegistry()
	svc.commands.RegisterCommand("/start", tg.Command{
		Description: "Open the shop",
		Aliases:     []string{"menu"},
		Handler:     svc.handler.OnStart,
	})
	return svc, nil
}

// buildNotifier returns nil when no operator channel is configured.
func buildNotifier(cfg *coreconfig.Config, sender notify.Sender) notify.Notifier {
	var out notify.Multi
	if n := notify.NewTelegram(sender, cfg.Telegram.AdminID); n != nil {
		out = append(out, n)
	}
	if n := notify.NewEmail(cfg.Notify.ResendAPIKey, cfg.Notify.EmailFrom, cfg.Notify.OperatorEmail); n != nil {
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *services) routes() []tg.Route {
	routes := router.CommandRoutes(s.commands)
	routes = append(routes, router.CallbackRoute(s.handler.OnCallback))
	return append(routes, router.TextRoutes(s.commands, s.handler.OnText, router.TextOptions{
		UnknownMedia: s.handler.OnText,
	})...)
}

func (s *services) updateObserver() middleware.UpdateObserver {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

// Run serves updates until ctx is done, then drains queued turns.
func (a *App) Run(ctx context.Context) error {
	if a.metrics != nil {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.Metrics.Listen); err != nil {
				logger.Error(ctx, "app", "metrics.fail", slog.String("err", err.Error()))
			}
		}()
	}
	return tg.Run(ctx, a.bot, tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.commands,
		Middlewares: tg.DefaultMiddlewares(a.cfg, a.updateObserver(), a.handler.OnLimited),
		Routes:      a.routes(),
		OnStop: func(ctx context.Context, _ *tele.Bot) error {
			a.dispatcher.Close()
			logger.Info(ctx, "app", "dispatch.drained", slog.Int("count", int(a.dispatcher.ErrorCount())))
			return nil
		},
	})
}
