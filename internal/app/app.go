package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clanbot/internal/commands"
	"clanbot/internal/config"
	"clanbot/internal/conversation"
	"clanbot/internal/eventbus"
	"clanbot/internal/hiscores"
	"clanbot/internal/runtime/supervisor"
	"clanbot/internal/scheduler"
	"clanbot/internal/storage"
	"clanbot/internal/transport"
	"clanbot/internal/transport/discord"
	logx "clanbot/pkg/logx"
)

// App wires the bot together: config, logging, storage, the hiscores client,
// the event scheduler, the conversation engine and the Discord adapter.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store storage.Store

	adapter *discord.Adapter
	lookup  hiscores.Client

	sched  *scheduler.Scheduler
	conv   *conversation.Engine
	router *commands.Router

	updates chan transport.Update
	unsubs  []func()
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	log = log.With(logx.String("comp", "app"))

	ad, err := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		CommandPrefix: cfg.Discord.Prefix,
	}, logSvc.Logger().With(logx.String("comp", "discord")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	busyTimeout, err := cfg.Storage.BusyTimeoutDuration()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         cfg.Storage.DSN,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	hsTimeout, err := cfg.Hiscores.TimeoutDuration()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	cacheTTL, err := cfg.Hiscores.CacheTTLDuration()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	live := hiscores.New(hiscores.Config{
		BaseURL:    cfg.Hiscores.BaseURL,
		Timeout:    hsTimeout,
		RatePerSec: cfg.Hiscores.RatePerSec,
	}, logSvc.Logger().With(logx.String("comp", "hiscores")))
	lookup := hiscores.NewCache(live, cacheTTL)

	bus := eventbus.New()

	refresh, err := cfg.Events.RefreshIntervalDuration()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	rescan, err := cfg.Events.RescanIntervalDuration()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	lookahead, err := cfg.Events.LookaheadDuration()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		RefreshInterval: refresh,
		RescanInterval:  rescan,
		Lookahead:       lookahead,
	}, store, lookup, bus, ad, logSvc.Logger().With(logx.String("comp", "scheduler")))

	convTTL, err := cfg.Chat.ConversationTTLDuration()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	conv := conversation.NewEngine(ad, convTTL, logSvc.Logger().With(logx.String("comp", "conversation")))

	router := commands.NewRouter(cfg.Discord.Prefix, conv, &commands.Deps{
		Store:     store,
		Hiscores:  lookup,
		Scheduler: sched,
		Messenger: ad,
		Log:       logSvc.Logger().With(logx.String("comp", "commands")),
	}, logSvc.Logger().With(logx.String("comp", "commands")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		lookup:  lookup,
		sched:   sched,
		conv:    conv,
		router:  router,
		updates: make(chan transport.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or
// Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	// Lifecycle transitions at debug level for operational visibility.
	for _, topic := range []string{
		scheduler.TopicWillStart, scheduler.TopicDidStart,
		scheduler.TopicWillEnd, scheduler.TopicDidEnd,
		scheduler.TopicWillUpdateScores, scheduler.TopicDidUpdateScores,
	} {
		unsub := a.bus.Subscribe(topic, func(e eventbus.Event) {
			a.log.Debug("lifecycle event", logx.String("topic", e.Topic), logx.Time("time", e.Time))
		})
		a.unsubs = append(a.unsubs, unsub)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case up, ok := <-a.updates:
				if !ok {
					return nil
				}
				a.router.HandleUpdate(c, up)
			}
		}
	})

	a.sup.Go("conversation.sweep", func(c context.Context) error {
		return a.conv.Run(c)
	})

	// Hot reload fan-out. Only logging changes apply live; storage and
	// discord changes need a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}

				for _, s := range sections {
					switch s {
					case "storage", "discord", "events", "chat":
						a.log.Warn("config section changed; restart required for changes to take effect",
							logx.String("section", s))
					}
				}

				a.logs.Apply(newCfg.Logging.Logx())

				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})

	// Watch surfaces a broken watcher as an error; the supervisor owns
	// the restart and its backoff.
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil

	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
