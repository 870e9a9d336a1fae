// cmd/trader runs the strategies from STRATEGY_FILES against a live tick
// feed, trading through the paper broker, until RUNTIME elapses, the
// session closes or the process is signalled.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"daytrader/config"
	"daytrader/internal/events"
	"daytrader/internal/execution"
	"daytrader/internal/gateway"
	"daytrader/internal/indicator"
	"daytrader/internal/logger"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/marketdata/bus"
	"daytrader/internal/marketdata/feed"
	"daytrader/internal/metrics"
	"daytrader/internal/model"
	"daytrader/internal/notification"
	"daytrader/internal/session"
	amqpstore "daytrader/internal/store/amqp"
	redisstore "daytrader/internal/store/redis"
	sqlitestore "daytrader/internal/store/sqlite"
	"daytrader/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[trader] %v", err)
	}
	lg := logger.Init("trader", logger.ParseLevel(cfg.LogLevel))

	clock, err := session.New(cfg.SessionTZ, cfg.SessionOpen, cfg.SessionClose, cfg.Holidays())
	if err != nil {
		log.Fatalf("[trader] session: %v", err)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealth(cfg.StaleFeedAfter)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	eventHub := gateway.NewHub(4096, 1000)
	eventHub.OnDrop = func() { prom.QueueDrops.WithLabelValues("ws_events").Inc() }
	metricsSrv.Handle("/ws/events", eventHub)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		lg.Info("signal received", "signal", sig.String())
		cancel()
	}()

	// Sinks and writers outlive ctx so that shutdown exits are recorded.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	// ---- Stores ----
	if err := dataDir(cfg.SQLitePath); err != nil {
		log.Fatalf("[trader] data dir: %v", err)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[trader] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	health.AddCheck(metrics.SQLCheck("sqlite", sqlWriter.DB()))

	journal, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[trader] journal init failed: %v", err)
	}
	defer journal.Close()

	var redisWriter *redisstore.Writer
	if cfg.RedisAddr != "" {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[trader] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer redisWriter.Close()
			redisWriter.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }
			redisWriter.Breaker().OnStateChange = func(_, to redisstore.BreakerState) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.BreakerOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
		}
	}
	if redisWriter != nil {
		health.AddCheck(metrics.RedisCheck(redisWriter.Client(), true))
	}
	health.Watch(ctx, 10*time.Second)

	// ---- Event sinks ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.AlertWebhook != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.AlertWebhook))
	}
	alerter := notification.NewAlerter(256, notifiers...)
	go alerter.Run(sinkCtx)
	go eventHub.Run(sinkCtx)

	sinks := execution.MultiSink{journal, execution.LogSink{}, prom, alerter, eventHub}
	if cfg.AMQPURL != "" {
		pub, err := amqpstore.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, 4096)
		if err != nil {
			log.Printf("[trader] WARNING: amqp init failed: %v (continuing without event publishing)", err)
		} else {
			defer pub.Close()
			pub.OnPublish = func(result string) { prom.EventsPublished.WithLabelValues(result).Inc() }
			go pub.Run(sinkCtx)
			sinks = append(sinks, pub)
		}
	}

	// ---- Bar and indicator fan-out (off the loop) ----
	bars := bus.New[model.Candle]("bars", 5000)
	bars.OnDrop = func(sub string) { prom.QueueDrops.WithLabelValues("bars_" + sub).Inc() }
	go sqlWriter.Run(sinkCtx, bars.Subscribe("sqlite"))

	formed := bus.New[[]model.IndicatorResult]("indicators", 5000)
	formed.OnDrop = func(sub string) { prom.QueueDrops.WithLabelValues("indicators_" + sub).Inc() }
	go sqlWriter.RunIndicators(sinkCtx, formed.Subscribe("sqlite"))

	var forming *bus.FanOut[[]model.IndicatorResult]
	if redisWriter != nil {
		go redisWriter.Run(sinkCtx, bars.Subscribe("redis"))
		go redisWriter.RunIndicators(sinkCtx, formed.Subscribe("redis"))
		forming = bus.New[[]model.IndicatorResult]("forming", 5000)
		go redisWriter.RunIndicators(sinkCtx, forming.Subscribe("redis"))
	}

	// ---- Event loop ----
	disp := events.New(10000)
	disp.OnDrop = func(k events.Kind) {
		prom.QueueDrops.WithLabelValues(k.String()).Inc()
		if k == events.KindTick {
			prom.DroppedTicks.Inc()
		}
	}

	reg := indicator.NewRegistry()
	reg.OnCompute = prom.ObserveIndicator
	reg.OnFormed = func(rs []model.IndicatorResult) {
		if len(rs) > 0 {
			formed.Publish(rs)
		}
	}
	if forming != nil {
		reg.OnForming = func(rs []model.IndicatorResult) {
			if len(rs) > 0 {
				forming.Publish(rs)
			}
		}
	}

	aggr := agg.New(reg)
	aggr.OnTick = func(t model.Tick) {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(t.TS)
	}
	aggr.OnDroppedTick = func(model.Tick) { prom.DroppedTicks.Inc() }
	aggr.OnBarClosed = func(bar, _ model.Candle) {
		prom.BarsClosed.WithLabelValues(bar.Symbol).Inc()
		bars.Publish(bar)
	}

	paper := execution.NewPaperBroker(0, float64(cfg.PaperSlipBps), 0)
	disp.Register(events.KindTick, func(ev events.Event) { paper.OnTick(ev.Tick) })
	disp.Register(events.KindOrder, func(ev events.Event) {
		prom.OrderEvents.WithLabelValues(string(ev.Order.Kind)).Inc()
	})

	m := strategy.NewManager(strategy.ManagerConfig{
		ShutdownPoll: cfg.ShutdownPoll,
		Clock:        clock,
	}, disp, aggr, reg, paper, sinks)
	defer m.Close()
	if err := m.Load(cfg.StrategyPaths()...); err != nil {
		log.Fatalf("[trader] %v", err)
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go disp.Run(loopCtx)
	go paper.Run(loopCtx, func(ctx context.Context, ev model.OrderEvent) error {
		return disp.Post(ctx, events.Event{Kind: events.KindOrder, Order: ev})
	})

	// ---- Tick feed ----
	client, err := feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		log.Fatalf("[trader] feed: %v", err)
	}
	client.OnReconnect = func() { prom.FeedReconnects.Inc() }
	client.OnConnected = func(up bool) {
		prom.SetFeedConnected(up)
		health.SetFeedConnected(up)
	}
	go func() {
		if err := client.Run(ctx, disp); err != nil {
			log.Printf("[trader] feed error: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				open := clock.IsOpen(time.Now())
				health.SetMarketOpen(open)
				if open {
					prom.MarketState.Set(1)
				} else {
					prom.MarketState.Set(0)
				}
				if n, err := events.Call(loopCtx, disp, m.Active); err == nil {
					health.SetActiveStrategies(n)
				}
			}
		}
	}()

	log.Printf("[trader] %d strategies loaded, feed %s, %s",
		len(m.Strategies()), cfg.FeedURL, clock.Status(time.Now()))

	if err := m.Run(ctx, cfg.Runtime); err != nil {
		log.Printf("[trader] %v", err)
	}

	// ---- Shutdown ----
	cancel()
	stopLoop()
	stopSinks()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsSrv.Stop(shutdownCtx)
	shutdownCancel()
	log.Println("[trader] stopped")
}

// dataDir creates the directory that will hold the database file at path.
func dataDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
