package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/voxhive/callbridge/internal/bridge"
	"github.com/voxhive/callbridge/internal/config"
	"github.com/voxhive/callbridge/internal/dispatcher"
	"github.com/voxhive/callbridge/internal/esl"
	"github.com/voxhive/callbridge/internal/notify"
	"github.com/voxhive/callbridge/internal/queue"
	"github.com/voxhive/callbridge/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/callbridge/callbridge.yaml", "Path to config file")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	// Startup failures are the only fatal errors: if the queue, the store,
	// or the switch is unreachable now, there is no work this process can
	// do. After startup every failure is contained and retried.
	conn, err := net.DialTimeout("tcp", cfg.Switch.Addr(), 10*time.Second)
	if err != nil {
		log.Error("switch unreachable at startup", "addr", cfg.Switch.Addr(), "error", err)
		os.Exit(1)
	}
	conn.Close()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Error("opening call record store", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("call record store unreachable at startup", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("work queue unreachable at startup", "addr", cfg.Queue.Addr, "error", err)
		os.Exit(1)
	}

	consumer := queue.New(rdb, queue.Config{
		Stream:           cfg.Queue.Stream,
		Group:            cfg.Queue.Group,
		Consumer:         cfg.Queue.Consumer,
		DeadLetterStream: cfg.Queue.DeadLetterStream,
		MaxDeliver:       int64(cfg.Queue.MaxDeliver),
		AckWait:          cfg.Queue.AckWait(),
	}, log.With("component", "queue"))
	if err := consumer.Init(ctx); err != nil {
		log.Error("initializing work queue consumer", "error", err)
		os.Exit(1)
	}

	pub, err := notify.NewMQTTPublisher(notify.MQTTOptions{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		QoS:      1,
	})
	if err != nil {
		log.Error("connecting to MQTT", "error", err)
		os.Exit(1)
	}
	defer pub.Close()

	log.Info("connected", "mqtt", cfg.MQTT.Broker, "queue", cfg.Queue.Addr,
		"stream", cfg.Queue.Stream)

	disp := dispatcher.New(store.NewPostgres(pool),
		notify.NewEmitter(pub, cfg.MQTT.TopicPrefix),
		log.With("component", "dispatcher"))

	session := esl.NewSession(esl.Options{
		Addr:           cfg.Switch.Addr(),
		Password:       cfg.Switch.Password,
		ReconnectDelay: cfg.Switch.ReconnectDelay(),
		Logger:         log.With("component", "esl"),
	})
	session.OnEvent(func(evt esl.Event) {
		disp.HandleEvent(ctx, evt)
	})
	go func() {
		if err := session.Run(ctx); err != nil {
			log.Error("switch session terminated", "error", err)
			cancel()
		}
	}()

	orch := bridge.New(queueSource{consumer}, session, disp, bridge.Config{
		BatchSize:      cfg.Queue.BatchSize,
		FetchWait:      cfg.Queue.FetchWait(),
		CommandTimeout: cfg.Switch.CommandTimeout(),
	}, log.With("component", "bridge"))

	if err := orch.Run(ctx); err != nil {
		log.Error("orchestrator error", "error", err)
	}

	log.Info("shutdown complete")
}

// queueSource adapts the Redis Streams consumer to the orchestrator's
// fetch contract.
type queueSource struct {
	c *queue.Consumer
}

func (q queueSource) FetchBatch(ctx context.Context, max int, block time.Duration) ([]bridge.Message, error) {
	batch, err := q.c.FetchBatch(ctx, max, block)
	if err != nil {
		return nil, err
	}
	msgs := make([]bridge.Message, len(batch))
	for i, m := range batch {
		msgs[i] = m
	}
	return msgs, nil
}
