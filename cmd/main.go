package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/broadphase/featureflag"
	bphttp "github.com/aukilabs/broadphase/http"
	"github.com/aukilabs/broadphase/replication"
	"github.com/aukilabs/broadphase/smoketest"
	"github.com/aukilabs/broadphase/soak"
	bwebsocket "github.com/aukilabs/broadphase/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"
)

var (
	// The broadphase version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "broadphase_info",
		Help:        "Broadphase soak server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})

	frameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "soak_frame_latency",
		Help: "The time to step the world and capture a frame.",
	})

	frameOverrun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soak_frame_overruns",
		Help: "The number of frames that took longer than the frame duration.",
	})

	worldColliders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soak_colliders",
		Help: "The number of colliders in the world.",
	})

	worldRegions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soak_regions",
		Help: "The number of occupied regions in the world.",
	})

	soakErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soak_errors",
		Help: "The errors that occured while running the soak loop.",
	}, []string{"error_type"})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"BROADPHASE_ADDR"                 help:"Listening address for replication clients."`
	AdminAddr          string        `cli:""        env:"BROADPHASE_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"BROADPHASE_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	LogLevel           string        `cli:""        env:"BROADPHASE_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"BROADPHASE_LOG_INDENT"           help:"Indent logs."`
	FrameDuration      time.Duration `cli:",hidden" env:"BROADPHASE_FRAME_DURATION"       help:"The duration of a soak frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"BROADPHASE_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	World              worldConfig   `cli:",hidden" env:"-"                               help:"Soak world configuration."`
	KeyframeInterval   int           `cli:",hidden" env:"BROADPHASE_KEYFRAME_INTERVAL"    help:"The number of frames between two replication keyframes."`
	Events             eventsConfig  `cli:",hidden" env:"-"                               help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"BROADPHASE_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                               help:"Show version."`
	Help               bool          `cli:""        env:"-"                               help:"Show help."`
}

type worldConfig struct {
	ColliderCount int     `cli:",hidden" env:"BROADPHASE_COLLIDER_COUNT" help:"The number of colliders in the world."`
	WorldSize     float64 `cli:",hidden" env:"BROADPHASE_WORLD_SIZE"     help:"The edge length of the world cube."`
	RegionWidth   float64 `cli:",hidden" env:"BROADPHASE_REGION_WIDTH"   help:"The edge length of a region."`
	Speed         float64 `cli:",hidden" env:"BROADPHASE_SPEED"          help:"The maximum distance a collider moves per frame on each axis."`
	ChurnRate     float64 `cli:",hidden" env:"BROADPHASE_CHURN_RATE"     help:"The probability for a collider to be replaced each frame."`
	Seed          int64   `cli:",hidden" env:"BROADPHASE_SEED"           help:"The world random seed."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"BROADPHASE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"BROADPHASE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"BROADPHASE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"BROADPHASE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		KeyframeInterval:   replication.DefaultKeyframeInterval,
		World: worldConfig{
			ColliderCount: 1000,
			WorldSize:     200,
			RegionWidth:   20,
			Speed:         0.5,
			ChurnRate:     0.01,
			Seed:          time.Now().UnixNano(),
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the broadphase soak server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "broadphase",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)

	world := soak.NewWorld(soak.Options{
		ColliderCount: conf.World.ColliderCount,
		WorldSize:     float32(conf.World.WorldSize),
		RegionWidth:   float32(conf.World.RegionWidth),
		Speed:         float32(conf.World.Speed),
		ChurnRate:     conf.World.ChurnRate,
		Seed:          conf.World.Seed,
	})

	publisher, err := replication.NewPublisher(replication.PublisherOptions{
		KeyframeInterval: conf.KeyframeInterval,
	})
	if err != nil {
		logs.Fatal(err)
	}
	defer publisher.Close()

	replica, err := replication.NewReplica()
	if err != nil {
		logs.Fatal(err)
	}
	defer replica.Close()

	hub := bwebsocket.NewHub()
	defer hub.Close()

	loop := soakLoop{
		frameDuration: conf.FrameDuration,
		flags:         flags,
		world:         world,
		publisher:     publisher,
		replica:       replica,
		hub:           hub,
	}

	var service http.ServeMux
	service.Handle("/replicate", bwebsocket.Handler(hub, bwebsocket.HandlerOptions{
		SummaryInterval: conf.LogSummaryInterval,
	}))
	service.HandleFunc("/health", bphttp.HandleHealthCheck)
	service.HandleFunc("/version", bphttp.HandleVersion(version))
	service.HandleFunc("/ready", bphttp.HandleReadyCheck(loop.ready))
	service.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Broadphase %s", version),
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("results", res).Info("smoke test completed")
			return nil
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", bphttp.HandleHealthCheck)
	admin.HandleFunc("/status", bphttp.HandleStatus(loop.status))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", bphttp.HandleReadyCheck(loop.ready))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("stream_id", publisher.StreamID()).
		WithTag("feature_flags", flags.Strings()).
		Info("starting broadphase soak server")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.run(ctx)
	})
	g.Go(func() error {
		bphttp.ListenAndServe(ctx,
			&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
				bphttp.MetricsPathFormatter)},
			&http.Server{Addr: conf.AdminAddr, Handler: &admin},
		)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logs.Fatal(errors.New("soak server stopped").Wrap(err))
	}
}

func validateConfig(conf config) error {
	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.World.ColliderCount < 0 {
		return errors.New("collider count can't be negative").
			WithTag("collider_count", conf.World.ColliderCount)
	}

	if conf.World.RegionWidth <= 0 || conf.World.WorldSize <= 0 {
		return errors.New("world and region sizes must be positive").
			WithTag("world_size", conf.World.WorldSize).
			WithTag("region_width", conf.World.RegionWidth)
	}

	return nil
}
