package main

import (
	"context"
	"log"

	tracker "github.com/theoremus-urban-solutions/transit-tracker"
	"github.com/theoremus-urban-solutions/transit-tracker/config"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/metrics"
	"github.com/theoremus-urban-solutions/transit-tracker/poller"
	"github.com/theoremus-urban-solutions/transit-tracker/publisher"
	"github.com/theoremus-urban-solutions/transit-tracker/query"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

func main() {
	tracker.InitLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// A schedule graph that fails validation is a startup failure, not
	// something to limp along without.
	graph, err := gtfs.NewScheduleGraphFromFile(cfg.GTFS.StaticZipPath, cfg.GTFS.AgencyID)
	if err != nil {
		log.Fatalf("load schedule graph from %s: %v", cfg.GTFS.StaticZipPath, err)
	}
	log.Printf("schedule graph loaded: %d routes, %d stops, %d trips", graph.RouteCount(), graph.StopCount(), graph.TripCount())

	col := metrics.NewCollector()

	var pub *publisher.NATSPublisher
	if cfg.NATS.URL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, col)
		if err != nil {
			log.Fatalf("connect nats at %s: %v", cfg.NATS.URL, err)
		}
		defer pub.Close()
		log.Printf("nats connected: %s", cfg.NATS.URL)
	}

	sources := make([]poller.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		sources = append(sources, poller.Source{
			ID:       f.Name,
			URL:      f.URL,
			Interval: f.Interval(),
			Timeout:  f.Timeout(),
			Retries:  f.Retries,
			Priority: f.Priority,
		})
	}

	store := tracking.NewStore(cfg.Tracker.HistoryDepth)
	rec := tracking.NewReconciler(graph, tracking.Config{
		OnTimeThreshold: cfg.Tracker.OnTimeThreshold(),
		Expiry:          cfg.Tracker.Expiry(),
	})
	engine := tracker.NewEngine(graph, store, rec, poller.New(sources), col, pub, tracker.EngineOptions{
		SkewTolerance:      cfg.Tracker.SkewTolerance(),
		StalenessThreshold: cfg.Tracker.StalenessThreshold(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	svc := query.NewService(store, graph, cfg.Tracker.StalenessThreshold())
	srv := tracker.StartServer(cfg.Server.Port, svc, engine, col)
	srv.HandleGracefulShutdown()
	cancel()
}
