package tracker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/metrics"
	"github.com/theoremus-urban-solutions/transit-tracker/query"
)

// Server is the HTTP query surface over the tracker's snapshots.
type Server struct {
	srv *http.Server
}

// StartServer wires the query routes and starts listening in the background.
// col may be nil to run without a /metrics endpoint.
func StartServer(port int, svc *query.Service, engine *Engine, col *metrics.Collector) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealth(svc, engine))
	mux.HandleFunc("/api/trip-status", handleTripStatus(svc))
	mux.HandleFunc("/api/trip-statuses", handleTripStatuses(svc))
	mux.HandleFunc("/api/vehicle-position", handleVehiclePosition(svc))
	mux.HandleFunc("/api/next-arrivals", handleNextArrivals(svc))
	mux.HandleFunc("/api/alerts", handleAlerts(svc))
	if col != nil {
		mux.Handle("/metrics", col.Handler())
	}

	addr := fmt.Sprintf(":%d", port)
	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on %s", addr)
	return s
}

// HandleGracefulShutdown blocks until SIGINT or SIGTERM, then drains the
// server with a bounded deadline.
func (s *Server) HandleGracefulShutdown() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	} else {
		log.Printf("server shut down successfully")
	}
}
