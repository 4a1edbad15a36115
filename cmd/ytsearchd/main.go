// Command ytsearchd is a small status/debug server exposing scheduler
// and resource-monitor counters over HTTP. It is not the command
// surface (§1 Non-goals): no search or keyword-listing endpoints are
// exposed here, only operability metrics for whatever process embeds
// the ytsearch engine.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ytsearch "github.com/ejv2/ytsearch"
	"github.com/ejv2/ytsearch/internal/resource"
)

var (
	ListenAddr = flag.String("listen", ":8088", "Address to listen on, in the format [hostname]:port")
	APIKey     = flag.String("api-key", "", "YouTube Data API v3 key (overrides config file/env)")
)

func initialize(ctx context.Context) (*ytsearch.Services, error) {
	cfg, err := ytsearch.LoadConfig()
	if err != nil {
		return nil, err
	}
	if *APIKey != "" {
		cfg.APIKey = *APIKey
	}

	remote, err := ytsearch.NewYouTubeRemote(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	return ytsearch.NewServices(ctx, cfg, remote)
}

func handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleResources(mon *resource.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"cpu_usage_pct":   mon.CPUUsagePercent(),
			"memory_pressure": mon.MemoryPressure().String(),
		})
	}
}

func main() {
	log.Println("Starting ytsearchd...")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := initialize(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	defer services.Close()

	router := gin.New()
	srv := http.Server{
		Addr:              *ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", handleHealthz)
	router.GET("/resources", handleResources(services.Monitor))
	router.GET("/scheduler", func(c *gin.Context) {
		c.JSON(http.StatusOK, services.Scheduler.Reporter.Snapshot())
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	errchan := make(chan error, 1)
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt)

	go func() {
		errchan <- srv.ListenAndServe()
	}()

	log.Printf("ytsearchd listening on %s", *ListenAddr)

	select {
	case <-sigchan:
		log.Println("Caught interrupt signal. Terminating gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			if err == shutdownCtx.Err() {
				log.Println("Shutdown timeout reached. Terminating forcefully...")
				return
			}
			log.Fatal(err)
		}
	case err := <-errchan:
		if err != http.ErrServerClosed {
			log.Panic(err) // NOTREACHED: unless fatal error
		}
	}
}
