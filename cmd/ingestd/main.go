// Command ingestd runs the grants-registry ingestion pipeline: four stage
// workers (fetch, pdf, llm, embed) driven by NATS wake-ups over a Postgres
// CAS-backed staging queue, plus an HTTP surface for health, metrics, and
// synchronous hybrid search. Grounded on cmd/ingest's connect-everything-
// then-serve shape, generalized from a single-stage directory watcher to a
// four-stage NATS-driven daemon.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/internal/embedclient"
	"github.com/wessley-grants/ingestor/internal/extractor"
	"github.com/wessley-grants/ingestor/internal/metrics"
	"github.com/wessley-grants/ingestor/internal/pdfprocess"
	"github.com/wessley-grants/ingestor/internal/pipeline"
	"github.com/wessley-grants/ingestor/internal/registryclient"
	"github.com/wessley-grants/ingestor/internal/store"
	"github.com/wessley-grants/ingestor/pkg/mid"
)

const vectorDims = 768 // gemini embedding-001 output dimensions

func main() {
	var (
		pgDSN        = flag.String("postgres", "postgres://localhost:5432/grants?sslmode=disable", "Postgres DSN")
		qdrantAddr   = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection   = flag.String("collection", "grants", "Qdrant collection name")
		natsURL      = flag.String("nats", nats.DefaultURL, "NATS server URL")
		registryURL  = flag.String("registry", "https://www.pap.hacienda.gob.es/bdnstrans/api", "Registry API base URL")
		llmURL       = flag.String("llm", "https://generativelanguage.googleapis.com/v1beta", "LLM API base URL")
		llmKey       = flag.String("llm-key", os.Getenv("LLM_API_KEY"), "LLM API key")
		llmModel     = flag.String("llm-model", "gemini-1.5-flash", "LLM model name")
		embedKey     = flag.String("embed-key", os.Getenv("EMBED_API_KEY"), "Embedding API key")
		embedModel   = flag.String("embed-model", "embedding-001", "Embedding model name")
		storeRoot    = flag.String("store-root", "/var/lib/ingestor/documents", "PDF artifact store root")
		httpAddr     = flag.String("http", ":9090", "health/metrics/search HTTP listen address")
		pollInterval = flag.Duration("poll-interval", 30*time.Second, "fallback poll interval per stage")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := sql.Open("pgx", *pgDSN)
	if err != nil {
		log.Error("postgres open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	pgStore, err := store.NewPGStore(ctx, *pgDSN)
	if err != nil {
		log.Error("pgstore connect failed", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	log.Info("connected to Postgres")

	vectors, err := store.NewVectorIndex(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", vectorDims)

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	log.Info("connected to NATS", "url", *natsURL)

	coord := &pipeline.Coordinator{
		Store:          pgStore,
		Vectors:        vectors,
		Registry:       registryclient.New(*registryURL),
		PDF:            pdfprocess.NewProcessor(*storeRoot),
		LLM:            extractor.New(*llmURL, *llmKey, *llmModel),
		Embed:          embedclient.New(*llmURL, *embedKey, *embedModel),
		Queue:          pipeline.NewNATSQueue(nc),
		Log:            log,
		EmbeddingModel: *embedModel,
	}

	var subs []pipeline.Subscription
	for _, stage := range domain.StageOrder {
		sub, err := coord.RunStageWorker(stage)
		if err != nil {
			log.Error("stage worker start failed", "stage", stage, "error", err)
			os.Exit(1)
		}
		subs = append(subs, sub)
		log.Info("stage worker started", "stage", stage)
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	// Poll tick per stage, as a backstop for wake-ups lost to a restart or a
	// dropped NATS message — Postgres remains authoritative either way.
	go pollLoop(ctx, coord, *pollInterval, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", searchHandler(coord))

	srv := &http.Server{
		Addr:    *httpAddr,
		Handler: mid.Chain(mux, mid.Logger(log), mid.Recover(log), mid.OTel("ingestd")),
	}
	go func() {
		log.Info("http server listening", "addr", *httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
		}
	}()

	metrics.Uptime.Set(float64(time.Now().Unix()))

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// pollLoop periodically wakes every stage so pending items left behind by a
// dropped NATS message or a prior process's restart still get claimed.
func pollLoop(ctx context.Context, coord *pipeline.Coordinator, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stage := range domain.StageOrder {
				if err := coord.Queue.Publish(ctx, stage, pipeline.WakeUp{}); err != nil {
					log.Warn("poll wake-up failed", "stage", stage, "error", err)
				}
			}
		}
	}
}

func searchHandler(coord *pipeline.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing q parameter", http.StatusBadRequest)
			return
		}
		filter := store.Filter{Keyword: map[string]string{}}
		if instrument := r.URL.Query().Get("instrument"); instrument != "" {
			filter.Keyword["instrument"] = instrument
		}
		opts := pipeline.DefaultSearchOptions()
		if k := r.URL.Query().Get("k"); k != "" {
			if n, err := strconv.Atoi(k); err == nil {
				opts.TopK = n
			}
		}
		if ms := r.URL.Query().Get("min_similarity"); ms != "" {
			if f, err := strconv.ParseFloat(ms, 32); err == nil {
				opts.MinSimilarity = float32(f)
			}
		}
		results, err := coord.Search(r.Context(), q, filter, opts)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(results)
	}
}
