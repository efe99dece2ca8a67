// Command ingestctl is the operator control CLI for the grants-registry
// ingestion pipeline: enqueue new grants, requeue failed items, inspect
// pipeline stats, and run ad-hoc hybrid searches. Grounded on cmd/backfill's
// connect-directly-and-run-one-operation shape, generalized from a single
// Neo4j graph-repair operation to several Postgres/Qdrant-backed
// subcommands (the operator-facing equivalent of original_source's
// reprocess_llm.py / backfill_pdf_urls.py / export_stats.py scripts).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/internal/embedclient"
	"github.com/wessley-grants/ingestor/internal/pipeline"
	"github.com/wessley-grants/ingestor/internal/registryclient"
	"github.com/wessley-grants/ingestor/internal/store"
)

const vectorDims = 768

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var (
		pgDSN       = flag.String("postgres", "postgres://localhost:5432/grants?sslmode=disable", "Postgres DSN")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "grants", "Qdrant collection name")
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL (wake-up publish is best-effort)")
		registryURL = flag.String("registry", "https://www.pap.hacienda.gob.es/bdnstrans/api", "Registry API base URL")
		llmURL      = flag.String("llm", "https://generativelanguage.googleapis.com/v1beta", "LLM/embedding API base URL")
		embedKey    = flag.String("embed-key", os.Getenv("EMBED_API_KEY"), "Embedding API key")
		embedModel  = flag.String("embed-model", "embedding-001", "Embedding model name")

		batchID          = flag.String("batch-id", "", "Batch id recorded on every staged item this run produces")
		maxItems         = flag.Int("max-items", 0, "Cap on items ingested by -purpose/-beneficiary/-only-open filter ingest (0 = unbounded)")
		purposeCode      = flag.String("purpose", "", "Filter ingest: registry purpose code (finalidad)")
		beneficiaryCodes = flag.String("beneficiary", "", "Filter ingest: comma-separated beneficiary codes")
		onlyOpen         = flag.Bool("only-open", false, "Filter ingest: restrict to currently open grants")
		minSimilarity    = flag.Float64("min-similarity", 0, "search/find-similar: minimum cosine similarity [0,1] (0 = no floor)")
		topK             = flag.Int("k", 10, "search/find-similar: number of results to return")
		force            = flag.Bool("force", false, "requeue: reprocess even if extraction_model already matches")
	)
	cmd := os.Args[1]
	flag.CommandLine.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pgStore, err := store.NewPGStore(ctx, *pgDSN)
	if err != nil {
		log.Fatalf("pgstore connect: %v", err)
	}
	defer pgStore.Close()

	nc, _ := nats.Connect(*natsURL) // best-effort: commands still work if NATS is down
	var queue pipeline.Queue
	if nc != nil {
		queue = pipeline.NewNATSQueue(nc)
		defer nc.Close()
	}

	switch cmd {
	case "ingest":
		runIngest(ctx, pgStore, queue, *registryURL, *batchID, *purposeCode, *beneficiaryCodes, *onlyOpen, *maxItems, flag.Args())
	case "requeue":
		runRequeue(ctx, pgStore, queue, *force, flag.Args())
	case "stats":
		runStats(ctx, pgStore)
	case "search":
		runSearch(ctx, *qdrantAddr, *collection, *llmURL, *embedKey, *embedModel, *topK, *minSimilarity, flag.Args())
	case "find-similar":
		runFindSimilar(ctx, pgStore, *qdrantAddr, *collection, *llmURL, *embedKey, *embedModel, *topK, *minSimilarity, flag.Args())
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: ingestctl <command> [args]

commands:
  ingest <external-id> [external-id...]   enqueue specific grants for fetch
  ingest -purpose=... -beneficiary=... -only-open -max-items=N
                                           enqueue grants matching a registry search filter
  requeue <staging-item-id>               reset a failed/skipped item to pending
  stats                                   print per-stage/status counts and coverage
  search <query>                          run a hybrid search against the vector index
  find-similar <grant-id>                 find grants most similar to the given grant

flags:
  -batch-id         batch id recorded on staged items (ingest)
  -max-items        cap on items enqueued by a filter ingest (0 = unbounded)
  -purpose          registry purpose code filter (ingest)
  -beneficiary      comma-separated beneficiary codes filter (ingest)
  -only-open        restrict filter ingest to open grants
  -min-similarity   minimum cosine similarity floor (search, find-similar)
  -k                number of results to return (search, find-similar)
  -force            reprocess llm stage even if extraction_model is unchanged (requeue)`)
}

// runIngest enqueues grants either by explicit external-id (existing
// behaviour, reporting duplicate vs newly-inserted) or, when no ids are
// given but a filter flag was set, by a registry search filter (spec §6
// ingest(filter, batch_id, max_items), scenario 2).
func runIngest(ctx context.Context, s *store.PGStore, q pipeline.Queue, registryURL, batchID, purposeCode, beneficiaryCodes string, onlyOpen bool, maxItems int, externalIDs []string) {
	if len(externalIDs) > 0 {
		for _, id := range externalIDs {
			item, inserted, err := s.UpsertStaging(ctx, id, batchID)
			if err != nil {
				log.Printf("ingest %s: %v", id, err)
				continue
			}
			if !inserted {
				fmt.Printf("duplicate %s (staging_item_id=%s)\n", id, item.ID)
				continue
			}
			if q != nil {
				_ = q.Publish(ctx, domain.StageFetch, pipeline.WakeUp{StagingItemID: item.ID})
			}
			fmt.Printf("enqueued %s (staging_item_id=%s)\n", id, item.ID)
		}
		return
	}

	var beneficiaries []string
	if beneficiaryCodes != "" {
		beneficiaries = strings.Split(beneficiaryCodes, ",")
	}
	filter := registryclient.SearchFilter{
		PurposeCode:      purposeCode,
		BeneficiaryCodes: beneficiaries,
		OnlyOpen:         onlyOpen,
	}

	coord := &pipeline.Coordinator{
		Store:    s,
		Queue:    q,
		Registry: registryclient.New(registryURL),
	}
	result, err := coord.IngestByFilter(ctx, filter, batchID, maxItems)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}

func runRequeue(ctx context.Context, s *store.PGStore, q pipeline.Queue, force bool, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "requeue: a staging-item-id is required")
		os.Exit(1)
	}
	for _, id := range ids {
		stage, err := s.Requeue(ctx, id)
		if err != nil {
			log.Printf("requeue %s: %v", id, err)
			continue
		}
		if q != nil {
			_ = q.Publish(ctx, stage, pipeline.WakeUp{StagingItemID: id, Force: force})
		}
		fmt.Printf("requeued %s (stage=%s)\n", id, stage)
	}
}

func runStats(ctx context.Context, s *store.PGStore) {
	stats, err := s.Stats(ctx)
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
}

func runSearch(ctx context.Context, qdrantAddr, collection, llmURL, embedKey, embedModel string, topK int, minSimilarity float64, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "search: a query string is required")
		os.Exit(1)
	}
	query := args[0]

	vectors, err := store.NewVectorIndex(qdrantAddr, collection)
	if err != nil {
		log.Fatalf("qdrant connect: %v", err)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, vectorDims); err != nil {
		log.Fatalf("ensure collection: %v", err)
	}

	coord := &pipeline.Coordinator{
		Vectors: vectors,
		Embed:   embedclient.New(llmURL, embedKey, embedModel),
	}
	opts := pipeline.DefaultSearchOptions()
	opts.TopK = topK
	opts.MinSimilarity = float32(minSimilarity)
	results, err := coord.Search(ctx, query, store.Filter{}, opts)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}

// runFindSimilar implements the find_similar control surface (spec §6): the
// k grants whose Extraction is most similar to the given grant's, excluding
// the grant itself.
func runFindSimilar(ctx context.Context, s *store.PGStore, qdrantAddr, collection, llmURL, embedKey, embedModel string, topK int, minSimilarity float64, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "find-similar: a grant-id is required")
		os.Exit(1)
	}
	grantID := args[0]

	vectors, err := store.NewVectorIndex(qdrantAddr, collection)
	if err != nil {
		log.Fatalf("qdrant connect: %v", err)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, vectorDims); err != nil {
		log.Fatalf("ensure collection: %v", err)
	}

	coord := &pipeline.Coordinator{
		Store:   s,
		Vectors: vectors,
		Embed:   embedclient.New(llmURL, embedKey, embedModel),
	}
	results, err := coord.FindSimilar(ctx, grantID, topK, float32(minSimilarity))
	if err != nil {
		log.Fatalf("find-similar: %v", err)
	}
	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
