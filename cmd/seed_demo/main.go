package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/config"
	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/logging"
	"github.com/xelth-com/eckscan/internal/models"
	"github.com/xelth-com/eckscan/internal/utils"
)

type product struct {
	ID   string
	Name string
}

var catalogue = []product{
	{"SKU001", "Laptop Dell XPS 13"},
	{"SKU002", "Mouse Logitech MX"},
	{"SKU003", "Keyboard RGB"},
	{"SKU004", "USB Hub 7-Port"},
	{"SKU005", "Monitor LG 27in"},
	{"SKU006", "Webcam Logitech"},
	{"SKU007", "Headphone Sony"},
	{"SKU008", "SSD Samsung 970"},
	{"SKU009", "RAM Corsair 16GB"},
	{"SKU010", "Power Supply 650W"},
}

var cameras = []string{"camera_1", "camera_2", "camera_3"}

func main() {
	var (
		envFile  = pflag.String("env-file", ".env", "dotenv file to load")
		count    = pflag.Int("count", 50, "number of scans to seed")
		spread   = pflag.Duration("spread", 7*24*time.Hour, "scan times are spread over this trailing window")
		dbDriver = pflag.String("db-driver", "", "sqlite or postgres (overrides DB_DRIVER)")
	)
	pflag.Parse()

	fmt.Println("🌱 QR Scanner Demo Data Seeder")

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	log, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store := database.Open(cfg.Database, log)
	defer store.Close()
	if store.Backend() == database.BackendMemory {
		log.Warn("Seeding the in-memory fallback; data is lost on exit")
	}

	// Each scan is stamped with a random time inside the spread
	now := time.Now().UTC()
	var at time.Time
	pipeline := ingest.NewPipeline(store, utils.NewDeduplicator(0, utils.DefaultDedupCapacity), nil, log, ingest.Options{
		Now: func() time.Time { return at },
	})

	ctx := context.Background()
	tally := map[models.Outcome]int{}
	for i := 0; i < *count; i++ {
		p := catalogue[i%len(catalogue)]
		at = now.Add(-time.Duration(rand.Int63n(int64(*spread))))
		code := fmt.Sprintf("%s|%s|QR-%05d", p.ID, p.Name, i)

		res := pipeline.Ingest(ctx, code, cameras[rand.Intn(len(cameras))], ingest.Meta{
			ProcessingTimeMs: 20 + rand.Int63n(100),
			Confidence:       0.80 + rand.Float64()*0.20,
		})
		tally[res.Status]++
		if !res.OK() {
			continue
		}
		if rand.Float64() > 0.1 {
			if err := store.UpdateStatus(ctx, res.ScanID, models.ScanStatusProcessed); err != nil {
				log.Warn("Status update failed", zap.Uint64("scan_id", res.ScanID), zap.Error(err))
			}
		}
	}

	fmt.Printf("✅ Seeded: %d new, %d duplicate, %d invalid, %d failed\n",
		tally[models.OutcomeSuccess], tally[models.OutcomeDuplicate], tally[models.OutcomeInvalid], tally[models.OutcomeError])

	stats, err := store.GetStatistics(ctx, models.StatsQuery{Since: now.Add(-*spread)})
	if err != nil {
		log.Error("Summary failed", zap.Error(err))
		return
	}
	fmt.Printf("📊 %d scans, %d pending, avg processing %.1f ms, avg confidence %.2f\n",
		stats.TotalScans, stats.Pending, stats.AvgProcessingTime, stats.AvgConfidence)
}
