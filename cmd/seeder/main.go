// Seeder tool for loading auction sale records into Gavel.
//
// Usage:
//   go run cmd/seeder/main.go -db ./gavel.db -count 5000
//   go run cmd/seeder/main.go -db ./gavel.db -csv /path/to/sales.csv
//
// This tool:
//   1. Reads sale records from a CSV export, or generates a synthetic market
//   2. Writes them to the repository in batches
//   3. Optionally warms the analysis cache through a running Gavel instance
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/repository"
)

// Synthetic market shape. Each make carries a base price; damage and
// location adjust it so the analyzer has real spreads to find.
var (
	makes = []struct {
		Make   string
		Models []string
		Base   float64
	}{
		{"ford", []string{"f-150", "escape", "fusion"}, 9500},
		{"toyota", []string{"camry", "corolla", "rav4"}, 11000},
		{"honda", []string{"civic", "accord", "cr-v"}, 10500},
		{"chevrolet", []string{"silverado", "malibu", "equinox"}, 9000},
		{"nissan", []string{"altima", "rogue", "sentra"}, 8000},
	}

	damages = []struct {
		Kind   string
		Factor float64
	}{
		{"front-end", 0.85},
		{"rear-end", 0.88},
		{"side", 0.82},
		{"hail", 0.95},
		{"flood", 0.60},
		{"mechanical", 0.75},
	}

	locations = []struct {
		Yard   string
		Factor float64
	}{
		{"dallas-tx", 1.00},
		{"phoenix-az", 0.97},
		{"atlanta-ga", 1.03},
		{"chicago-il", 1.05},
		{"miami-fl", 0.92},
	}

	sources = []string{"copart", "iaai", "manheim"}
)

func main() {
	dbPath := flag.String("db", "./gavel.db", "Path to the Gavel SQLite database")
	csvPath := flag.String("csv", "", "Optional CSV file of sale records to import")
	tenantID := flag.String("tenant", "seed-tenant", "Tenant ID to seed records under")
	count := flag.Int("count", 5000, "Number of synthetic records to generate (ignored with -csv)")
	days := flag.Int("days", 90, "Spread synthetic sale dates over this many past days")
	batchSize := flag.Int("batch", 500, "Records per repository write")
	warmURL := flag.String("warm", "", "Optional Gavel base URL to run a warm-up analysis per make")
	seed := flag.Int64("seed", 0, "Random seed (0 = time-based)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	fmt.Println("Gavel seeder")
	fmt.Printf("  Database: %s\n", *dbPath)
	fmt.Printf("  Tenant:   %s\n", *tenantID)
	if *csvPath != "" {
		fmt.Printf("  CSV:      %s\n", *csvPath)
	} else {
		fmt.Printf("  Records:  %d synthetic over %d days (seed %d)\n", *count, *days, *seed)
	}
	fmt.Println()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: *dbPath,
	})
	if err != nil {
		fmt.Printf("ERROR: failed to open repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	var records []*domain.Record
	if *csvPath != "" {
		records, err = readSalesCSV(*csvPath, *tenantID)
		if err != nil {
			fmt.Printf("ERROR: failed to read CSV: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %d records from CSV\n", len(records))
	} else {
		records = generateRecords(rng, *tenantID, *count, *days)
		fmt.Printf("Generated %d synthetic records\n", len(records))
	}

	ctx := context.Background()
	start := time.Now()
	saved := 0
	for i := 0; i < len(records); i += *batchSize {
		end := i + *batchSize
		if end > len(records) {
			end = len(records)
		}
		n, err := repo.SaveRecords(ctx, *tenantID, records[i:end])
		if err != nil {
			fmt.Printf("ERROR: batch %d failed: %v\n", i / *batchSize, err)
			os.Exit(1)
		}
		saved += n
	}
	fmt.Printf("Saved %d records in %v\n", saved, time.Since(start).Round(time.Millisecond))

	if *warmURL != "" {
		warmCache(*warmURL, *tenantID)
	}
}

// readSalesCSV imports records from a CSV export. Expected columns (any
// order, matched by header name): make, model, year, damage, location,
// source, price, status, sold_at (RFC 3339 or 2006-01-02).
func readSalesCSV(path, tenantID string) ([]*domain.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"make", "model", "year", "price"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []*domain.Record
	now := time.Now().UTC()

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		year, _ := strconv.Atoi(field(row, "year"))
		price, _ := strconv.ParseFloat(field(row, "price"), 64)

		soldAt := now
		if raw := field(row, "sold_at"); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				soldAt = t
			} else if t, err := time.Parse("2006-01-02", raw); err == nil {
				soldAt = t
			}
		}

		status := domain.SaleStatus(field(row, "status"))
		if status == "" {
			status = domain.SaleSold
		}

		records = append(records, &domain.Record{
			ID:       uuid.New().String(),
			TenantID: tenantID,
			Make:     strings.ToLower(field(row, "make")),
			Model:    strings.ToLower(field(row, "model")),
			Year:     year,
			Damage:   strings.ToLower(field(row, "damage")),
			Location: strings.ToLower(field(row, "location")),
			Source:   strings.ToLower(field(row, "source")),
			Price:    price,
			Status:   status,
			SoldAt:   soldAt,
		})
	}

	return records, nil
}

// generateRecords builds a synthetic market. Prices combine a per-make
// base with damage and location factors plus noise, so every dimension
// the analyzer partitions on has genuine structure.
func generateRecords(rng *rand.Rand, tenantID string, count, days int) []*domain.Record {
	records := make([]*domain.Record, 0, count)
	now := time.Now().UTC()

	for i := 0; i < count; i++ {
		mk := makes[rng.Intn(len(makes))]
		model := mk.Models[rng.Intn(len(mk.Models))]
		dmg := damages[rng.Intn(len(damages))]
		loc := locations[rng.Intn(len(locations))]
		year := 2012 + rng.Intn(12)

		// Newer years hold value; noise keeps partitions from being flat.
		age := float64(2024 - year)
		price := mk.Base * dmg.Factor * loc.Factor * (1 - 0.04*age)
		price *= 0.85 + rng.Float64()*0.3

		status := domain.SaleSold
		switch {
		case rng.Float64() < 0.05:
			status = domain.SaleNotSold
			price = 0
		case rng.Float64() < 0.03:
			status = domain.SaleOnApproval
		}

		soldAt := now.Add(-time.Duration(rng.Intn(days*24)) * time.Hour)

		records = append(records, &domain.Record{
			ID:       uuid.New().String(),
			TenantID: tenantID,
			Make:     mk.Make,
			Model:    model,
			Year:     year,
			Damage:   dmg.Kind,
			Location: loc.Yard,
			Source:   sources[rng.Intn(len(sources))],
			Price:    price,
			Status:   status,
			SoldAt:   soldAt,
		})
	}

	return records
}

// warmCache runs one opportunity scan per make against a live instance so
// the first real request hits the cache.
func warmCache(baseURL, tenantID string) {
	fmt.Printf("\nWarming analysis cache via %s...\n", baseURL)
	client := &http.Client{Timeout: 30 * time.Second}

	if err := checkHealth(client, baseURL); err != nil {
		fmt.Printf("WARNING: Gavel not reachable at %s: %v\n", baseURL, err)
		return
	}

	for _, mk := range makes {
		req := domain.AnalysisRequest{
			Type:   domain.AnalysisOpportunityScan,
			Filter: domain.Filter{Makes: []string{mk.Make}},
		}
		body, err := json.Marshal(req)
		if err != nil {
			fmt.Printf("  %-10s ERROR: %v\n", mk.Make, err)
			continue
		}

		httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyses", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("  %-10s ERROR: %v\n", mk.Make, err)
			continue
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Tenant-ID", tenantID)

		start := time.Now()
		resp, err := client.Do(httpReq)
		if err != nil {
			fmt.Printf("  %-10s ERROR: %v\n", mk.Make, err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		fmt.Printf("  %-10s status %d in %v\n", mk.Make, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
