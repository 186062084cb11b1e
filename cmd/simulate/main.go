// simulate registers a pool of patients and then races them against each
// other booking the same doctors' slots, to demonstrate that concurrent
// bookings of one slot yield exactly one success and clean conflicts for
// the rest.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
)

type SimConfig struct {
	APIBaseURL string
	Workers    int
	Patients   int
	Duration   time.Duration
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

var logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "simulate").Logger()

func main() {
	cfg := loadSimConfig()
	logger.Info().
		Str("api", cfg.APIBaseURL).
		Int("workers", cfg.Workers).
		Int("patients", cfg.Patients).
		Dur("duration", cfg.Duration).
		Msg("simulation starting")

	gofakeit.Seed(time.Now().UnixNano())
	client := &http.Client{Timeout: 10 * time.Second}

	tokens, err := registerPatients(client, cfg.APIBaseURL, cfg.Patients)
	if err != nil {
		logger.Fatal().Err(err).Msg("register patients")
	}

	doctors, err := fetchDoctors(client, cfg.APIBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch doctors")
	}
	if len(doctors) == 0 {
		logger.Fatal().Msg("no doctors available, run cmd/seed first")
	}

	slots, err := fetchOpenSlots(client, cfg.APIBaseURL, tokens[0], doctors[0])
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch slots")
	}
	if len(slots) == 0 {
		logger.Fatal().Msg("no open slots in the window")
	}
	logger.Info().Int("doctors", len(doctors)).Int("open_slots", len(slots)).Msg("pool ready")

	metrics := &OperationMetrics{}
	deadline := time.Now().Add(cfg.Duration)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker) + time.Now().UnixNano()))
			for time.Now().Before(deadline) {
				token := tokens[rng.Intn(len(tokens))]
				doctor := doctors[0] // everybody fights over one doctor's slots
				slot := slots[rng.Intn(len(slots))]
				bookOnce(client, cfg.APIBaseURL, token, doctor, slot, metrics)
			}
		}(w)
	}
	wg.Wait()

	avg, p50, p95 := metrics.Stats()
	logger.Info().
		Int64("total", metrics.Total).
		Int64("success", metrics.Success).
		Int64("conflict", metrics.Conflict).
		Int64("error", metrics.Error).
		Dur("latency_avg", avg).
		Dur("latency_p50", p50).
		Dur("latency_p95", p95).
		Msg("simulation finished")

	if metrics.Success > int64(len(slots)) {
		logger.Error().
			Int64("success", metrics.Success).
			Int("open_slots", len(slots)).
			Msg("MORE SUCCESSFUL BOOKINGS THAN OPEN SLOTS: double-booking occurred")
		os.Exit(1)
	}
	logger.Info().Msg("no double-booking observed")
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:    getEnvInt("SIM_WORKERS", 16),
		Patients:   getEnvInt("SIM_PATIENTS", 32),
		Duration:   10 * time.Second,
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	return cfg
}

func registerPatients(client *http.Client, baseURL string, count int) ([]string, error) {
	tokens := make([]string, 0, count)
	for i := 0; i < count; i++ {
		body, _ := json.Marshal(map[string]any{
			"email":    fmt.Sprintf("sim-%d-%d@example.com", time.Now().UnixNano(), i),
			"name":     gofakeit.Name(),
			"password": "simulate-pass",
		})
		resp, err := client.Post(baseURL+"/auth/register", "application/json", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		var out struct {
			Token string `json:"token"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusCreated || out.Token == "" {
			return nil, fmt.Errorf("register returned status %d", resp.StatusCode)
		}
		tokens = append(tokens, out.Token)
	}
	return tokens, nil
}

func fetchDoctors(client *http.Client, baseURL string) ([]string, error) {
	resp, err := client.Get(baseURL + "/doctors")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doctors []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doctors); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(doctors))
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func fetchOpenSlots(client *http.Client, baseURL, token, doctorID string) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/doctors/"+doctorID+"/slots", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var days []struct {
		Slots []struct {
			Slot string `json:"slot"`
			Open bool   `json:"open"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&days); err != nil {
		return nil, err
	}

	var open []string
	for _, day := range days {
		for _, s := range day.Slots {
			if s.Open {
				open = append(open, s.Slot)
			}
		}
	}
	return open, nil
}

func bookOnce(client *http.Client, baseURL, token, doctorID, slot string, metrics *OperationMetrics) {
	body, _ := json.Marshal(map[string]string{
		"doctor_id": doctorID,
		"slot":      slot,
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		metrics.Record(0, false, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		metrics.Record(latency, false, false)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	metrics.Record(latency,
		resp.StatusCode == http.StatusCreated,
		resp.StatusCode == http.StatusConflict)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
