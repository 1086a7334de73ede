package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caselens/timeline-back/internal/extract"
	httpserver "github.com/caselens/timeline-back/internal/http"
	"github.com/caselens/timeline-back/internal/http/handlers"
	"github.com/caselens/timeline-back/internal/queue"
	"github.com/caselens/timeline-back/internal/repository"
	"github.com/caselens/timeline-back/internal/service"
	"github.com/caselens/timeline-back/internal/state"
	"github.com/caselens/timeline-back/internal/textsource"
	"github.com/caselens/timeline-back/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	cancel context.CancelFunc
}

func main() {
	registerTotal := flag.Int("register-total", 240, "total document register requests")
	registerConcurrency := flag.Int("register-concurrency", 24, "concurrency for register requests")
	statusTotal := flag.Int("status-total", 200, "total status poll requests")
	statusConcurrency := flag.Int("status-concurrency", 20, "concurrency for status poll requests")
	pipelineTotal := flag.Int("pipeline-total", 80, "total end-to-end register-to-completed runs")
	pipelineConcurrency := flag.Int("pipeline-concurrency", 12, "concurrency for end-to-end runs")
	documentChars := flag.Int("document-chars", 48000, "size of the synthetic extracted text")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	documentText := syntheticDocument(*documentChars)
	var idCounter int64

	registerScenario := runScenario("documents_register", *registerTotal, *registerConcurrency, func(index int) error {
		requestID := atomic.AddInt64(&idCounter, 1)
		payload := map[string]any{
			"owner_id":       fmt.Sprintf("owner-%d", index%32),
			"filename":       fmt.Sprintf("case-%d.pdf", index),
			"extracted_text": documentText,
		}
		headers := map[string]string{
			"Idempotency-Key": fmt.Sprintf("register-%d-%d", requestID, time.Now().UnixNano()),
		}
		_, err := postJSON(client, env.server.URL+"/v1/documents", payload, headers, http.StatusAccepted)
		return err
	})

	// Seed one document so the status scenario polls a stable target.
	seedBody, err := postJSON(client, env.server.URL+"/v1/documents", map[string]any{
		"owner_id":       "owner-status",
		"filename":       "seed.pdf",
		"extracted_text": documentText,
	}, nil, http.StatusAccepted)
	if err != nil {
		log.Fatalf("failed to seed status document: %v", err)
	}
	seedDocumentID, _ := seedBody["document_id"].(string)

	statusScenario := runScenario("documents_status", *statusTotal, *statusConcurrency, func(int) error {
		return getJSON(client, env.server.URL+"/v1/documents/"+seedDocumentID, http.StatusOK)
	})

	pipelineScenario := runScenario("pipeline_register_to_completed", *pipelineTotal, *pipelineConcurrency, func(index int) error {
		payload := map[string]any{
			"owner_id":       fmt.Sprintf("owner-e2e-%d", index%16),
			"filename":       fmt.Sprintf("e2e-%d.pdf", index),
			"extracted_text": documentText,
		}
		body, err := postJSON(client, env.server.URL+"/v1/documents", payload, nil, http.StatusAccepted)
		if err != nil {
			return err
		}
		documentID, _ := body["document_id"].(string)
		if strings.TrimSpace(documentID) == "" {
			return fmt.Errorf("register response missing document_id")
		}
		return waitForCompleted(client, env.server.URL, documentID, 8*time.Second)
	})

	results := []scenarioResult{
		registerScenario,
		statusScenario,
		pipelineScenario,
	}

	slo := map[string]bool{
		"register_endpoint_p95_le_500ms":  registerScenario.P95MS <= 500,
		"status_endpoint_p95_le_200ms":    statusScenario.P95MS <= 200,
		"pipeline_e2e_mock_p95_le_5000ms": pipelineScenario.P95MS <= 5000,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	repo := repository.NewMemoryDocumentsRepository()
	texts := textsource.NewMemoryStore()
	localQueue := queue.NewLocalQueue(4096, 3, logger)

	coordinator := extract.NewCoordinator(extract.NewMockExtractor(), extract.CoordinatorConfig{
		ConcurrencyLimit: 4,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
	}, logger)
	orchestrator := service.NewOrchestrator(service.OrchestratorDependencies{
		Machine:      state.NewMachine(repo),
		TextSource:   texts,
		Coordinator:  coordinator,
		MaxChunkSize: 10000,
		Logger:       logger,
	})

	documentsService := service.NewDocumentsService(repo, texts, localQueue)
	api := handlers.NewAPI(documentsService)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, orchestrator, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server: server,
		cancel: cancel,
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func waitForCompleted(client *http.Client, baseURL, documentID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := baseURL + "/v1/documents/" + documentID
	for time.Now().Before(deadline) {
		request, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		response, err := client.Do(request)
		if err != nil {
			return err
		}
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		response.Body.Close()
		if response.StatusCode != http.StatusOK {
			return fmt.Errorf("status poll returned %d: %s", response.StatusCode, string(raw))
		}

		var decoded struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode status body: %w", err)
		}
		switch decoded.Status {
		case "completed":
			return nil
		case "failed":
			return fmt.Errorf("document %s failed", documentID)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("document %s did not complete within %s", documentID, timeout)
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if response.StatusCode != expectedStatus {
		return nil, fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}

	decoded := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return decoded, nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func syntheticDocument(chars int) string {
	if chars <= 0 {
		chars = 48000
	}
	paragraph := "On January 15, 2023 the parties executed the master services agreement. " +
		"A dispute notice was served on March 2, 2023 and the response followed within ten days. " +
		"The tribunal scheduled a preliminary hearing for June 9, 2023 in the seat of arbitration. "
	var builder strings.Builder
	builder.Grow(chars + len(paragraph))
	for builder.Len() < chars {
		builder.WriteString(paragraph)
	}
	return builder.String()[:chars]
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
