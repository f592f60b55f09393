//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atende-labs/atendai/internal/api/handlers"
	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/atende-labs/atendai/internal/bridge"
	"github.com/atende-labs/atendai/internal/cachestore"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/jobs"
	"github.com/atende-labs/atendai/internal/orchestrator"
	"github.com/atende-labs/atendai/internal/repository"
	"github.com/atende-labs/atendai/internal/retrieval"
	"github.com/atende-labs/atendai/internal/server"
	"github.com/atende-labs/atendai/internal/storage"
	"github.com/atende-labs/atendai/internal/tenant"
	"github.com/atende-labs/atendai/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	tenantKeyToken = "e2e-tenant-key"
	adminKeyToken  = "e2e-admin-key"
	archiveMaxAge  = 30 * 24 * time.Hour
)

// E2ETestEnv holds all resources needed for E2E tests: containers, the
// in-process API server and the fake upstream services it talks to.
type E2ETestEnv struct {
	T             *testing.T
	Ctx           context.Context
	PostgresC     *testutil.PostgresContainer
	RustFSC       *testutil.RustFSContainer
	Pool          *pgxpool.Pool
	Knowledge     *repository.KnowledgeRepository
	Conversations *repository.ConversationRepository
	ConfigService *fakeConfigService
	Backend       *fakeBackend
	ConfigCache   *tenant.Cache
	Embedder      *localEmbedder
	S3Client      *storage.S3Client
	Archiver      *jobs.Archiver
	Server        *httptest.Server
	HTTPClient    *http.Client
}

// SetupE2EEnv creates a full E2E test environment: Postgres and RustFS
// containers, fake config-service and operational-backend servers, and the
// complete orchestration stack behind a real router.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)

	configService := newFakeConfigService()
	backend := newFakeBackend()

	configClient := tenant.NewClient(tenant.ClientConfig{BaseURL: configService.URL()})
	configCache := tenant.NewCache(configClient, tenant.CacheConfig{TTL: time.Minute})

	embedder := &localEmbedder{}
	store := cachestore.NewMemoryStore()
	engine := retrieval.NewEngine(embedder, knowledgeRepo, knowledgeRepo, knowledgeRepo, configCache, store, retrieval.EngineConfig{})

	invoker := bridge.NewHTTPInvoker(backend.URL(), &http.Client{Timeout: 2 * time.Second})
	executor := bridge.NewExecutor(invoker, bridge.ExecutorConfig{})

	classifier := orchestrator.NewRuleClassifier(nil)
	builder := orchestrator.NewBuilder(classifier, engine, executor, orchestrator.BuilderConfig{})
	scheduler := orchestrator.NewScheduler(nil)
	orchestratorSvc := orchestrator.NewService(configCache, builder, scheduler, conversationRepo, nil, orchestrator.ServiceConfig{})

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-transcripts",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	keyRing := middleware.NewStaticKeyRing(fmt.Sprintf("%s=acme,%s=*", tenantKeyToken, adminKeyToken))

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:       keyRing,
		MessageHandler:      handlers.NewMessageHandler(orchestratorSvc),
		InvalidationHandler: handlers.NewInvalidationHandler(configCache, engine),
		ConversationHandler: handlers.NewConversationHandler(conversationRepo),
	})
	srv := httptest.NewServer(router)

	return &E2ETestEnv{
		T:             t,
		Ctx:           ctx,
		PostgresC:     pgC,
		RustFSC:       s3C,
		Pool:          pool,
		Knowledge:     knowledgeRepo,
		Conversations: conversationRepo,
		ConfigService: configService,
		Backend:       backend,
		ConfigCache:   configCache,
		Embedder:      embedder,
		S3Client:      s3Client,
		Archiver:      jobs.NewArchiver(conversationRepo, s3Client, archiveMaxAge),
		Server:        srv,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.ConfigCache != nil {
		e.ConfigCache.Stop()
	}
	if e.ConfigService != nil {
		e.ConfigService.Close()
	}
	if e.Backend != nil {
		e.Backend.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// SeedKnowledge upserts an item and indexes its embedding the way the
// import command would, using the same embedder the engine queries with.
func (e *E2ETestEnv) SeedKnowledge(item *domain.KnowledgeItem, inStock *bool) {
	e.T.Helper()

	if err := e.Knowledge.Upsert(e.Ctx, item, true, inStock); err != nil {
		e.T.Fatalf("failed to seed knowledge item %s: %v", item.ID, err)
	}

	text := item.ProcessedText
	if text == "" {
		text = item.Content
	}
	vec, err := e.Embedder.Embed(e.Ctx, text)
	if err != nil {
		e.T.Fatalf("failed to embed item %s: %v", item.ID, err)
	}
	if err := e.Knowledge.SetEmbedding(e.Ctx, item.TenantID, item.ID, vec); err != nil {
		e.T.Fatalf("failed to set embedding for item %s: %v", item.ID, err)
	}
}

// SeedTurn appends a conversation turn with an explicit timestamp.
func (e *E2ETestEnv) SeedTurn(tenantID, conversationID, id string, role domain.TurnRole, content string, createdAt time.Time) {
	e.T.Helper()
	turn := domain.NewConversationTurn(id, tenantID, conversationID, role, content, createdAt)
	if err := e.Conversations.AppendTurn(e.Ctx, turn); err != nil {
		e.T.Fatalf("failed to seed turn %s: %v", id, err)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.Server.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// fakeConfigService stands in for the tenant configuration service. It
// serves whatever config snapshots the test installed, 404 otherwise.
type fakeConfigService struct {
	srv *httptest.Server

	mu      sync.Mutex
	configs map[string]*domain.TenantConfig
}

func newFakeConfigService() *fakeConfigService {
	f := &fakeConfigService{configs: make(map[string]*domain.TenantConfig)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "tenants" || parts[2] != "config" {
			http.NotFound(w, r)
			return
		}

		f.mu.Lock()
		cfg, ok := f.configs[parts[1]]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}))
	return f
}

func (f *fakeConfigService) URL() string {
	return f.srv.URL
}

// SetConfig installs or replaces a tenant's config snapshot.
func (f *fakeConfigService) SetConfig(cfg *domain.TenantConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.TenantID] = cfg
}

func (f *fakeConfigService) Close() {
	f.srv.Close()
}

// backendRequest captures one call the bridge made to the operational
// backend.
type backendRequest struct {
	Method   string
	Path     string
	TenantID string
	Body     []byte
}

// fakeBackend stands in for the tenant's operational system (ERP/OMS). It
// records every request and answers with a canned order status.
type fakeBackend struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []backendRequest
}

func newFakeBackend() *fakeBackend {
	f := &fakeBackend{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.requests = append(f.requests, backendRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			TenantID: r.Header.Get("X-Tenant-ID"),
			Body:     body,
		})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"em transporte"}`))
	}))
	return f
}

func (f *fakeBackend) URL() string {
	return f.srv.URL
}

// Requests returns a copy of the recorded backend calls.
func (f *fakeBackend) Requests() []backendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backendRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeBackend) Close() {
	f.srv.Close()
}

// localEmbedder is a deterministic bag-of-words embedder: each word bumps
// one hashed dimension, so texts sharing vocabulary land near each other
// under cosine distance. Good enough to rank seeded documents without a
// real embedding backend.
type localEmbedder struct{}

func (localEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 1536)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?")))
		vec[h.Sum32()%1536]++
	}
	// pgvector rejects zero vectors under cosine distance.
	vec[0]++
	return vec, nil
}
