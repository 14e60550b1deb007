package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/config"
	"github.com/ikkim/delivery-tracker/internal/app/controller"
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/db"
	"github.com/ikkim/delivery-tracker/internal/middleware"
	"github.com/ikkim/delivery-tracker/internal/router"
	ws "github.com/ikkim/delivery-tracker/internal/websocket"
	"github.com/ikkim/delivery-tracker/internal/worker"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const integrationSecret = "integration-secret"

type bucket struct {
	mu   sync.Mutex
	keys []string
}

func (b *bucket) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return nil
}

func (b *bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://bucket.example.com/" + key, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (r *recordingSender) Send(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[to] = append(r.sent[to], body)
	return nil
}

type TestServer struct {
	Router *gin.Engine
	DB     *gorm.DB
	Pool   *worker.Pool
	SMS    *recordingSender
	Store  model.Store
	tokens map[string]string
}

func setupIntegrationTest(t *testing.T) *TestServer {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	cfg := &config.Config{
		Server: config.ServerConfig{GinMode: gin.TestMode, SiteURL: "https://app.example.com"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
		Photo:  config.PhotoConfig{SignedURLTTL: 15 * time.Minute, MaxUploadBytes: 1 << 20},
	}

	ts := &TestServer{
		DB:     testDB,
		Pool:   worker.NewPool("notifications", 1, 16),
		SMS:    &recordingSender{sent: map[string][]string{}},
		Store:  model.Store{Name: "McKinney"},
		tokens: map[string]string{},
	}
	require.NoError(t, testDB.Create(&ts.Store).Error)

	hash, err := util.HashPassword("password123")
	require.NoError(t, err)
	staff := []model.User{
		{Username: "manager", IsManager: true},
		{Username: "driver", IsDriver: true},
	}
	for i := range staff {
		staff[i].Email = staff[i].Username + "@example.com"
		staff[i].PasswordHash = hash
		staff[i].IsActive = true
		staff[i].Stores = []model.Store{ts.Store}
		require.NoError(t, testDB.Create(&staff[i]).Error)
	}

	userRepo := repository.NewUserRepository(testDB)
	storeRepo := repository.NewStoreRepository(testDB)
	orderRepo := repository.NewOrderRepository(testDB)
	attemptRepo := repository.NewDeliveryAttemptRepository(testDB)
	templateRepo := repository.NewMessageTemplateRepository(testDB)

	authService := service.NewAuthService(userRepo, nil, integrationSecret, 15*time.Minute, 24*time.Hour)
	resetService := service.NewPasswordResetService(repository.NewPasswordResetRepository(testDB), userRepo, ts.SMS, nil, cfg.Server.SiteURL)
	userService := service.NewUserService(userRepo, storeRepo, ts.SMS, cfg.Server.SiteURL)
	photoService := service.NewPhotoService(
		repository.NewDeliveryPhotoRepository(testDB),
		attemptRepo,
		orderRepo,
		&bucket{},
		cfg.Photo.SignedURLTTL,
		cfg.Photo.MaxUploadBytes,
	)
	notifier := service.NewNotificationDispatcher(templateRepo, ts.SMS, ts.Pool)
	attemptService := service.NewDeliveryAttemptService(testDB, attemptRepo, orderRepo, userRepo, photoService, notifier, nil)
	orderService := service.NewOrderService(testDB, orderRepo, storeRepo, userRepo, attemptService)

	ts.Router = router.NewRouter(
		controller.NewAuthController(authService, resetService, userService),
		controller.NewUserController(userService),
		controller.NewOrderController(orderService),
		controller.NewDeliveryAttemptController(attemptService),
		controller.NewPhotoController(photoService),
		controller.NewMessageTemplateController(service.NewMessageTemplateService(templateRepo, storeRepo)),
		controller.NewStoreController(service.NewStoreService(storeRepo)),
		controller.NewStatusFeedController(ws.NewHub(), cfg.CORS.AllowedOrigins),
		middleware.NewAuthMiddleware(integrationSecret, nil),
		cfg,
	).Setup()

	for _, u := range staff {
		w := ts.request(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": u.Username, "password": "password123"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			Tokens util.TokenPair `json:"tokens"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		ts.tokens[u.Username] = resp.Tokens.AccessToken
	}
	return ts
}

func (ts *TestServer) request(t *testing.T, method, path, as string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+ts.tokens[as])
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) upload(t *testing.T, path, as string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photos"; filename="door.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ts.tokens[as])
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func TestCompleteDeliveryJourney(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := setupIntegrationTest(t)
	customerPhone := "+15557654321"

	t.Log("Step 1: Configure store templates")
	for event, content := range map[model.EventType]string{
		model.EventDriverEnRoute:  "Hi {{ customer_name }}, your driver is {{ mins_to_arrival }} min away.",
		model.EventDriverComplete: "Order {{ order_id }} delivered. Photos: {{ photo_links }}",
	} {
		path := fmt.Sprintf("/api/v1/stores/%d/templates/%s", ts.Store.ID, event)
		w := ts.request(t, http.MethodPut, path, "manager", gin.H{"content": content, "active": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/stores/%d/templates", ts.Store.ID), "driver", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	t.Log("Step 2: Place an order")
	w = ts.request(t, http.MethodPost, "/api/v1/orders", "manager", gin.H{
		"store":         ts.Store.ID,
		"invoice_num":   "INV-900",
		"first_name":    "Jane",
		"last_name":     "Doe",
		"phone_num":     customerPhone,
		"address":       "12 Elm St",
		"delivery_date": "2026-11-02",
		"items":         []gin.H{{"product_name": "Recliner", "quantity": 1, "price_at_order": 650}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var orderResp struct {
		Order model.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orderResp))
	require.Len(t, orderResp.Order.DeliveryAttempts, 1)
	attemptPath := fmt.Sprintf("/api/v1/attempts/%d", orderResp.Order.DeliveryAttempts[0].ID)

	t.Log("Step 3: Assign the driver")
	var driverID uint
	require.NoError(t, ts.DB.Model(&model.User{}).Where("username = ?", "driver").Pluck("id", &driverID).Error)
	w = ts.request(t, http.MethodPatch, attemptPath, "manager", gin.H{
		"status":  model.StatusAssignedToDriver,
		"drivers": []uint{driverID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Log("Step 4: Driver heads out")
	w = ts.request(t, http.MethodPatch, attemptPath, "driver", gin.H{
		"status":           model.StatusEnRoute,
		"mins_to_arrival":  20,
		"miles_to_arrival": 7.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Log("Step 5: Driver uploads proof and completes")
	w = ts.upload(t, attemptPath+"/photos", "driver")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.request(t, http.MethodPatch, attemptPath, "driver", gin.H{"status": model.StatusComplete})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// re-sending complete must not notify twice
	w = ts.request(t, http.MethodPatch, attemptPath, "driver", gin.H{"status": model.StatusComplete})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Log("Step 6: Customer received exactly the configured messages")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Pool.Close(ctx))

	messages := ts.SMS.sent[customerPhone]
	require.Len(t, messages, 2)
	assert.Equal(t, "Hi Jane Doe, your driver is 20 min away.", messages[0])
	assert.Contains(t, messages[1], "Order INV-900 delivered.")
	assert.Contains(t, messages[1], "https://bucket.example.com/")

	w = ts.request(t, http.MethodGet, attemptPath+"/history", "manager", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		History []model.AttemptStatusChange `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.History, 4)
	assert.Equal(t, model.StatusComplete, history.History[3].ToStatus)
}

func TestHealthAndCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := setupIntegrationTest(t)

	w := ts.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status    string `json:"status"`
		FeedUsers int    `json:"feed_users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.FeedUsers)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	ts.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	w = ts.request(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
