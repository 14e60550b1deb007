package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/db"
	"github.com/ikkim/delivery-tracker/internal/middleware"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password123"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memoryStorage) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://photos.example.com/" + key + "?sig=test", nil
}

type outbox struct {
	mu       sync.Mutex
	messages []string
}

func (o *outbox) Send(ctx context.Context, to, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, to+": "+body)
	return nil
}

type silentNotifier struct {
	mu     sync.Mutex
	events []model.EventType
}

func (n *silentNotifier) Trigger(event model.EventType, storeID uint, eventCtx service.EventContext) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type apiFixture struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	storage  *memoryStorage
	sms      *outbox
	notifier *silentNotifier

	storeA model.Store
	storeB model.Store
	users  map[string]*model.User
	tokens map[string]string
}

func newAPIFixture(t *testing.T) *apiFixture {
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &apiFixture{
		t:        t,
		db:       testDB,
		storage:  &memoryStorage{objects: map[string][]byte{}},
		sms:      &outbox{},
		notifier: &silentNotifier{},
		storeA:   model.Store{Name: "McKinney"},
		storeB:   model.Store{Name: "Frisco"},
		users:    map[string]*model.User{},
		tokens:   map[string]string{},
	}
	require.NoError(t, testDB.Create(&f.storeA).Error)
	require.NoError(t, testDB.Create(&f.storeB).Error)

	f.addUser("admin", func(u *model.User) { u.IsSuperuser = true })
	f.addUser("manager", func(u *model.User) { u.IsManager = true }, f.storeA)
	f.addUser("driver", func(u *model.User) { u.IsDriver = true }, f.storeA)
	f.addUser("outsider", func(u *model.User) { u.IsManager = true }, f.storeB)

	userRepo := repository.NewUserRepository(testDB)
	storeRepo := repository.NewStoreRepository(testDB)
	orderRepo := repository.NewOrderRepository(testDB)
	attemptRepo := repository.NewDeliveryAttemptRepository(testDB)
	photoRepo := repository.NewDeliveryPhotoRepository(testDB)
	templateRepo := repository.NewMessageTemplateRepository(testDB)
	resetRepo := repository.NewPasswordResetRepository(testDB)

	authService := service.NewAuthService(userRepo, nil, testJWTSecret, 15*time.Minute, 24*time.Hour)
	resetService := service.NewPasswordResetService(resetRepo, userRepo, f.sms, nil, "https://app.example.com")
	userService := service.NewUserService(userRepo, storeRepo, f.sms, "https://app.example.com")
	photoService := service.NewPhotoService(photoRepo, attemptRepo, orderRepo, f.storage, 15*time.Minute, 1<<20)
	attemptService := service.NewDeliveryAttemptService(testDB, attemptRepo, orderRepo, userRepo, photoService, f.notifier, nil)
	orderService := service.NewOrderService(testDB, orderRepo, storeRepo, userRepo, attemptService)
	templateService := service.NewMessageTemplateService(templateRepo, storeRepo)

	authCtrl := NewAuthController(authService, resetService, userService)
	userCtrl := NewUserController(userService)
	orderCtrl := NewOrderController(orderService)
	attemptCtrl := NewDeliveryAttemptController(attemptService)
	photoCtrl := NewPhotoController(photoService)
	templateCtrl := NewMessageTemplateController(templateService)
	storeCtrl := NewStoreController(service.NewStoreService(storeRepo))
	auth := middleware.NewAuthMiddleware(testJWTSecret, nil)

	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	r.POST("/auth/login", authCtrl.Login)
	r.POST("/auth/refresh", authCtrl.RefreshToken)
	r.POST("/auth/password-reset", authCtrl.ForgotPassword)
	r.POST("/auth/verify-phone", authCtrl.VerifyPhone)
	r.GET("/auth/me", auth.Authenticate(), authCtrl.GetMe)

	api := r.Group("", auth.Authenticate())
	api.POST("/users", userCtrl.CreateUser)
	api.GET("/users/:id", userCtrl.GetUser)
	api.PATCH("/users/:id", userCtrl.UpdateUser)
	api.POST("/orders", orderCtrl.CreateOrder)
	api.GET("/orders", orderCtrl.GetOrders)
	api.GET("/orders/:id", orderCtrl.GetOrderByID)
	api.POST("/orders/:id/attempts", attemptCtrl.CreateAttempt)
	api.GET("/orders/:id/attempts", attemptCtrl.ListAttempts)
	api.GET("/attempts/:id", attemptCtrl.GetAttempt)
	api.PATCH("/attempts/:id", attemptCtrl.UpdateAttempt)
	api.GET("/attempts/:id/history", attemptCtrl.StatusHistory)
	api.POST("/attempts/:id/photos", photoCtrl.UploadPhotos)
	api.GET("/attempts/:id/photos", photoCtrl.ListPhotos)
	api.GET("/stores", storeCtrl.ListStores)
	api.POST("/stores", storeCtrl.CreateStore)
	api.GET("/stores/:id", storeCtrl.GetStore)
	api.PATCH("/stores/:id", storeCtrl.UpdateStore)
	api.GET("/stores/:id/templates", templateCtrl.ListTemplates)
	api.PUT("/stores/:id/templates/:event", templateCtrl.UpsertTemplate)
	api.GET("/templates/variables", templateCtrl.Variables)
	f.router = r

	for name := range f.users {
		f.tokens[name] = f.login(name)
	}
	return f
}

func (f *apiFixture) addUser(username string, flags func(*model.User), stores ...model.Store) {
	hash, err := util.HashPassword(testPassword)
	require.NoError(f.t, err)

	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		PhoneNumber:  fmt.Sprintf("+1555%07d", len(f.users)+1),
		IsActive:     true,
		Stores:       stores,
	}
	flags(user)
	require.NoError(f.t, f.db.Create(user).Error)
	f.users[username] = user
}

func (f *apiFixture) login(username string) string {
	w := f.do(http.MethodPost, "/auth/login", "", gin.H{"username": username, "password": testPassword})
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Tokens util.TokenPair `json:"tokens"`
	}
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Tokens.AccessToken
}

// do sends body as JSON with the bearer token of as (empty for anonymous).
func (f *apiFixture) do(method, path, as string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[as])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func (f *apiFixture) orderBody() gin.H {
	return gin.H{
		"store":                   f.storeA.ID,
		"invoice_num":             "INV-2001",
		"first_name":              "Jane",
		"last_name":               "Doe",
		"phone_num":               "+15551234567",
		"address":                 "1 Oak Ln",
		"delivery_date":           "2026-11-02",
		"preferred_delivery_time": "10:30",
		"items": []gin.H{
			{"product_name": "Sofa", "quantity": 2, "price_at_order": 899.5},
		},
	}
}

// placeOrder creates an order in store A and returns its id and the id of
// its first attempt.
func (f *apiFixture) placeOrder() (uint, uint) {
	w := f.do(http.MethodPost, "/orders", "manager", f.orderBody())
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Order model.Order `json:"order"`
	}
	decode(f.t, w, &resp)
	require.Len(f.t, resp.Order.DeliveryAttempts, 1)
	return resp.Order.ID, resp.Order.DeliveryAttempts[0].ID
}
