package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/broker/kafka"
	"github.com/ikkim/delivery-tracker/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type triggered struct {
	Event   model.EventType
	StoreID uint
	Ctx     EventContext
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []triggered
}

func (n *recordingNotifier) Trigger(event model.EventType, storeID uint, eventCtx EventContext) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, triggered{Event: event, StoreID: storeID, Ctx: eventCtx})
}

func (n *recordingNotifier) events() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := make([]model.EventType, 0, len(n.calls))
	for _, c := range n.calls {
		events = append(events, c.Event)
	}
	return events
}

func (n *recordingNotifier) last() triggered {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []kafka.AttemptStatusChanged
}

func (r *recordingEvents) StatusChanged(event kafka.AttemptStatusChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	presigns int
	putErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presigns++
	return fmt.Sprintf("https://photos.example.com/%s?sig=%d", key, f.presigns), nil
}

type serviceFixture struct {
	db *gorm.DB

	storeA model.Store
	storeB model.Store

	superuser Principal
	managerA  Principal
	managerB  Principal
	driverA   Principal
	driver2A  Principal
	csrA      Principal

	notifier *recordingNotifier
	events   *recordingEvents
	storage  *fakeStorage

	userRepo    repository.UserRepository
	storeRepo   repository.StoreRepository
	orderRepo   repository.OrderRepository
	attemptRepo repository.DeliveryAttemptRepository
	photoRepo   repository.DeliveryPhotoRepository

	photos   PhotoService
	attempts DeliveryAttemptService
	orders   OrderService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &serviceFixture{
		db:       testDB,
		storeA:   model.Store{Name: "McKinney", Address: "100 Main St"},
		storeB:   model.Store{Name: "Frisco", Address: "200 Elm St"},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		storage:  newFakeStorage(),
	}
	require.NoError(t, testDB.Create(&f.storeA).Error)
	require.NoError(t, testDB.Create(&f.storeB).Error)

	f.superuser = f.createUser(t, "admin", RoleFlags{IsSuperuser: true})
	f.managerA = f.createUser(t, "manager_a", RoleFlags{IsManager: true}, f.storeA)
	f.managerB = f.createUser(t, "manager_b", RoleFlags{IsManager: true}, f.storeB)
	f.driverA = f.createUser(t, "driver_a", RoleFlags{IsDriver: true}, f.storeA)
	f.driver2A = f.createUser(t, "driver2_a", RoleFlags{IsDriver: true}, f.storeA)
	f.csrA = f.createUser(t, "csr_a", RoleFlags{IsCustomerService: true}, f.storeA)

	f.userRepo = repository.NewUserRepository(testDB)
	f.storeRepo = repository.NewStoreRepository(testDB)
	f.orderRepo = repository.NewOrderRepository(testDB)
	f.attemptRepo = repository.NewDeliveryAttemptRepository(testDB)
	f.photoRepo = repository.NewDeliveryPhotoRepository(testDB)

	f.photos = NewPhotoService(f.photoRepo, f.attemptRepo, f.orderRepo, f.storage, 15*time.Minute, 1<<20)
	f.attempts = NewDeliveryAttemptService(testDB, f.attemptRepo, f.orderRepo, f.userRepo, f.photos, f.notifier, f.events)
	f.orders = NewOrderService(testDB, f.orderRepo, f.storeRepo, f.userRepo, f.attempts)
	return f
}

func (f *serviceFixture) createUser(t *testing.T, username string, flags RoleFlags, stores ...model.Store) Principal {
	t.Helper()
	user := &model.User{
		Username:          username,
		Email:             username + "@example.com",
		PasswordHash:      "hash",
		PhoneNumber:       "+1555000" + fmt.Sprintf("%04d", len(username)),
		IsActive:          true,
		IsSuperuser:       flags.IsSuperuser,
		IsManager:         flags.IsManager,
		IsDriver:          flags.IsDriver,
		IsCustomerService: flags.IsCustomerService,
		Stores:            stores,
	}
	require.NoError(t, f.db.Create(user).Error)
	return PrincipalForUser(user)
}

// placeOrder creates an order in store A with two lines (quantities 2 and 1).
func (f *serviceFixture) placeOrder(t *testing.T, preferredDrivers ...uint) *model.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), f.managerA, OrderInput{
		StoreID:               f.storeA.ID,
		InvoiceNum:            "INV-1001",
		FirstName:             "Jane",
		LastName:              "Doe",
		PhoneNum:              "+15551234567",
		Address:               "1 Oak Ln",
		DeliveryDate:          "2026-11-02",
		PreferredDeliveryTime: "10:30",
		PreferredDriverIDs:    preferredDrivers,
		Items: []OrderItemInput{
			{ProductName: "Sofa", ProductMPN: "SOFA-1", Quantity: 2, PriceAtOrder: 899.5},
			{ProductName: "Lamp", ProductMPN: "LAMP-1", Quantity: 1, PriceAtOrder: 49},
		},
	})
	require.NoError(t, err)
	require.Len(t, order.DeliveryAttempts, 1)
	f.notifier.reset()
	return order
}

func (f *serviceFixture) addPhoto(t *testing.T, attemptID uint) *model.DeliveryPhoto {
	t.Helper()
	photo, err := f.photos.AddPhoto(context.Background(), attemptID, nil, PhotoUpload{
		Filename:    "porch.jpg",
		ContentType: "image/jpeg",
		Size:        4,
		Body:        strings.NewReader("jpeg"),
	})
	require.NoError(t, err)
	return photo
}

func statusPtr(s model.DeliveryStatus) *model.DeliveryStatus { return &s }
func strPtr(s string) *string                                { return &s }
func intPtr(n int) *int                                      { return &n }
func floatPtr(n float64) *float64                            { return &n }
func uintsPtr(ids ...uint) *[]uint                           { return &ids }
func boolPtr(b bool) *bool                                   { return &b }
