package repository

import (
	"testing"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_CreateAndFind(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)
	store := createStore(t, testDB, "McKinney")
	driver := createUser(t, testDB, "driver", store)

	order := model.Order{
		StoreID:          store.ID,
		InvoiceNum:       "INV-1",
		Items:            []model.OrderItem{{ProductName: "Table", Quantity: 1, PriceAtOrder: 120}},
		PreferredDrivers: []model.User{driver},
	}
	require.NoError(t, repo.Create(&order))

	found, err := repo.FindByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Name, found.Store.Name)
	require.Len(t, found.Items, 1)
	require.Len(t, found.PreferredDrivers, 1)
	assert.Equal(t, driver.ID, found.PreferredDrivers[0].ID)
	assert.Nil(t, found.CurrentAttempt())

	items, err := repo.FindItemsByOrderID(order.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	var userCount int64
	require.NoError(t, testDB.Model(&model.User{}).Count(&userCount).Error)
	assert.Equal(t, int64(1), userCount, "preferred drivers must not be re-inserted")
}

func TestOrderRepository_Visibility(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)
	attempts := NewDeliveryAttemptRepository(testDB)

	storeA := createStore(t, testDB, "Frisco")
	storeB := createStore(t, testDB, "Denton")
	orderA := createOrder(t, testDB, storeA)
	orderB := createOrder(t, testDB, storeB)

	driver := createUser(t, testDB, "driver", storeA)
	attemptB := createAttempt(t, testDB, orderB)
	require.NoError(t, attempts.ReplaceDrivers(&attemptB, []model.User{driver}))

	tests := []struct {
		name   string
		filter OrderFilter
		want   []uint
	}{
		{
			name:   "all stores",
			filter: OrderFilter{AllStores: true},
			want:   []uint{orderB.ID, orderA.ID},
		},
		{
			name:   "all stores narrowed to one store",
			filter: OrderFilter{AllStores: true, StoreID: &storeA.ID},
			want:   []uint{orderA.ID},
		},
		{
			name:   "store member",
			filter: OrderFilter{StoreIDs: []uint{storeA.ID}},
			want:   []uint{orderA.ID},
		},
		{
			name:   "driver sees assigned order from another store",
			filter: OrderFilter{StoreIDs: []uint{storeA.ID}, DriverID: driver.ID},
			want:   []uint{orderB.ID, orderA.ID},
		},
		{
			name:   "no stores",
			filter: OrderFilter{StoreIDs: []uint{}},
			want:   []uint{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := repo.FindAll(tt.filter)
			require.NoError(t, err)

			ids := make([]uint, 0, len(orders))
			for _, o := range orders {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	visible, err := repo.IsVisible(orderB.ID, OrderFilter{StoreIDs: []uint{storeA.ID}})
	require.NoError(t, err)
	assert.False(t, visible)

	visible, err = repo.IsVisible(orderB.ID, OrderFilter{StoreIDs: []uint{storeA.ID}, DriverID: driver.ID})
	require.NoError(t, err)
	assert.True(t, visible)
}
