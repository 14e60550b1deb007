package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrderInput(storeID uint) OrderInput {
	return OrderInput{
		StoreID:               storeID,
		InvoiceNum:            "INV-2001",
		FirstName:             "Maria",
		LastName:              "Garcia",
		PhoneNum:              "+15557654321",
		Address:               "55 Cedar Ave",
		DeliveryDate:          "2026-11-10",
		PreferredDeliveryTime: "09:30",
		Items: []OrderItemInput{
			{ProductName: "Dresser", Quantity: 1, PriceAtOrder: 450},
		},
	}
}

func TestOrderService_CreateOrder_CreatesFirstAttempt(t *testing.T) {
	f := newServiceFixture(t)

	input := validOrderInput(f.storeA.ID)
	input.PreferredDriverIDs = []uint{f.driverA.UserID}

	order, err := f.orders.CreateOrder(context.Background(), f.csrA, input)
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, "McKinney", order.Store.Name)
	require.Len(t, order.Items, 1)
	require.Len(t, order.PreferredDrivers, 1)

	require.Len(t, order.DeliveryAttempts, 1)
	attempt := order.DeliveryAttempts[0]
	assert.Equal(t, model.StatusOrderPlaced, attempt.Status)
	assert.Equal(t, "2026-11-10", attempt.DeliveryDate)
	assert.Equal(t, "09:30", attempt.DeliveryTime)
	assert.Equal(t, []uint{f.driverA.UserID}, attempt.DriverIDs())

	require.Equal(t, []model.EventType{model.EventOrderPlaced}, f.notifier.events())
	call := f.notifier.last()
	assert.Equal(t, "Maria Garcia", call.Ctx[CtxCustomerName])
	assert.Equal(t, "INV-2001", call.Ctx[CtxOrderID])
	assert.Equal(t, "McKinney", call.Ctx[CtxStoreName])
}

func TestOrderService_CreateOrder_Authorization(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.orders.CreateOrder(context.Background(), f.managerB, validOrderInput(f.storeA.ID))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.orders.CreateOrder(context.Background(), f.driverA, validOrderInput(f.storeA.ID))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.orders.CreateOrder(context.Background(), f.superuser, validOrderInput(9999))
	assert.ErrorIs(t, err, ErrNotFound)

	order, err := f.orders.CreateOrder(context.Background(), f.superuser, validOrderInput(f.storeB.ID))
	require.NoError(t, err)
	assert.Equal(t, f.storeB.ID, order.StoreID)
}

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	f := newServiceFixture(t)

	input := validOrderInput(f.storeA.ID)
	input.FirstName = ""
	input.DeliveryDate = "Nov 10"
	input.Items = []OrderItemInput{{ProductName: "Chair", Quantity: 0}}
	input.PreferredDriverIDs = []uint{f.managerA.UserID}

	_, err := f.orders.CreateOrder(context.Background(), f.managerA, input)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "first_name")
	assert.Contains(t, verr.Fields, "delivery_date")
	assert.Contains(t, verr.Fields, "items")
	assert.Contains(t, verr.Fields, "preferred_drivers")

	var count int64
	f.db.Model(&model.Order{}).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, f.notifier.events())
}

func TestOrderService_ListOrders_Visibility(t *testing.T) {
	f := newServiceFixture(t)

	orderA, err := f.orders.CreateOrder(context.Background(), f.managerA, validOrderInput(f.storeA.ID))
	require.NoError(t, err)
	orderB, err := f.orders.CreateOrder(context.Background(), f.managerB, validOrderInput(f.storeB.ID))
	require.NoError(t, err)

	all, err := f.orders.ListOrders(f.superuser, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyB, err := f.orders.ListOrders(f.superuser, &f.storeB.ID)
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, orderB.ID, onlyB[0].ID)

	mine, err := f.orders.ListOrders(f.managerA, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, orderA.ID, mine[0].ID)

	_, err = f.orders.GetOrder(f.managerA, orderB.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderService_DriverSeesAssignedOrdersInOtherStores(t *testing.T) {
	f := newServiceFixture(t)

	orderB, err := f.orders.CreateOrder(context.Background(), f.managerB, validOrderInput(f.storeB.ID))
	require.NoError(t, err)

	_, err = f.orders.GetOrder(f.driverA, orderB.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.attempts.UpdateAttempt(context.Background(), f.managerB, orderB.DeliveryAttempts[0].ID, AttemptInput{
		DriverIDs: uintsPtr(f.driverA.UserID),
	})
	require.NoError(t, err)

	order, err := f.orders.GetOrder(f.driverA, orderB.ID)
	require.NoError(t, err)
	assert.Equal(t, orderB.ID, order.ID)

	orders, err := f.orders.ListOrders(f.driverA, nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, orderB.ID, orders[0].ID)
}
