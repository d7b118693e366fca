package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"matrix-sync/internal/models"

	"github.com/shopspring/decimal"
)

func TestRecordOrderUpsertsAndActivatesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedUser(t, 1, nil, true)
	env.seedUser(t, 2, ref(1), false)
	env.seedUser(t, 3, ref(2), false)
	env.chain.slots[walletFor(3)] = []int{1, 3, 2}

	first, err := env.orders.RecordOrder(ctx, OrderEvent{
		User:            walletFor(3),
		Level:           1,
		Price:           decimal.NewFromInt(10),
		TransactionHash: "0xfirst",
	})
	if err != nil {
		t.Fatalf("first order failed: %v", err)
	}

	second, err := env.orders.RecordOrder(ctx, OrderEvent{
		User:            walletFor(3),
		Level:           1,
		Price:           decimal.NewFromInt(20),
		TransactionHash: "0xsecond",
	})
	if err != nil {
		t.Fatalf("second order failed: %v", err)
	}

	var count int64
	env.db.Model(&models.Order{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 order, got %d", count)
	}
	if second.ID != first.ID {
		t.Errorf("redelivery created a new row: %d vs %d", second.ID, first.ID)
	}
	if !second.Price.Equal(decimal.NewFromInt(20)) || second.TransactionHash != "0xsecond" {
		t.Errorf("order should reflect the second delivery: %+v", second)
	}

	user := env.mustUser(t, 3)
	if !user.IsActive || user.CurrentActiveSlot != 3 {
		t.Errorf("user: active=%v slot=%d", user.IsActive, user.CurrentActiveSlot)
	}
	if got := env.mustUser(t, 2).ActiveTeam; got != 1 {
		t.Errorf("referrer active team: got %d, want 1", got)
	}
	if got := env.mustUser(t, 1).ActiveTeam; got != 1 {
		t.Errorf("root active team: got %d, want 1", got)
	}

	// A different level is a new order but not a new activation
	if _, err := env.orders.RecordOrder(ctx, OrderEvent{User: walletFor(3), Level: 2, Price: decimal.NewFromInt(40)}); err != nil {
		t.Fatalf("level 2 order failed: %v", err)
	}
	if n, _ := env.repo.CountOrders(ctx, 3); n != 2 {
		t.Errorf("expected 2 orders, got %d", n)
	}
	if got := env.mustUser(t, 1).ActiveTeam; got != 1 {
		t.Errorf("activation must propagate once, root active team %d", got)
	}
}

func TestRecordOrderErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.orders.RecordOrder(ctx, OrderEvent{User: walletFor(8), Level: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}

	env.seedUser(t, 1, nil, false)
	env.chain.err = errors.New("rpc down")
	if _, err := env.orders.RecordOrder(ctx, OrderEvent{User: walletFor(1), Level: 1}); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("chain failure: expected ErrUpstreamUnavailable, got %v", err)
	}
	if n, _ := env.repo.CountOrders(ctx, 1); n != 0 {
		t.Errorf("no order should be stored when the chain read fails, got %d", n)
	}
}

func TestRecordOrderRetriesFailedActivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedUser(t, 1, nil, true)
	env.seedUser(t, 2, ref(1), false)
	env.seedUser(t, 3, ref(2), false)

	event := OrderEvent{User: walletFor(3), Level: 1, Price: decimal.NewFromInt(10)}

	failNextUpdate(t, env.db, "active_team")
	if _, err := env.orders.RecordOrder(ctx, event); err == nil {
		t.Fatal("expected the first order to fail during propagation")
	}
	if env.mustUser(t, 3).IsActive {
		t.Fatal("activation must roll back with its propagation")
	}

	if _, err := env.orders.RecordOrder(ctx, event); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !env.mustUser(t, 3).IsActive {
		t.Error("user should be active after the retry")
	}
	for _, id := range []uint{2, 1} {
		if got := env.mustUser(t, id).ActiveTeam; got != 1 {
			t.Errorf("ancestor %d active team: got %d, want 1", id, got)
		}
	}
}

func TestRecordOrderConcurrentFirstOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedUser(t, 1, nil, true)
	env.seedUser(t, 2, ref(1), false)
	env.seedUser(t, 3, ref(2), false)
	env.chain.slots[walletFor(3)] = []int{1}

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.orders.RecordOrder(ctx, OrderEvent{
				User:  walletFor(3),
				Level: 1 + n%2,
				Price: decimal.NewFromInt(int64(10 + n)),
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent orders failed: %v", errs)
	}
	if n, _ := env.repo.CountOrders(ctx, 3); n != 2 {
		t.Errorf("expected one order per level, got %d", n)
	}
	for _, id := range []uint{2, 1} {
		if got := env.mustUser(t, id).ActiveTeam; got != 1 {
			t.Errorf("ancestor %d active team: got %d, want 1", id, got)
		}
	}
}
