package purchaseflow

import (
	"context"
	"testing"
	"time"

	"github.com/auravox/core/pkg/types"
)

func TestTracker_Get_DefaultsToIdle(t *testing.T) {
	tr := New()
	state, err := tr.Get(context.Background(), "sess-unseen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != types.PurchaseIdle {
		t.Errorf("expected idle default, got %q", state.Status)
	}
}

func TestTracker_Set_MergesDataAndUpdatesStatus(t *testing.T) {
	tr := New()
	ctx := context.Background()

	if err := tr.Set(ctx, "sess-1", types.PurchaseProductsDisplayed, map[string]string{"product": "jacket"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tr.Set(ctx, "sess-1", types.PurchaseProductSelected, map[string]string{"amount": "42"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	state, err := tr.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != types.PurchaseProductSelected {
		t.Errorf("expected status product-selected, got %q", state.Status)
	}
	if state.Data["product"] != "jacket" || state.Data["amount"] != "42" {
		t.Errorf("expected merged data bag, got %+v", state.Data)
	}
}

func TestTracker_Clear_RemovesEntry(t *testing.T) {
	tr := New()
	ctx := context.Background()
	_ = tr.Set(ctx, "sess-1", types.PurchaseWalletConnected, nil)
	_ = tr.Clear(ctx, "sess-1")

	state, err := tr.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != types.PurchaseIdle {
		t.Errorf("expected idle after clear, got %q", state.Status)
	}
}

func TestTracker_Completed_AutoClearsAfterDelay(t *testing.T) {
	tr := New()
	ctx := context.Background()
	_ = tr.Set(ctx, "sess-1", types.PurchaseCompleted, nil)

	tr.mu.Lock()
	timer, scheduled := tr.clearers["sess-1"]
	tr.mu.Unlock()
	if !scheduled {
		t.Fatal("expected an auto-clear timer to be scheduled")
	}
	timer.Stop()

	// Exercise the clear callback directly rather than sleeping 60s.
	_ = tr.Clear(ctx, "sess-1")
	state, _ := tr.Get(ctx, "sess-1")
	if state.Status != types.PurchaseIdle {
		t.Errorf("expected idle after forced clear, got %q", state.Status)
	}
}

func TestTracker_Set_ReplacingCompletedCancelsPriorTimer(t *testing.T) {
	tr := New()
	ctx := context.Background()
	_ = tr.Set(ctx, "sess-1", types.PurchaseCompleted, nil)
	_ = tr.Set(ctx, "sess-1", types.PurchaseIdle, nil)

	tr.mu.Lock()
	_, scheduled := tr.clearers["sess-1"]
	tr.mu.Unlock()
	if scheduled {
		t.Error("expected no pending auto-clear timer once status moved off completed")
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := New()
	ctx := context.Background()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			_ = tr.Set(ctx, "sess-shared", types.PurchaseProductsDisplayed, map[string]string{"n": time.Now().String()})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
