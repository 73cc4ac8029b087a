package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jogardn/order-dashboard/internal/circuitbreaker"
	"github.com/jogardn/order-dashboard/internal/orders/orderstest"
	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T) (*Client, *orderstest.Server) {
	t.Helper()
	server := orderstest.NewServer()
	t.Cleanup(server.Close)
	return NewClient(server.URL, 2*time.Second, nil, newTestLogger()), server
}

func TestListOrdersSendsFilterAndPagination(t *testing.T) {
	client, server := newTestClient(t)
	server.SeedN(23)

	page, err := client.ListOrders(context.Background(), "all", 3, 10)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}

	if page.Total != 23 || page.TotalPages != 3 {
		t.Errorf("Expected total=23 total_pages=3, got total=%d total_pages=%d", page.Total, page.TotalPages)
	}
	if len(page.Orders) != 3 {
		t.Errorf("Expected 3 orders on page 3, got %d", len(page.Orders))
	}

	queries := server.ListQueries()
	if len(queries) != 1 {
		t.Fatalf("Expected 1 list call, got %d", len(queries))
	}
	values, _ := url.ParseQuery(queries[0])
	if values.Get("status") != "all" || values.Get("page") != "3" || values.Get("limit") != "10" {
		t.Errorf("Unexpected query %q", queries[0])
	}
}

func TestListOrdersAppliesServerSideTab(t *testing.T) {
	client, server := newTestClient(t)
	server.Seed(
		orderstest.NewOrder("o1", models.StatusPending, "unpaid"),
		orderstest.NewOrder("o2", models.StatusCompleted, "paid"),
		orderstest.NewOrder("o3", models.StatusRefunded, "paid"),
	)

	page, err := client.ListOrders(context.Background(), "finished", 1, 10)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(page.Orders) != 1 || page.Orders[0].ID != "o2" {
		t.Errorf("Expected only o2 in finished tab, got %+v", page.Orders)
	}
}

func TestGetStats(t *testing.T) {
	client, server := newTestClient(t)
	server.Seed(
		orderstest.NewOrder("o1", models.StatusPending, "unpaid"),
		orderstest.NewOrder("o2", models.StatusCompleted, "paid"),
		orderstest.NewOrder("o3", models.StatusRefunded, "paid"),
		orderstest.NewOrder("o4", models.StatusPending, "paid"),
	)

	stats, err := client.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	expected := models.StatsSnapshot{TotalOrdersThisMonth: 4, PendingOrders: 2, ShippedOrders: 1, RefundedOrders: 1}
	if *stats != expected {
		t.Errorf("Expected %+v, got %+v", expected, *stats)
	}
}

func TestDeleteOrder(t *testing.T) {
	client, server := newTestClient(t)
	server.SeedN(2)

	if err := client.DeleteOrder(context.Background(), "o1"); err != nil {
		t.Fatalf("DeleteOrder failed: %v", err)
	}
	if server.Has("o1") {
		t.Error("Expected o1 to be deleted")
	}

	err := client.DeleteOrder(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestBulkOperationsSendOrderIDs(t *testing.T) {
	client, server := newTestClient(t)
	server.SeedN(3)
	ctx := context.Background()

	dup, err := client.BulkDuplicate(ctx, []string{"o1", "o2"})
	if err != nil {
		t.Fatalf("BulkDuplicate failed: %v", err)
	}
	if dup.DuplicatedCount != 2 || server.Len() != 5 {
		t.Errorf("Expected 2 duplicates and 5 orders, got %d and %d", dup.DuplicatedCount, server.Len())
	}

	var body models.BulkRequest
	if err := json.Unmarshal(server.LastBody(orderstest.RouteBulkDuplicate), &body); err != nil {
		t.Fatalf("Failed to decode request body: %v", err)
	}
	if len(body.OrderIDs) != 2 || body.OrderIDs[0] != "o1" || body.OrderIDs[1] != "o2" {
		t.Errorf("Unexpected order_ids %v", body.OrderIDs)
	}

	status, err := client.BulkUpdateStatus(ctx, []string{"o3"}, models.StatusRefunded)
	if err != nil {
		t.Fatalf("BulkUpdateStatus failed: %v", err)
	}
	if status.UpdatedCount != 1 {
		t.Errorf("Expected 1 updated order, got %d", status.UpdatedCount)
	}

	del, err := client.BulkDelete(ctx, []string{"o1", "o2", "missing"})
	if err != nil {
		t.Fatalf("BulkDelete failed: %v", err)
	}
	if del.DeletedCount != 2 {
		t.Errorf("Expected 2 deleted orders, got %d", del.DeletedCount)
	}
}

func TestBulkOperationsRejectEmptySelection(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	if _, err := client.BulkDelete(ctx, nil); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Expected ErrEmptySelection from BulkDelete, got %v", err)
	}
	if _, err := client.BulkDuplicate(ctx, []string{}); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Expected ErrEmptySelection from BulkDuplicate, got %v", err)
	}
	if _, err := client.BulkUpdateStatus(ctx, nil, models.StatusCompleted); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Expected ErrEmptySelection from BulkUpdateStatus, got %v", err)
	}
	if server.Calls(orderstest.RouteBulkDelete)+server.Calls(orderstest.RouteBulkDuplicate)+server.Calls(orderstest.RouteBulkStatus) != 0 {
		t.Error("Expected no requests for empty selections")
	}
}

func TestCreateGetAndUpdateOrder(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	amount := decimal.RequireFromString("42.00")
	created, err := client.CreateOrder(ctx, models.OrderInput{
		Customer:    &models.Customer{Name: "Ada", Email: "ada@example.com"},
		TotalAmount: &amount,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if created.OrderNumber != "#ORD1000" || created.Status != models.StatusPending {
		t.Errorf("Unexpected created order %+v", created)
	}

	updated, err := client.UpdateOrder(ctx, created.ID, models.OrderInput{PaymentStatus: "paid"})
	if err != nil {
		t.Fatalf("UpdateOrder failed: %v", err)
	}
	if updated.PaymentStatus != "paid" || updated.Customer.Name != "Ada" {
		t.Errorf("Unexpected updated order %+v", updated)
	}

	fetched, err := client.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !fetched.TotalAmount.Equal(amount) {
		t.Errorf("Expected amount %s, got %s", amount, fetched.TotalAmount)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		client, server := newTestClient(t)
		server.Fail(orderstest.RouteStats, http.StatusInternalServerError)

		_, err := client.GetStats(ctx)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("Expected StatusError 500, got %v", err)
		}
		if IsClientError(err) {
			t.Error("500 must not be reported as a client error")
		}
	})

	t.Run("decode", func(t *testing.T) {
		client, server := newTestClient(t)
		server.Garble(orderstest.RouteList, "{not json")

		_, err := client.ListOrders(ctx, "all", 1, 10)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("Expected ErrDecode, got %v", err)
		}
	})

	t.Run("transport", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL
		server.Close()

		client := NewClient(baseURL, time.Second, nil, newTestLogger())
		_, err := client.GetStats(ctx)
		if !errors.Is(err, ErrTransport) {
			t.Errorf("Expected ErrTransport, got %v", err)
		}
	})
}

func TestRequestsCarryRequestID(t *testing.T) {
	seen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_orders_this_month":1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil, newTestLogger())
	if _, err := client.GetStats(context.Background()); err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if id := <-seen; id == "" {
		t.Error("Expected X-Request-ID header")
	}
}

func TestWriteWithEmptyBodySucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil, newTestLogger())
	if _, err := client.BulkDelete(context.Background(), []string{"o1"}); err != nil {
		t.Errorf("Expected empty 204 to be a success, got %v", err)
	}
}

func TestBreakerShortCircuitsUnhealthyAPI(t *testing.T) {
	server := orderstest.NewServer()
	defer server.Close()
	server.Fail(orderstest.RouteStats, http.StatusServiceUnavailable)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures: 2,
		Timeout:     time.Minute,
		IsFailure:   CountsAgainstBreaker,
	}, newTestLogger())
	client := NewClient(server.URL, time.Second, breakers, newTestLogger())
	ctx := context.Background()

	client.GetStats(ctx)
	client.GetStats(ctx)
	_, err := client.GetStats(ctx)

	if !errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		t.Errorf("Expected open breaker, got %v", err)
	}
	if calls := server.Calls(orderstest.RouteStats); calls != 2 {
		t.Errorf("Expected 2 calls to reach the server, got %d", calls)
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	server := orderstest.NewServer()
	defer server.Close()

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures: 1,
		Timeout:     time.Minute,
		IsFailure:   CountsAgainstBreaker,
	}, newTestLogger())
	client := NewClient(server.URL, time.Second, breakers, newTestLogger())

	for i := 0; i < 3; i++ {
		if err := client.DeleteOrder(context.Background(), "missing"); !IsNotFound(err) {
			t.Fatalf("Expected not found, got %v", err)
		}
	}
	if state := breakers.Get(writeBreaker).State(); state != circuitbreaker.StateClosed {
		t.Errorf("Expected closed write breaker, got %s", state)
	}
}

func TestListAndStatsUseSeparateBreakers(t *testing.T) {
	server := orderstest.NewServer()
	defer server.Close()
	server.Fail(orderstest.RouteStats, http.StatusServiceUnavailable)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures: 1,
		Timeout:     time.Minute,
		IsFailure:   CountsAgainstBreaker,
	}, newTestLogger())
	client := NewClient(server.URL, time.Second, breakers, newTestLogger())
	ctx := context.Background()

	client.GetStats(ctx)
	if state := breakers.Get(statsBreaker).State(); state != circuitbreaker.StateOpen {
		t.Fatalf("Expected open stats breaker, got %s", state)
	}
	if _, err := client.ListOrders(ctx, "all", 1, 10); err != nil {
		t.Errorf("Expected list to be unaffected by the stats breaker, got %v", err)
	}
}
