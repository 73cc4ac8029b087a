package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jogardn/order-dashboard/internal/dashboard"
	"github.com/jogardn/order-dashboard/internal/orders"
	"github.com/jogardn/order-dashboard/internal/orders/orderstest"
	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/sirupsen/logrus"
)

type testMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testEnv struct {
	api  *orderstest.Server
	hub  *Hub
	http *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	api := orderstest.NewServer()
	api.Seed(
		orderstest.NewOrder("o1", models.StatusPending, "unpaid"),
		orderstest.NewOrder("o2", models.StatusCompleted, "paid"),
	)

	hub := NewHub(orders.NewClient(api.URL, 2*time.Second, nil, logger), logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		server.Close()
		api.Close()
	})
	return &testEnv{api: api, hub: hub, http: server}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first message that satisfies match, skipping the rest.
func readUntil(t *testing.T, conn *websocket.Conn, match func(testMessage) bool) testMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg testMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func readyView(t *testing.T, conn *websocket.Conn, match func(dashboard.PageView) bool) dashboard.PageView {
	t.Helper()
	var view dashboard.PageView
	readUntil(t, conn, func(msg testMessage) bool {
		if msg.Type != MessageViewState {
			return false
		}
		view = dashboard.PageView{}
		if err := json.Unmarshal(msg.Data, &view); err != nil {
			t.Fatalf("Bad view_state payload: %v", err)
		}
		return !view.Loading && match(view)
	})
	return view
}

func anyView(dashboard.PageView) bool { return true }

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestSessionMountsAndHandlesCommands(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	view := readyView(t, conn, anyView)
	if len(view.Rows) != 2 || view.Pagination.TotalItems != 2 {
		t.Fatalf("Expected 2 rows on mount, got %d", len(view.Rows))
	}

	send(t, conn, Command{Type: CommandSelectAll})
	view = readyView(t, conn, func(v dashboard.PageView) bool { return v.AllSelected })
	if view.BulkBar.Count != 2 {
		t.Errorf("Expected bulk bar count 2, got %d", view.BulkBar.Count)
	}

	send(t, conn, Command{Type: CommandBulkDelete})
	view = readyView(t, conn, func(v dashboard.PageView) bool { return len(v.Rows) == 0 })
	if view.BulkBar.Visible {
		t.Error("Expected bulk bar to be hidden after delete")
	}
	if env.api.Len() != 0 {
		t.Errorf("Expected orders to be deleted, %d left", env.api.Len())
	}
}

func TestSessionChangeFilter(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	readyView(t, conn, anyView)

	send(t, conn, Command{Type: CommandChangeFilter, Tab: "finished"})
	view := readyView(t, conn, func(v dashboard.PageView) bool {
		for _, tab := range v.Tabs {
			if tab.Active {
				return tab.ID == dashboard.TabFinished
			}
		}
		return false
	})
	if len(view.Rows) != 1 || view.Rows[0].ID != "o2" {
		t.Errorf("Expected only o2 on finished tab, got %+v", view.Rows)
	}
}

func TestSessionRejectsInvalidCommands(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	readyView(t, conn, anyView)

	cases := []Command{
		{Type: "explode"},
		{Type: CommandChangeFilter, Tab: "archived"},
		{Type: CommandChangePage, Page: 0},
		{Type: CommandDeleteOrder},
		{Type: CommandBulkUpdateStatus, Status: "lost"},
		{Type: CommandCreateOrder, Order: &OrderPayload{CustomerName: "Ada"}},
	}
	for _, cmd := range cases {
		send(t, conn, cmd)
		msg := readUntil(t, conn, func(m testMessage) bool { return m.Type == MessageError })

		var data ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("Bad error payload: %v", err)
		}
		if !strings.Contains(data.Error, ErrInvalidCommand.Error()) {
			t.Errorf("Command %+v: expected invalid command error, got %q", cmd, data.Error)
		}
	}
}

func TestSessionReportsFailedWrites(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	readyView(t, conn, anyView)

	send(t, conn, Command{Type: CommandDeleteOrder, ID: "missing"})
	msg := readUntil(t, conn, func(m testMessage) bool { return m.Type == MessageError })

	var data ErrorData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Bad error payload: %v", err)
	}
	if data.Command != CommandDeleteOrder || !strings.Contains(data.Error, dashboard.ErrOperationFailed.Error()) {
		t.Errorf("Unexpected error payload %+v", data)
	}
}

func TestRefreshAllReloadsEverySession(t *testing.T) {
	env := newTestEnv(t)
	first := env.dial(t)
	second := env.dial(t)
	readyView(t, first, anyView)
	readyView(t, second, anyView)

	env.api.Seed(orderstest.NewOrder("o3", models.StatusRefunded, "paid"))
	if err := env.hub.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		readyView(t, conn, func(v dashboard.PageView) bool { return len(v.Rows) == 3 })
	}
	if n := env.hub.SessionCount(); n != 2 {
		t.Errorf("Expected 2 sessions, got %d", n)
	}
}

func TestSessionGetOrder(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	readyView(t, conn, anyView)

	send(t, conn, Command{Type: CommandGetOrder, ID: "o1"})
	msg := readUntil(t, conn, func(m testMessage) bool { return m.Type == MessageOrder })

	var order models.OrderRecord
	if err := json.Unmarshal(msg.Data, &order); err != nil {
		t.Fatalf("Bad order payload: %v", err)
	}
	if order.ID != "o1" || order.Status != models.StatusPending {
		t.Errorf("Unexpected order %+v", order)
	}

	send(t, conn, Command{Type: CommandGetOrder, ID: "missing"})
	msg = readUntil(t, conn, func(m testMessage) bool { return m.Type == MessageError })

	var data ErrorData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Bad error payload: %v", err)
	}
	if data.Command != CommandGetOrder {
		t.Errorf("Unexpected error payload %+v", data)
	}
}
