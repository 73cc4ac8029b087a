// Package orderstest provides an in-memory orders API for tests.
package orderstest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/shopspring/decimal"
)

// Route names used for call counting and failure injection.
const (
	RouteList          = "list"
	RouteStats         = "stats"
	RouteGet           = "get"
	RouteCreate        = "create"
	RouteUpdate        = "update"
	RouteDelete        = "delete"
	RouteBulkDelete    = "bulk_delete"
	RouteBulkDuplicate = "bulk_duplicate"
	RouteBulkStatus    = "bulk_status"
)

type Server struct {
	*httptest.Server

	mutex    sync.Mutex
	orders   map[string]*models.OrderRecord
	calls    map[string]int
	failures map[string]int
	raw      map[string]string
	gates    map[string]chan struct{}
	bodies   map[string][]byte
	queries  []string
	nextNum  int
}

func NewServer() *Server {
	s := &Server{
		orders:   make(map[string]*models.OrderRecord),
		calls:    make(map[string]int),
		failures: make(map[string]int),
		raw:      make(map[string]string),
		gates:    make(map[string]chan struct{}),
		bodies:   make(map[string][]byte),
		nextNum:  1000,
	}

	router := mux.NewRouter()
	router.HandleFunc("/orders/stats", s.wrap(RouteStats, s.stats)).Methods(http.MethodGet)
	router.HandleFunc("/orders/bulk", s.wrap(RouteBulkDelete, s.bulkDelete)).Methods(http.MethodDelete)
	router.HandleFunc("/orders/bulk/duplicate", s.wrap(RouteBulkDuplicate, s.bulkDuplicate)).Methods(http.MethodPost)
	router.HandleFunc("/orders/bulk/status", s.wrap(RouteBulkStatus, s.bulkStatus)).Methods(http.MethodPut)
	router.HandleFunc("/orders", s.wrap(RouteList, s.list)).Methods(http.MethodGet)
	router.HandleFunc("/orders", s.wrap(RouteCreate, s.create)).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}", s.wrap(RouteGet, s.get)).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}", s.wrap(RouteUpdate, s.update)).Methods(http.MethodPut)
	router.HandleFunc("/orders/{id}", s.wrap(RouteDelete, s.delete)).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(router)
	return s
}

// Seed stores orders as given. Orders without an order number get the next one.
func (s *Server) Seed(orders ...models.OrderRecord) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range orders {
		order := orders[i]
		if order.ID == "" {
			order.ID = uuid.New().String()
		}
		if order.OrderNumber == "" {
			order.OrderNumber = s.nextOrderNumber()
		}
		s.orders[order.ID] = &order
	}
}

// SeedN stores n generated orders with ids o1..on.
func (s *Server) SeedN(n int) {
	orders := make([]models.OrderRecord, 0, n)
	for i := 1; i <= n; i++ {
		orders = append(orders, NewOrder(fmt.Sprintf("o%d", i), models.StatusPending, "unpaid"))
	}
	s.Seed(orders...)
}

func NewOrder(id string, status models.Status, paymentStatus string) models.OrderRecord {
	return models.OrderRecord{
		ID:            id,
		Customer:      models.Customer{Name: "Customer " + id, Email: id + "@example.com"},
		OrderDate:     models.NewDate(2024, time.March, 5),
		Status:        status,
		TotalAmount:   decimal.RequireFromString("19.50"),
		PaymentStatus: paymentStatus,
	}
}

// Fail makes every subsequent call to route answer with status code. Zero clears it.
func (s *Server) Fail(route string, code int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if code == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = code
}

// Garble makes route answer 200 with body instead of a real response.
func (s *Server) Garble(route, body string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.raw[route] = body
}

// Hold blocks calls to route until the returned release func is called.
func (s *Server) Hold(route string) (release func()) {
	gate := make(chan struct{})
	s.mutex.Lock()
	s.gates[route] = gate
	s.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mutex.Lock()
			if s.gates[route] == gate {
				delete(s.gates, route)
			}
			s.mutex.Unlock()
			close(gate)
		})
	}
}

func (s *Server) Calls(route string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls[route]
}

func (s *Server) ResetCalls() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls = make(map[string]int)
	s.queries = nil
}

// LastBody returns the last request body received on route.
func (s *Server) LastBody(route string) []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.bodies[route]
}

// ListQueries returns the raw query strings of every list call, oldest first.
func (s *Server) ListQueries() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *Server) Has(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.orders[id]
	return ok
}

func (s *Server) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.orders)
}

func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mutex.Lock()
		s.calls[route]++
		s.bodies[route] = body
		if route == RouteList {
			s.queries = append(s.queries, r.URL.RawQuery)
		}
		code := s.failures[route]
		raw, garbled := s.raw[route]
		gate := s.gates[route]
		s.mutex.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if code != 0 {
			respondWithError(w, code, "injected failure")
			return
		}
		if garbled {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, raw)
			return
		}
		next(w, r)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := query.Get("status")
	page := atoiDefault(query.Get("page"), 1)
	limit := atoiDefault(query.Get("limit"), models.DefaultPageSize)
	if page < 1 || limit < 1 || limit > 100 {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid pagination")
		return
	}

	s.mutex.Lock()
	matched := make([]models.OrderRecord, 0, len(s.orders))
	for _, order := range s.orders {
		if matchesTab(status, order) {
			matched = append(matched, *order)
		}
	}
	s.mutex.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return orderNumber(matched[i].OrderNumber) > orderNumber(matched[j].OrderNumber)
	})

	total := len(matched)
	totalPages := 1
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	offset := (page - 1) * limit
	rows := []models.OrderRecord{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		rows = matched[offset:end]
	}

	respondWithJSON(w, http.StatusOK, models.OrdersPage{
		Orders:     rows,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var stats models.StatsSnapshot
	stats.TotalOrdersThisMonth = len(s.orders)
	for _, order := range s.orders {
		switch order.Status {
		case models.StatusPending:
			stats.PendingOrders++
		case models.StatusCompleted:
			stats.ShippedOrders++
		case models.StatusRefunded:
			stats.RefundedOrders++
		}
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	s.mutex.Lock()
	order, exists := s.orders[orderID]
	s.mutex.Unlock()

	if !exists {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var input models.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Customer == nil || input.TotalAmount == nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	order := models.OrderRecord{
		ID:            uuid.New().String(),
		Customer:      *input.Customer,
		OrderDate:     models.Date{Time: time.Now().UTC().Truncate(24 * time.Hour)},
		Status:        input.Status,
		TotalAmount:   *input.TotalAmount,
		PaymentStatus: input.PaymentStatus,
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = "unpaid"
	}

	s.mutex.Lock()
	order.OrderNumber = s.nextOrderNumber()
	s.orders[order.ID] = &order
	s.mutex.Unlock()

	respondWithJSON(w, http.StatusCreated, order)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var input models.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	order, exists := s.orders[orderID]
	if !exists {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if input.Customer != nil {
		if input.Customer.Name != "" {
			order.Customer.Name = input.Customer.Name
		}
		if input.Customer.Email != "" {
			order.Customer.Email = input.Customer.Email
		}
		if input.Customer.Avatar != nil {
			order.Customer.Avatar = input.Customer.Avatar
		}
	}
	if input.Status != "" {
		order.Status = input.Status
	}
	if input.TotalAmount != nil {
		order.TotalAmount = *input.TotalAmount
	}
	if input.PaymentStatus != "" {
		order.PaymentStatus = input.PaymentStatus
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[orderID]; !exists {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	delete(s.orders, orderID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	s.mutex.Lock()
	result := models.BulkDeleteResult{DeletedIDs: []string{}}
	for _, id := range req.OrderIDs {
		if _, exists := s.orders[id]; exists {
			delete(s.orders, id)
			result.DeletedIDs = append(result.DeletedIDs, id)
		}
	}
	s.mutex.Unlock()

	result.DeletedCount = len(result.DeletedIDs)
	respondWithJSON(w, http.StatusOK, result)
}

func (s *Server) bulkDuplicate(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	s.mutex.Lock()
	result := models.BulkDuplicateResult{NewOrders: []models.DuplicatedOrder{}}
	for _, id := range req.OrderIDs {
		original, exists := s.orders[id]
		if !exists {
			continue
		}
		copied := *original
		copied.ID = uuid.New().String()
		copied.OrderNumber = s.nextOrderNumber()
		s.orders[copied.ID] = &copied
		result.NewOrders = append(result.NewOrders, models.DuplicatedOrder{
			ID:              copied.ID,
			OrderNumber:     copied.OrderNumber,
			OriginalOrderID: id,
		})
	}
	s.mutex.Unlock()

	result.DuplicatedCount = len(result.NewOrders)
	respondWithJSON(w, http.StatusCreated, result)
}

func (s *Server) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var req models.BulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	s.mutex.Lock()
	result := models.BulkStatusResult{Orders: []models.StatusChange{}}
	for _, id := range req.OrderIDs {
		if order, exists := s.orders[id]; exists {
			order.Status = req.Status
			result.Orders = append(result.Orders, models.StatusChange{ID: id, Status: req.Status})
		}
	}
	s.mutex.Unlock()

	result.UpdatedCount = len(result.Orders)
	respondWithJSON(w, http.StatusOK, result)
}

// nextOrderNumber must be called with the mutex held.
func (s *Server) nextOrderNumber() string {
	for _, order := range s.orders {
		if n := orderNumber(order.OrderNumber); n >= s.nextNum {
			s.nextNum = n + 1
		}
	}
	number := fmt.Sprintf("#ORD%d", s.nextNum)
	s.nextNum++
	return number
}

func matchesTab(tab string, order *models.OrderRecord) bool {
	switch tab {
	case "incomplete":
		return order.Status == models.StatusPending && order.PaymentStatus == "unpaid"
	case "overdue":
		return order.Status == models.StatusPending
	case "ongoing":
		return (order.Status == models.StatusPending || order.Status == models.StatusCompleted) && order.PaymentStatus == "unpaid"
	case "finished":
		return order.Status == models.StatusCompleted && order.PaymentStatus == "paid"
	default:
		return true
	}
}

func orderNumber(s string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#ORD"))
	if err != nil {
		return 0
	}
	return n
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"detail": message,
	})
}
