// Package monitoring serves a side-port ops endpoint: process and host
// stats as JSON, plus a websocket feed pushing fresh snapshots to dashboard
// clients.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"letmaster-backend/internal/cache"
)

type Server struct {
	db   *pgxpool.Pool
	port int

	clients    map[*websocket.Conn]bool
	clientsMux sync.Mutex

	started time.Time
}

type Snapshot struct {
	DatabaseStatus    string  `json:"database_status"`
	RedisStatus       string  `json:"redis_status"`
	ActiveConnections int     `json:"active_connections"`
	ResponseTime      int64   `json:"response_time_ms"`
	PendingDebits     int     `json:"pending_debit_requests"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent"`
	DiskPercent       float64 `json:"disk_percent"`
	Uptime            string  `json:"uptime"`
	Timestamp         string  `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewServer(db *pgxpool.Pool, port int) *Server {
	return &Server{
		db:      db,
		port:    port,
		clients: make(map[*websocket.Conn]bool),
		started: time.Now(),
	}
}

// Start serves until ctx is cancelled. Meant to run in its own goroutine.
func (s *Server) Start(ctx context.Context) {
	r := mux.NewRouter()
	r.HandleFunc("/api/stats", s.getStats).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket)

	go s.broadcastLoop(ctx)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[Monitoring] stats server on :%d", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[Monitoring] server error: %v", err)
	}
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.collect(r.Context()))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.clientsMux.Lock()
	s.clients[conn] = true
	s.clientsMux.Unlock()
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.collect(ctx)
			s.clientsMux.Lock()
			for conn := range s.clients {
				if err := conn.WriteJSON(snap); err != nil {
					conn.Close()
					delete(s.clients, conn)
				}
			}
			s.clientsMux.Unlock()
		}
	}
}

func (s *Server) collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		DatabaseStatus: "healthy",
		RedisStatus:    "unavailable",
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if cache.IsHealthy() {
		snap.RedisStatus = "healthy"
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.db.Ping(pingCtx); err != nil {
		snap.DatabaseStatus = "unhealthy"
	}
	snap.ResponseTime = time.Since(start).Milliseconds()
	snap.ActiveConnections = int(s.db.Stat().AcquiredConns())

	if snap.DatabaseStatus == "healthy" {
		var pending int
		if err := s.db.QueryRow(pingCtx,
			`SELECT COUNT(*) FROM client_debit_requests WHERE reconcile_status='P'`).Scan(&pending); err == nil {
			snap.PendingDebits = pending
		}
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		snap.DiskPercent = du.UsedPercent
	}
	return snap
}
