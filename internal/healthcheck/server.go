// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Probe reports whether one dependency is ready, with a short detail
// shown in the /readyz body.
type Probe func() (ready bool, detail string)

type Response struct {
	Healthy    bool              `json:"healthy"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

type Server struct {
	port   int
	status atomic.Int32
	probes sync.Map // map[string]Probe
	server *http.Server
}

type Config struct {
	Port int
}

func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = 8090
	}
	return &Server{
		port: config.Port,
	}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// AddProbe registers a named readiness probe. The server is ready when it
// is healthy and every probe reports ready.
func (s *Server) AddProbe(name string, p Probe) {
	s.probes.Store(name, p)
}

func (s *Server) RemoveProbe(name string) {
	s.probes.Delete(name)
}

func (s *Server) readiness() (bool, map[string]string) {
	ready := s.GetStatus() == StatusHealthy
	conditions := map[string]string{}
	var names []string
	s.probes.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	for _, name := range names {
		v, ok := s.probes.Load(name)
		if !ok {
			continue
		}
		ok, detail := v.(Probe)()
		if !ok {
			ready = false
		}
		conditions[name] = detail
	}
	return ready, conditions
}

func (s *Server) IsReady() bool {
	ready, _ := s.readiness()
	return ready
}

// Handler serves the probe endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/readyz", s.readyzHandler)
	mux.HandleFunc("/livez", s.livezHandler)
	return mux
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("Starting health check server", slog.Int("port", s.port))

	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("health check server: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, Response{Healthy: s.GetStatus() == StatusHealthy})
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ready, conditions := s.readiness()
	writeResponse(w, Response{Healthy: ready, Conditions: conditions})
}

func (s *Server) livezHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, Response{Healthy: s.GetStatus() != StatusUnhealthy})
}

func writeResponse(w http.ResponseWriter, response Response) {
	w.Header().Set("Content-Type", "application/json")
	if response.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
