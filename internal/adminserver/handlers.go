package adminserver

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TopologyResponse is the response for the read-only topology endpoint.
type TopologyResponse struct {
	Booted    bool   `json:"booted"`
	NumaCount int    `json:"numa_count"`
	CpuCount  int    `json:"cpu_count"`
	Base      string `json:"base"`
}

// StatusResponse is the response for the process status endpoint.
type StatusResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Timestamp    string `json:"timestamp"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	NumaCount    int    `json:"numa_count,omitempty"`
	CpuCount     int    `json:"cpu_count,omitempty"`
}

// Handlers holds all diagnostics HTTP handlers and their dependencies.
type Handlers struct {
	startTime time.Time
	version   string
	topo      *topology.Topology
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(version string, topo *topology.Topology) *Handlers {
	return &Handlers{
		startTime: time.Now(),
		version:   version,
		topo:      topo,
	}
}

// HealthCheck handles GET /healthz. It only reports process liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /readyz. A process is ready once topology
// discovery has booted; until then, Create/Acquire calls would fail on
// every region regardless of argument validity.
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.topo == nil || !h.topo.Booted() {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not_ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Status handles GET /status, reporting process-level diagnostics: version,
// uptime, and runtime stats alongside a topology summary.
func (h *Handlers) Status(c *gin.Context) {
	status := "running"
	numaCount, cpuCount := 0, 0
	if h.topo != nil && h.topo.Booted() {
		numaCount = h.topo.NumaCount()
		cpuCount = h.topo.CpuCount()
	} else {
		status = "not_ready"
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:       status,
		Version:      h.version,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		NumaCount:    numaCount,
		CpuCount:     cpuCount,
	})
}

// Topology handles GET /topology, a read-only snapshot for operators. It
// never accepts a request body and never mutates state.
func (h *Handlers) Topology(c *gin.Context) {
	if h.topo == nil || !h.topo.Booted() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "topology not booted"})
		return
	}

	c.JSON(http.StatusOK, TopologyResponse{
		Booted:    h.topo.Booted(),
		NumaCount: h.topo.NumaCount(),
		CpuCount:  h.topo.CpuCount(),
		Base:      h.topo.Base(),
	})
}
