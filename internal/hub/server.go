package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/hubclient"
	"github.com/duckpond/duckswarm/internal/metrics"
)

// Snapshot limits for the connect-time state event.
const (
	snapshotSignals = 20
	snapshotPerRing = 10
)

// Server is the hub's HTTP surface: REST ingress, websocket upgrade, and
// the read-only state endpoints.
type Server struct {
	state  *State
	socket *SocketHub
	loop   *AnalysisLoop
	router *gin.Engine
	server *http.Server
	addr   string
	log    zerolog.Logger

	// One mutex per ring keeps each append+broadcast pair atomic, so
	// subscribers observe a ring's events in ingress order even under
	// concurrent handlers.
	signalMu    sync.Mutex
	whaleMu     sync.Mutex
	launchMu    sync.Mutex
	gasMu       sync.Mutex
	mevMu       sync.Mutex
	heartbeatMu sync.Mutex
}

// NewServer wires state, socket hub, and analysis loop behind one router.
func NewServer(port int, state *State, socket *SocketHub, loop *AnalysisLoop) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(metrics.GinMiddleware())

	s := &Server{
		state:  state,
		socket: socket,
		loop:   loop,
		router: router,
		addr:   fmt.Sprintf(":%d", port),
		log:    config.NewLogger("hub"),
	}
	s.setupRoutes()
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info().Str("addr", s.addr).Msg("hub listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("hub server failed: %w", err)
	}
	return nil
}

// Stop drains the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("hub shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", func(c *gin.Context) {
		s.socket.ServeWS(c.Writer, c.Request)
	})

	api := s.router.Group("/api")
	{
		api.POST("/signal", s.handleSignal)
		api.POST("/whale/alert", s.handleWhaleAlert)
		api.POST("/token/launch", s.handleTokenLaunch)
		api.POST("/gas/update", s.handleGasUpdate)
		api.POST("/mev/opportunity", s.handleMEVOpportunity)
		api.POST("/agent/heartbeat", s.handleHeartbeat)
		api.GET("/state", s.handleState)
	}
}

func (s *Server) handleSignal(c *gin.Context) {
	var sig hubclient.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal payload"})
		return
	}

	s.signalMu.Lock()
	stored, err := s.state.AddSignal(sig)
	if err == nil {
		s.socket.Broadcast("signal", stored)
	}
	s.signalMu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metrics.HubIngress.WithLabelValues("signal").Inc()
	s.log.Info().
		Str("agent", sig.AgentName).
		Str("type", sig.Type).
		Float64("confidence", sig.Confidence).
		Msg("signal received")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleWhaleAlert(c *gin.Context) {
	var alert hubclient.WhaleAlert
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid whale alert payload"})
		return
	}
	s.whaleMu.Lock()
	stored := s.state.AddWhaleAlert(alert)
	s.socket.Broadcast("whale:alert", stored)
	s.whaleMu.Unlock()
	metrics.HubIngress.WithLabelValues("whale_alert").Inc()
	s.log.Info().Str("agent", alert.AgentName).Str("tier", alert.Tier).Msg("whale alert received")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleTokenLaunch(c *gin.Context) {
	var launch hubclient.TokenLaunch
	if err := c.ShouldBindJSON(&launch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token launch payload"})
		return
	}
	s.launchMu.Lock()
	stored := s.state.AddTokenLaunch(launch)
	s.socket.Broadcast("token:launch", stored)
	s.launchMu.Unlock()
	metrics.HubIngress.WithLabelValues("token_launch").Inc()
	s.log.Info().Str("agent", launch.AgentName).Float64("progress", launch.Progress).Msg("token launch received")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleGasUpdate(c *gin.Context) {
	var update hubclient.GasUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gas update payload"})
		return
	}
	s.gasMu.Lock()
	stored := s.state.AddGasUpdate(update)
	s.socket.Broadcast("gas:update", stored)
	s.gasMu.Unlock()
	metrics.HubIngress.WithLabelValues("gas_update").Inc()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleMEVOpportunity(c *gin.Context) {
	var op hubclient.MEVOpportunity
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mev payload"})
		return
	}
	s.mevMu.Lock()
	stored := s.state.AddMEVOpportunity(op)
	s.socket.Broadcast("mev:opportunity", stored)
	s.mevMu.Unlock()
	metrics.HubIngress.WithLabelValues("mev_opportunity").Inc()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var hb hubclient.Heartbeat
	if err := c.ShouldBindJSON(&hb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid heartbeat payload"})
		return
	}
	s.heartbeatMu.Lock()
	rec, err := s.state.Heartbeat(hb)
	if err == nil {
		s.socket.Broadcast("agent:heartbeat", rec)
	}
	s.heartbeatMu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleState(c *gin.Context) {
	signals, alerts, launches, mev, _ := s.state.Totals()
	focal := s.state.FocalToken()

	c.JSON(http.StatusOK, gin.H{
		"uptime":        s.state.Uptime().Milliseconds(),
		"agents":        s.state.Agents(),
		"confluence":    ComputeConsensus(s.state.AgentSignals(), time.Now()),
		"totalSignals":  signals,
		"totalAlerts":   alerts,
		"totalLaunches": launches,
		"totalMev":      mev,
		"recentSignals": s.state.Signals(snapshotSignals),
		"recentAlerts":  s.state.WhaleAlerts(snapshotPerRing),
		"currentToken":  focal,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	fresh := 0
	cutoff := time.Now().Add(-SignalExpiry).UnixMilli()
	for _, sig := range s.state.AgentSignals() {
		if sig.ReceivedAt >= cutoff {
			fresh++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"uptime":           s.state.Uptime().Milliseconds(),
		"agents":           len(s.state.Agents()),
		"connections":      s.socket.ClientCount(),
		"currentToken":     s.state.FocalToken(),
		"confluenceAgents": fresh,
	})
}

// Snapshot builds the connect-time state event for new subscribers.
func Snapshot(state *State) any {
	focal := state.FocalToken()
	snap := gin.H{
		"signals":       state.Signals(snapshotSignals),
		"whaleAlerts":   state.WhaleAlerts(snapshotPerRing),
		"tokenLaunches": state.TokenLaunches(snapshotPerRing),
		"gasUpdates":    state.GasUpdates(snapshotPerRing),
		"mev":           state.MEVOpportunities(snapshotPerRing),
		"agents":        state.Agents(),
		"currentToken":  focal,
	}
	if focal != "" {
		if analysis := state.AnalysisFor(focal); analysis != nil {
			snap["analysis"] = analysis
		}
	}
	return snap
}
