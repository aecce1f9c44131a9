package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saltstream/saltstream/pkg/message"
)

// RelayConfig holds relay server configuration
type RelayConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxMsgSizeKB int
}

// DefaultRelayConfig returns default relay server configuration
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxMsgSizeKB: 1024,
	}
}

// RelayServer exposes a Bucket over HTTP so remote participants can
// exchange wrapped messages through a shared relay.
type RelayServer struct {
	bucket     *Bucket
	router     *gin.Engine
	config     *RelayConfig
	httpServer *http.Server
}

// NewRelayServer creates a relay server over bucket.
func NewRelayServer(bucket *Bucket, config *RelayConfig) *RelayServer {
	if config == nil {
		config = DefaultRelayConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &RelayServer{
		bucket: bucket,
		router: router,
		config: config,
	}
	s.setupRoutes()
	return s
}

func (s *RelayServer) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.PUT("/messages/:index", s.handlePut)
		v1.GET("/messages/:index", s.handleGet)
	}
	s.router.GET("/health", s.handleHealth)
}

// Router exposes the gin router, for tests and embedding.
func (s *RelayServer) Router() http.Handler { return s.router }

// Start runs the HTTP server until ctx is cancelled.
func (s *RelayServer) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Relay server listening on port %d", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *RelayServer) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func parseIndex(s string) ([32]byte, error) {
	var idx [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return idx, fmt.Errorf("invalid message index %q", s)
	}
	copy(idx[:], raw)
	return idx, nil
}

func (s *RelayServer) handlePut(c *gin.Context) {
	idx, err := parseIndex(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(s.config.MaxMsgSizeKB)<<10))
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty or unreadable body"})
		return
	}
	s.bucket.PutIndex(idx, body)
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

func (s *RelayServer) handleGet(c *gin.Context) {
	idx, err := parseIndex(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgs := s.bucket.GetIndex(idx)
	if len(msgs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no message at index"})
		return
	}
	encoded := make([]string, len(msgs))
	for i, m := range msgs {
		encoded[i] = base64.StdEncoding.EncodeToString(m)
	}
	c.JSON(http.StatusOK, gin.H{"messages": encoded})
}

func (s *RelayServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HTTPClient is a Transport that talks to a RelayServer.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a Transport against the relay at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPClient) msgURL(addr message.Address) string {
	idx := addr.MsgIndex()
	return fmt.Sprintf("%s/api/v1/messages/%s", h.baseURL, hex.EncodeToString(idx[:]))
}

func (h *HTTPClient) Send(ctx context.Context, addr message.Address, msg message.TransportMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.msgURL(addr), bytes.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay rejected message: %s", resp.Status)
	}
	return nil
}

func (h *HTTPClient) Receive(ctx context.Context, addr message.Address) ([]message.TransportMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.msgURL(addr), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMsgNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay error: %s", resp.Status)
	}
	var payload struct {
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode relay response: %w", err)
	}
	out := make([]message.TransportMessage, 0, len(payload.Messages))
	for _, enc := range payload.Messages {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		out = append(out, raw)
	}
	if len(out) == 0 {
		return nil, ErrMsgNotFound
	}
	return out, nil
}
