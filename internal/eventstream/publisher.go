package eventstream

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/pulsewave/internal/cue"
)

// Config holds configuration for the event stream server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the per-client queue depth
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   8,
		ClientBuffer: 32,
	}
}

// Publisher fans hub events out to gRPC watchers. A client that falls behind
// misses events rather than slowing the publisher.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	eventCh   chan *structpb.Struct
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	published   atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	eventCh chan *structpb.Struct
	doneCh  chan struct{}
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:  cfg,
		eventCh: make(chan *structpb.Struct, 100),
		clients: make(map[string]*clientStream),
		stopCh:  make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve starts serving on lis in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if p.running.Swap(true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterEventStreamServer(p.server, p)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("[EventStream] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[EventStream] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stopCh)

	// Ending client streams first lets GracefulStop return.
	p.clientsMu.Lock()
	for id, c := range p.clients {
		close(c.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()

	if p.server != nil {
		p.server.GracefulStop()
	}
	p.wg.Wait()
	log.Printf("[EventStream] gRPC server stopped")
}

// Publish queues an event for every client. It never blocks.
func (p *Publisher) Publish(ev *structpb.Struct) {
	if !p.running.Load() {
		return
	}
	select {
	case p.eventCh <- ev:
		p.published.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// OnTransition implements cue.TransitionListener.
func (p *Publisher) OnTransition(ev cue.TransitionEvent) { p.Publish(TransitionStruct(ev)) }

// OnCue implements cue.CueListener.
func (p *Publisher) OnCue(ev cue.CueEvent) { p.Publish(CueStruct(ev)) }

// Watch implements EventStreamServer.
func (p *Publisher) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	client, err := p.addClient()
	if err != nil {
		return err
	}
	defer p.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.doneCh:
			return nil
		case ev := <-client.eventCh:
			if err := stream.SendMsg(ev); err != nil {
				return err
			}
		}
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case ev := <-p.eventCh:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.eventCh <- ev:
				default:
					// Client is slow, drop the event for this client.
					p.dropped.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient() (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if !p.running.Load() {
		return nil, status.Error(codes.Unavailable, "event stream stopping")
	}
	if len(p.clients) >= p.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "too many watchers (max %d)", p.config.MaxClients)
	}
	client := &clientStream{
		id:      "watch-" + strconv.FormatUint(p.nextID.Add(1), 10),
		eventCh: make(chan *structpb.Struct, p.config.ClientBuffer),
		doneCh:  make(chan struct{}),
	}
	p.clients[client.id] = client
	n := p.clientCount.Add(1)
	log.Printf("[EventStream] Client connected: %s (total: %d)", client.id, n)
	return client, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	client, ok := p.clients[id]
	if ok {
		close(client.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	n := p.clientCount.Add(-1)
	log.Printf("[EventStream] Client disconnected: %s (remaining: %d)", id, n)
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published:   p.published.Load(),
		Dropped:     p.dropped.Load(),
		ClientCount: p.clientCount.Load(),
		Running:     p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	ClientCount int32  `json:"clients"`
	Running     bool   `json:"running"`
}
