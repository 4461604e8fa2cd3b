package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/VetheonGames/sharenode/pkg/chunking"
	"github.com/VetheonGames/sharenode/pkg/filemanager"
	"github.com/VetheonGames/sharenode/pkg/node"
	"github.com/VetheonGames/sharenode/pkg/peer"
	"github.com/VetheonGames/sharenode/pkg/registry"
	"github.com/VetheonGames/sharenode/pkg/stats"
	"github.com/VetheonGames/sharenode/pkg/types"
)

// Node is the part of *node.Node the control API drives
type Node interface {
	Self() types.Addr
	Clock() uint64
	ChunkSize() int
	SetChunkSize(size int) error
	ListNeighbors() []peer.Neighbor
	ListRemoteFiles() []registry.Entry
	ListLocalFiles() ([]filemanager.FileInfo, error)
	LocalFile(name string) (filemanager.FileInfo, error)
	CacheStats() (int, uint64)
	Hello(ctx context.Context, to types.Addr) error
	GossipRound(ctx context.Context) node.GossipReport
	DiscoverFiles(ctx context.Context) node.GossipReport
	DownloadFile(ctx context.Context, req node.DownloadRequest) (*node.DownloadResult, error)
	StatsSummary() []stats.Summary
}

// Server is the JSON control API of a node
type Server struct {
	node   Node
	router *mux.Router

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a control API for n
func NewServer(n Node) *Server {
	s := &Server{
		node:   n,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Basic health check
	s.router.HandleFunc("/ping", s.handlePing).Methods("GET")
	s.router.HandleFunc("/node", s.handleNode).Methods("GET")

	// Neighbors
	s.router.HandleFunc("/neighbors", s.handleNeighbors).Methods("GET")
	s.router.HandleFunc("/neighbors/{addr}/hello", s.handleHello).Methods("POST")
	s.router.HandleFunc("/gossip", s.handleGossip).Methods("POST")

	// Files
	s.router.HandleFunc("/files/local", s.handleLocalFiles).Methods("GET")
	s.router.HandleFunc("/files/local/{name}", s.handleLocalFile).Methods("GET")
	s.router.HandleFunc("/files/remote", s.handleRemoteFiles).Methods("GET")
	s.router.HandleFunc("/files/discover", s.handleDiscover).Methods("POST")
	s.router.HandleFunc("/download", s.handleDownload).Methods("POST")
	s.router.HandleFunc("/chunksize", s.handleChunkSize).Methods("PUT")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns the bound
// address.
func (s *Server) Start(addr string) (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return nil, errors.New("control API already started")
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = l
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Infof("Control API listening on %s", l.Addr())
		if err := s.http.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("Control API stopped: %v", err)
		}
	}()
	return l.Addr(), nil
}

// Stop shuts the HTTP server down and waits for it to exit
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type nodeInfo struct {
	Addr         types.Addr `json:"addr"`
	Multiaddr    string     `json:"multiaddr,omitempty"`
	Clock        uint64     `json:"clock"`
	ChunkSize    int        `json:"chunk_size"`
	CachedChunks int        `json:"cached_chunks"`
	CachedBytes  uint64     `json:"cached_bytes"`
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	self := s.node.Self()
	chunks, bytes := s.node.CacheStats()
	writeJSON(w, http.StatusOK, nodeInfo{
		Addr:         self,
		Multiaddr:    multiaddrString(self),
		Clock:        s.node.Clock(),
		ChunkSize:    s.node.ChunkSize(),
		CachedChunks: chunks,
		CachedBytes:  bytes,
	})
}

type neighborInfo struct {
	peer.Neighbor
	Multiaddr string `json:"multiaddr,omitempty"`
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	neighbors := s.node.ListNeighbors()
	out := make([]neighborInfo, 0, len(neighbors))
	for _, nb := range neighbors {
		out = append(out, neighborInfo{Neighbor: nb, Multiaddr: multiaddrString(nb.Addr)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	addr, err := types.ParseAddr(mux.Vars(r)["addr"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.node.Hello(r.Context(), addr); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GossipRound(r.Context()))
}

func (s *Server) handleLocalFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.node.ListLocalFiles()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleLocalFile(w http.ResponseWriter, r *http.Request) {
	info, err := s.node.LocalFile(mux.Vars(r)["name"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, info)
	case errors.Is(err, filemanager.ErrFileNotFound), errors.Is(err, filemanager.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleRemoteFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.ListRemoteFiles())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.DiscoverFiles(r.Context()))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req node.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.node.DownloadFile(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, node.ErrIncomplete):
		// The partial result tells the caller which chunks are missing
		writeJSON(w, http.StatusPartialContent, result)
	case errors.Is(err, filemanager.ErrInvalidName), errors.Is(err, chunking.ErrNoPeers):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type chunkSizeRequest struct {
	ChunkSize int `json:"chunk_size"`
}

func (s *Server) handleChunkSize(w http.ResponseWriter, r *http.Request) {
	var req chunkSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.node.SetChunkSize(req.ChunkSize); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, chunkSizeRequest{ChunkSize: s.node.ChunkSize()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.StatsSummary())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Writing response: %v", err)
	}
}

func multiaddrString(addr types.Addr) string {
	ma, err := peer.Multiaddr(addr)
	if err != nil {
		return ""
	}
	return ma.String()
}
