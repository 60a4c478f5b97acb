package service

import (
	"context"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

type HealthzServer struct {
	log    log.Logger
	server *http.Server
	ln     net.Listener
}

// Listen binds addr. Serve must be called to accept requests.
func (h *HealthzServer) Listen(addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc(HealthzPath, h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.ln = ln
	h.server = &http.Server{Handler: c.Handler(hdlr)}
	return nil
}

func (h *HealthzServer) Serve() error {
	return h.server.Serve(h.ln)
}

// Addr is the bound address, or nil before Listen.
func (h *HealthzServer) Addr() net.Addr {
	if h.ln == nil {
		return nil
	}
	return h.ln.Addr()
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
