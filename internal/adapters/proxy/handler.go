package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/bamview-paas/internal/core/ports"
)

// Handler serves /proxy/:session/* by forwarding to the container address
// registered in the routing table.
type Handler struct {
	routes ports.RouteTable
}

// NewHandler creates a new proxy handler.
func NewHandler(routes ports.RouteTable) *Handler {
	return &Handler{routes: routes}
}

// Forward resolves the session's binding and reverse-proxies the request to
// the container's private address.
func (h *Handler) Forward(c *fiber.Ctx) error {
	sessionID := c.Params("session")

	binding, ok := h.routes.Lookup(sessionID)
	if !ok {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Session '%s' has no active route", sessionID))
	}

	remote, err := url.Parse(fmt.Sprintf("http://%s:%d", binding.TargetHost, binding.TargetPort))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	prefix := strings.TrimSuffix(binding.PublicPath, "/")
	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Custom Director: rewrite Host header to target and strip the public
	// prefix so the viewer inside the container sees its own paths.
	// This ensures the container receives a request with a Host header it
	// expects, avoiding "Host not recognized" errors from the application
	// inside.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Host = remote.Host
		req.URL.Scheme = remote.Scheme
		req.URL.Path = strings.TrimPrefix(req.URL.Path, prefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
	}

	// Error Handler: return standard BadGateway if connectivity fails
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(fmt.Sprintf("Proxy Info: target=%s:%d error=%v", binding.TargetHost, binding.TargetPort, err)))
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}
