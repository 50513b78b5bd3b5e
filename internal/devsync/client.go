// Package devsync keeps a running process in step with a development server.
// It subscribes to the server's socket.io channel and invalidates scripts
// when the server reports that they were rebuilt.
package devsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names sent by the development server.
const (
	EventInvalidate = "invalidate"
	EventCompiled   = "compiled"
)

const connectTimeout = 15 * time.Second

// Invalidator drops cached scripts. *manager.Manager satisfies it.
type Invalidator interface {
	InvalidateScripts(ctx context.Context, ids []string) error
}

// Client is a socket.io subscriber bound to one Invalidator.
type Client struct {
	url       *url.URL
	namespace string
	target    Invalidator

	io *socket.Socket
}

// New creates a Client for rawURL. The URL path is used as the socket.io
// path; namespace may be empty for the default namespace.
func New(rawURL, namespace string, target Invalidator) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dev server URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dev server URL %q must be absolute", rawURL)
	}
	if namespace == "" {
		namespace = "/"
	}
	return &Client{url: u, namespace: namespace, target: target}, nil
}

// Connect dials the server and subscribes to invalidation events. It waits
// for the connection to be acknowledged. Events are handled with a context
// derived from ctx, detached from its cancellation.
func (c *Client) Connect(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("component", "devsync", "url", c.url.String())
	logger.Info("Connecting to dev server...")

	opts := socket.DefaultOptions()
	if c.url.Path != "" && c.url.Path != "/" {
		opts.SetPath(c.url.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", c.url.Scheme, c.url.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(c.namespace, opts)

	eventCtx := ctxlog.WithLogger(context.WithoutCancel(ctx), logger)
	io.On(types.EventName(EventInvalidate), func(data ...any) {
		c.handleInvalidate(eventCtx, data...)
	})
	io.On(types.EventName(EventCompiled), func(...any) {
		c.handleCompiled(eventCtx)
	})

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("🔌 Connected to dev server.", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
		c.io = io
		return nil
	case <-ctx.Done():
		io.Disconnect()
		return fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Close disconnects from the server.
func (c *Client) Close() {
	if c.io == nil {
		return
	}
	slog.Debug("Disconnecting from dev server.", "sid", c.io.Id())
	c.io.Disconnect()
	c.io = nil
}

func (c *Client) handleInvalidate(ctx context.Context, data ...any) {
	logger := ctxlog.FromContext(ctx)
	ids, err := DecodeIDs(data...)
	if err != nil {
		logger.Warn("Ignoring malformed invalidate event.", "error", err)
		return
	}
	logger.Info("♻️ Dev server invalidated scripts.", "ids", ids)
	if err := c.target.InvalidateScripts(ctx, ids); err != nil {
		logger.Error("Failed to invalidate scripts.", "error", err)
	}
}

func (c *Client) handleCompiled(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("♻️ Dev server finished a build, clearing all scripts.")
	if err := c.target.InvalidateScripts(ctx, nil); err != nil {
		logger.Error("Failed to invalidate scripts.", "error", err)
	}
}
