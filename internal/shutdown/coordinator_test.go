package shutdown

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CoordinatorSuite struct {
	suite.Suite
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

// startServer runs an http.Server on a loopback listener with the coordinator
// attached, and returns its base URL.
func (s *CoordinatorSuite) startServer(c *Coordinator, handler http.Handler) (*http.Server, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	srv := &http.Server{Handler: handler}
	c.SetHTTPServer(srv)
	go func() {
		_ = srv.Serve(ln)
	}()

	return srv, "http://" + ln.Addr().String()
}

func (s *CoordinatorSuite) TestConnectionTracking() {
	c := New(time.Second)

	s.Run("starts empty and not in shutdown", func() {
		s.Zero(c.ActiveConnectionCount())
		s.False(c.InShutdown())
	})

	s.Run("connState adds on accept and removes on close", func() {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()

		c.connState(server, http.StateNew)
		s.Equal(1, c.ActiveConnectionCount())

		c.connState(server, http.StateActive)
		s.Equal(1, c.ActiveConnectionCount())

		c.connState(server, http.StateClosed)
		s.Zero(c.ActiveConnectionCount())
	})

	s.Run("hijacked connections leave the tracked set", func() {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()

		c.connState(server, http.StateNew)
		c.connState(server, http.StateHijacked)
		s.Zero(c.ActiveConnectionCount())
	})
}

func (s *CoordinatorSuite) TestOnShutdown() {
	s.Run("without a server it only flips the shutdown flag", func() {
		c := New(time.Second)
		c.OnShutdown("SIGTERM")
		s.True(c.InShutdown())
	})

	s.Run("idle server drains immediately", func() {
		c := New(5 * time.Second)
		_, baseURL := s.startServer(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		resp, err := http.Get(baseURL + "/")
		s.Require().NoError(err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		start := time.Now()
		c.OnShutdown("SIGTERM")
		s.Less(time.Since(start), 2*time.Second)
		s.True(c.InShutdown())
	})

	s.Run("new connections are refused once draining starts", func() {
		c := New(time.Second)
		_, baseURL := s.startServer(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		c.OnShutdown("SIGTERM")

		_, err := http.Get(baseURL + "/")
		s.Error(err)
	})

	s.Run("a second call is a no-op", func() {
		c := New(time.Second)
		s.startServer(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		c.OnShutdown("SIGTERM")
		c.OnShutdown("SIGINT")
		s.True(c.InShutdown())
	})
}

func (s *CoordinatorSuite) TestForceClose() {
	c := New(200 * time.Millisecond)

	release := make(chan struct{})
	_, baseURL := s.startServer(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	// Park one request in the handler so the drain cannot complete.
	requestErr := make(chan error, 1)
	go func() {
		resp, err := http.Get(baseURL + "/slow")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		requestErr <- err
	}()

	s.Eventually(func() bool {
		return c.ActiveConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	c.OnShutdown("SIGTERM")
	elapsed := time.Since(start)

	// The drain window elapsed and the socket was destroyed rather than
	// waiting on the stuck handler.
	s.GreaterOrEqual(elapsed, 200*time.Millisecond)
	s.Less(elapsed, 2*time.Second)

	select {
	case err := <-requestErr:
		s.Error(err)
	case <-time.After(2 * time.Second):
		s.Fail("in-flight request was not terminated")
	}
}
