package fakeapi

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Transport routes HTTP requests straight into the fiber app without a
// listening socket.
type Transport struct {
	App *fiber.App
}

func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	return t.App.Test(req, -1)
}

// Client returns an http.Client whose requests are served in-process.
func (s *Server) Client() *http.Client {
	return &http.Client{Transport: Transport{App: s.app}}
}
