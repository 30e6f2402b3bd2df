package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type sseWriter struct {
	c       *gin.Context
	started bool
}

// start writes the event-stream headers once, before the first event.
func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.c.Status(http.StatusOK)
}

func (s *sseWriter) event(name string, data interface{}) {
	s.start()
	j, _ := json.Marshal(data)
	fmt.Fprintf(s.c.Writer, "event: %s\ndata: %s\n\n", name, j)
	s.c.Writer.Flush()
}

func (s *sseWriter) done() {
	s.event("done", map[string]string{})
}
