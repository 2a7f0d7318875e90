package api

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/authz"
	"github.com/codeready-toolchain/loom/pkg/weaver"
)

// registerWeaverRoutes mounts the session-authenticated sandbox lifecycle
// surface: create/list/get/delete a weaver, tail its logs over SSE, and
// attach an interactive exec session over WebSocket.
func (s *Server) registerWeaverRoutes(g *gin.RouterGroup) {
	g.POST("/orgs/:org_id/weavers", authz.Authorize(abac.ActionWrite, s.loadOrgResource), s.handleCreateWeaver)
	g.GET("/weavers", s.handleListWeavers)
	g.GET("/weavers/:id", s.handleGetWeaver)
	g.DELETE("/weavers/:id", s.handleDeleteWeaver)
	g.GET("/weavers/:id/logs", s.handleWeaverLogs)
	g.GET("/weavers/:id/attach", s.handleWeaverAttach)
}

func (s *Server) handleCreateWeaver(c *gin.Context) {
	subject, ok := authz.SubjectFrom(c)
	if !ok {
		respondErr(c, apperr.Unauthorized("authentication required"))
		return
	}
	var req weaver.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		respondErr(c, apperr.InvalidInput("image", "image is required"))
		return
	}
	req.OrgID = ids.OrgID(c.Param("org_id"))
	req.OwnerUserID = subject.UserID

	start := time.Now()
	w, err := s.weavers.Create(c.Request.Context(), req)
	if s.metrics != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		s.metrics.RecordWeaverProvision(result, time.Since(start))
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordWeaverTransition(weaver.StatusPending.String(), w.Status.String())
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Server) handleListWeavers(c *gin.Context) {
	all, err := s.weavers.List(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"weavers": all})
}

func (s *Server) handleGetWeaver(c *gin.Context) {
	id, err := ids.ParseWeaverID(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.InvalidID("malformed weaver id"))
		return
	}
	w, err := s.weavers.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, apperr.NotFound("weaver not found"))
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handleDeleteWeaver(c *gin.Context) {
	id, err := ids.ParseWeaverID(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.InvalidID("malformed weaver id"))
		return
	}
	if err := s.weavers.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordWeaverTransition(weaver.StatusRunning.String(), weaver.StatusTerminating.String())
	}
	c.Status(http.StatusNoContent)
}

// handleWeaverLogs streams the weaver's container log line-by-line as SSE,
// so a browser can tail it with a plain EventSource the way the flag stream
// already does.
func (s *Server) handleWeaverLogs(c *gin.Context) {
	id, err := ids.ParseWeaverID(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.InvalidID("malformed weaver id"))
		return
	}

	var tail *int64
	if raw := c.Query("tail"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tail = &n
		}
	}
	timestamps := c.Query("timestamps") == "true"

	reader, err := s.weavers.Logs(c.Request.Context(), id, tail, timestamps)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondErr(c, apperr.Internal("streaming unsupported", nil))
		return
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if _, err := c.Writer.Write([]byte("data: " + scanner.Text() + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleWeaverAttach upgrades to a WebSocket and pipes binary frames to and
// from the weaver's exec stream using a plain accept-then-block shape.
func (s *Server) handleWeaverAttach(c *gin.Context) {
	id, err := ids.ParseWeaverID(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.InvalidID("malformed weaver id"))
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request.Context()
	stdin := &wsReader{ctx: ctx, conn: conn}
	stdout := &wsWriter{ctx: ctx, conn: conn}

	if err := s.weavers.Attach(ctx, id, stdin, stdout, stdout); err != nil {
		conn.Close(websocket.StatusInternalError, err.Error())
	}
}

// wsReader adapts a websocket.Conn's binary message stream to io.Reader for
// Provisioner.Attach's stdin, buffering whatever is left of a frame across
// Read calls that are smaller than one message.
type wsReader struct {
	ctx  context.Context
	conn *websocket.Conn
	mu   sync.Mutex
	buf  []byte
}

func (r *wsReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		_, data, err := r.conn.Read(r.ctx)
		if err != nil {
			return 0, err
		}
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// wsWriter adapts a websocket.Conn to io.Writer, framing every write as one
// binary message.
type wsWriter struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.Write(w.ctx, websocket.MessageBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
