package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"shopping-agent/internal/usecase"
)

// Register mounts the search and health routes on r for the dev server.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/search", h.handleGinSearch)
}

func (h *Handler) handleGinSearch(c *gin.Context) {
	cid := correlationID(c.Request.Header)
	c.Header(headerCorrelationID, cid)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		rej := reject(&usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "unreadable_body", Err: err})
		c.JSON(rej.status, rej.body)
		return
	}

	in, rej := h.admit(c.Request.Context(), c.Request.Header, body)
	if rej != nil {
		c.JSON(rej.status, rej.body)
		return
	}

	for k, v := range streamHeaders(cid) {
		c.Header(k, v)
	}
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	h.serve(c.Request.Context(), cid, in, c.Writer)
}
