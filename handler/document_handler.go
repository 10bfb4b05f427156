package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
	}
}

func (h *DocumentHandler) HandleList(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	docs, err := h.documents.ListDocuments(c.Request.Context(), session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{
		Status: true,
		Data:   types.DocumentListResponse{Documents: docs},
	})
}

func deleteStatus(status types.DeleteStatus) int {
	switch status {
	case types.DeleteStatusSuccess:
		return http.StatusOK
	case types.DeleteStatusNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *DocumentHandler) respondDelete(c *gin.Context, res *types.DeleteResult) {
	c.JSON(deleteStatus(res.Status), types.DataResponse{
		Status:  res.Status == types.DeleteStatusSuccess,
		Message: res.Message,
		Data:    res,
	})
}

func (h *DocumentHandler) HandleDelete(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	filename := strings.TrimSpace(c.Param("filename"))
	if filename == "" {
		badRequest(c, "Filename is required")
		return
	}
	h.respondDelete(c, h.documents.DeleteDocument(c.Request.Context(), session, filename))
}

func (h *DocumentHandler) HandleDeleteByHash(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	if hash == "" {
		badRequest(c, "Document hash is required")
		return
	}
	h.respondDelete(c, h.documents.DeleteDocumentByHash(c.Request.Context(), session, hash))
}

func (h *DocumentHandler) HandleVerify(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	res := h.documents.VerifyDocument(c.Request.Context(), session, c.Param("hash"))
	code := http.StatusOK
	switch res.Status {
	case types.VerifyStatusNotFound:
		code = http.StatusNotFound
	case types.VerifyStatusError:
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, types.DataResponse{
		Status:  res.Status == types.VerifyStatusStored,
		Message: res.Message,
		Data:    res,
	})
}

// HandleContext returns the ranked passages for a query without asking the
// model.
func (h *DocumentHandler) HandleContext(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	var req types.ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		badRequest(c, "Invalid request body")
		return
	}
	passages := h.documents.ForCredentials(credentialsFrom(c)).GetContext(c.Request.Context(), session, req.Query, req.Document)
	res := types.DataResponse{
		Status: true,
		Data:   types.ContextResponse{Passages: passages},
	}
	if len(passages) == 0 {
		res.Message = service.NoPassagesFound
	}
	c.JSON(http.StatusOK, res)
}
