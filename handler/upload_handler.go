package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
)

const DefaultMaxUploadSize = 10 << 20

type UploadHandler struct {
	documents *service.DocumentService
	maxSize   int64
}

func NewUploadHandler(documents *service.DocumentService, maxSize int64) *UploadHandler {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	return &UploadHandler{
		documents: documents,
		maxSize:   maxSize,
	}
}

type uploadOutcome struct {
	result *types.ProcessResult
	err    error
}

func processStatus(res *types.ProcessResult) int {
	if res.Status == types.ProcessStatusStorageFailed {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func uploadResponse(res *types.ProcessResult) types.DataResponse {
	return types.DataResponse{
		Status:  res.Status != types.ProcessStatusStorageFailed,
		Message: res.Message,
		Data:    res,
		Hints:   res.Hints,
	}
}

// UploadDocumentHandler ingests a multipart "file" field. With
// ?progress=true the stages are streamed as server-sent events and the
// outcome is sent as a final "result" event.
func (h *UploadHandler) UploadDocumentHandler(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "Invalid file")
		return
	}
	defer file.Close()

	if header.Size > h.maxSize {
		badRequest(c, "File too large")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
	if err != nil || int64(len(data)) > h.maxSize {
		badRequest(c, "Invalid file")
		return
	}

	documents := h.documents.ForCredentials(credentialsFrom(c))
	ctx := c.Request.Context()
	if c.Query("progress") != "true" {
		res, err := documents.ProcessDocument(ctx, session, header.Filename, data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(processStatus(res), uploadResponse(res))
		return
	}

	statusChan := make(chan types.UploadProgress)
	doneChan := make(chan uploadOutcome, 1)
	go func() {
		res, err := documents.ProcessDocumentWithProgress(ctx, session, header.Filename, data, func(p types.UploadProgress) {
			select {
			case statusChan <- p:
			case <-ctx.Done():
			}
		})
		doneChan <- uploadOutcome{result: res, err: err}
	}()

	for {
		select {
		case <-ctx.Done():
			return // Client disconnected
		case status := <-statusChan:
			c.SSEvent("progress", status)
			c.Writer.Flush()
		case out := <-doneChan:
			if out.err != nil {
				_ = c.Error(out.err)
				c.SSEvent("result", types.DataResponse{Status: false, Message: errorMessage(out.err)})
			} else {
				c.SSEvent("result", uploadResponse(out.result))
			}
			c.Writer.Flush()
			return
		}
	}
}
