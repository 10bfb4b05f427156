package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
)

type FeedbackHandler struct {
	feedback service.FeedbackService
	activity service.ActivityService
}

func NewFeedbackHandler(feedback service.FeedbackService, activity service.ActivityService) *FeedbackHandler {
	return &FeedbackHandler{
		feedback: feedback,
		activity: activity,
	}
}

func (h *FeedbackHandler) HandleSubmit(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	var req types.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	fb, err := h.feedback.Submit(c.Request.Context(), session, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: true, Data: fb})
}

func (h *FeedbackHandler) HandleStats(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	stats, err := h.feedback.Stats(c.Request.Context(), session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: true, Data: stats})
}

func (h *FeedbackHandler) HandleActivity(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		badRequest(c, "Invalid limit")
		return
	}
	entries, err := h.activity.Recent(c.Request.Context(), session, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: true, Data: entries})
}
