package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
)

type sendMessageRequest struct {
	Message       string `json:"message"`
	UsePerplexity bool   `json:"usePerplexity"`
}

func (h *Handler) handleCreateConversation(c *gin.Context) {
	id, err := h.chat.Create(c.Request.Context())
	if err != nil {
		h.logger.Error("create conversation failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversationId": id})
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	conv, err := h.chat.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, msgNotFound, nil)
			return
		}
		h.logger.Error("get conversation failed", zap.String("conversation_id", c.Param("id")), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, msgMessageRequired, nil)
		return
	}

	id := c.Param("id")
	result, err := h.chat.SendMessage(c.Request.Context(), id, req.Message, req.UsePerplexity)
	if err != nil {
		status, body := turnErrorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("error processing message", zap.String("conversation_id", id), zap.Error(err))
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleDeleteConversation(c *gin.Context) {
	err := h.chat.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, msgNotFound, nil)
			return
		}
		h.logger.Error("delete conversation failed", zap.String("conversation_id", c.Param("id")), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

func (h *Handler) handleListConversations(c *gin.Context) {
	summaries, err := h.chat.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list conversations failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, summaries)
}
