package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wafferli-chat-service/internal/middleware"
	"wafferli-chat-service/internal/models"
	"wafferli-chat-service/internal/repositories"
)

// ConversationHandler serves the REST surface the marketplace web client
// uses to bootstrap its chat views before the websocket opens.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages, users: users}
}

// List returns the caller's conversations with enriched peer profiles.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)

	convs, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	peerIDs := make([]int64, 0, len(convs))
	for _, conv := range convs {
		peerIDs = append(peerIDs, conv.PeerOf(userID))
	}
	profiles, err := h.users.GetProfiles(c.Request.Context(), peerIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load peer profiles"})
		return
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, models.ConversationSummary{
			Conversation: conv,
			Peer:         profiles[conv.PeerOf(userID)],
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// Messages returns the full message history of one conversation. Deleted
// messages come back as tombstones with their content stripped.
func (h *ConversationHandler) Messages(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := middleware.UserID(c)
	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.messages.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
