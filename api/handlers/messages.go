package handlers

import (
	"net/http"
	"strconv"
	"time"

	"messenger/api/middleware"
	"messenger/models"
	"messenger/services"

	"github.com/gin-gonic/gin"
)

const serviceName = "messenger"

// MessageHandlers содержит обработчики личных сообщений
type MessageHandlers struct {
	delivery    *services.Delivery
	maxUploadMB int
}

// NewMessageHandlers создает обработчики поверх протокола доставки
func NewMessageHandlers(delivery *services.Delivery, maxUploadMB int) *MessageHandlers {
	if maxUploadMB <= 0 {
		maxUploadMB = 5
	}
	return &MessageHandlers{delivery: delivery, maxUploadMB: maxUploadMB}
}

// SendMessageRequest - тело запроса отправки. Kind по умолчанию text,
// content - текст или подпись к медиа; MediaPath берётся из ответа upload
type SendMessageRequest struct {
	Recipient   string             `json:"recipient" binding:"required"`
	Kind        models.ContentKind `json:"kind"`
	Content     string             `json:"content"`
	MediaPath   string             `json:"media_path"`
	ReplyTo     string             `json:"reply_to"`
	ClientNonce string             `json:"client_nonce"`
}

func (r SendMessageRequest) content() services.Content {
	if r.Kind == "" || r.Kind == models.KindText {
		return services.TextContent(r.Content)
	}
	return services.MediaContent(r.Kind, r.MediaPath, r.Content)
}

// ReplyRequest - ответ; content - текст или подпись к медиа
type ReplyRequest struct {
	ParentID  string             `json:"parent_id" binding:"required"`
	Kind      models.ContentKind `json:"kind"`
	Content   string             `json:"content"`
	MediaPath string             `json:"media_path"`
}

type ForwardRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
}

type ReactRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// currentUser достаёт id пользователя, выставленный AuthMiddleware
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return userID, ok
}

func observe(operation string, start time.Time, err error) {
	middleware.RecordMessagingOperation(operation, serviceName, time.Since(start), err)
}

// SendMessageHandler - отправка сообщения. Повтор с тем же client_nonce
// возвращает сохранённое сообщение со статусом 200
func (h *MessageHandlers) SendMessageHandler(c *gin.Context) {
	start := time.Now()
	sender, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.ClientNonce == "" {
		req.ClientNonce = c.GetHeader("Idempotency-Key")
	}

	result, err := h.delivery.Send(c.Request.Context(), services.SendRequest{
		Sender:      sender,
		Recipient:   req.Recipient,
		Content:     req.content(),
		ReplyTo:     req.ReplyTo,
		ClientNonce: req.ClientNonce,
	})
	observe("send", start, err)
	if err != nil {
		respondError(c, "send", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"message": result.Message})
}

// ConversationHandler - опрос диалога с other_id.
// after/before - RFC3339, mark_read=true помечает входящие прочитанными
func (h *MessageHandlers) ConversationHandler(c *gin.Context) {
	start := time.Now()
	viewer, ok := currentUser(c)
	if !ok {
		return
	}

	page, err := parsePage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	markRead, _ := strconv.ParseBool(c.DefaultQuery("mark_read", "false"))

	result, err := h.delivery.Poll(c.Request.Context(), viewer, c.Param("other_id"), page, markRead)
	observe("list_conversation", start, err)
	if err != nil {
		respondError(c, "list_conversation", err)
		return
	}

	setPollInterval(c, result.PollInterval)
	body := gin.H{"messages": result.Messages, "marked_read": result.MarkedRead}
	if result.NextAfter != nil {
		next := result.NextAfter.UTC().Format(time.RFC3339Nano)
		c.Header("X-Next-After", next)
		body["next_after"] = next
	}
	c.JSON(http.StatusOK, body)
}

// RecentHandler - список диалогов пользователя
func (h *MessageHandlers) RecentHandler(c *gin.Context) {
	start := time.Now()
	viewer, ok := currentUser(c)
	if !ok {
		return
	}

	limit, err := parseLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.delivery.Recent(c.Request.Context(), viewer, limit)
	observe("list_recent", start, err)
	if err != nil {
		respondError(c, "list_recent", err)
		return
	}

	setPollInterval(c, result.PollInterval)
	c.JSON(http.StatusOK, gin.H{"conversations": result.Conversations})
}

// UnreadCountHandler - число непрочитанных, всего или в диалоге с other_id
func (h *MessageHandlers) UnreadCountHandler(c *gin.Context) {
	start := time.Now()
	viewer, ok := currentUser(c)
	if !ok {
		return
	}

	var (
		count int64
		err   error
	)
	if other := c.Query("other_id"); other != "" {
		count, err = h.delivery.Tracker.UnreadCountWith(c.Request.Context(), viewer, other)
	} else {
		count, err = h.delivery.Tracker.UnreadCount(c.Request.Context(), viewer)
	}
	observe("unread_count", start, err)
	if err != nil {
		respondError(c, "unread_count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkReadHandler - отметить одно сообщение прочитанным
func (h *MessageHandlers) MarkReadHandler(c *gin.Context) {
	start := time.Now()
	viewer, ok := currentUser(c)
	if !ok {
		return
	}

	msg, err := h.delivery.Tracker.MarkMessageRead(c.Request.Context(), c.Param("message_id"), viewer)
	observe("mark_read", start, err)
	if err != nil {
		respondError(c, "mark_read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// MarkConversationReadHandler - отметить прочитанными все входящие от other_id
func (h *MessageHandlers) MarkConversationReadHandler(c *gin.Context) {
	start := time.Now()
	viewer, ok := currentUser(c)
	if !ok {
		return
	}

	marked, err := h.delivery.Tracker.MarkConversationRead(c.Request.Context(), viewer, c.Param("other_id"))
	observe("mark_conversation_read", start, err)
	if err != nil {
		respondError(c, "mark_conversation_read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// ReactHandler - поставить или заменить реакцию
func (h *MessageHandlers) ReactHandler(c *gin.Context) {
	start := time.Now()
	reactor, ok := currentUser(c)
	if !ok {
		return
	}

	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.delivery.Reactions.React(c.Request.Context(), c.Param("message_id"), reactor, req.Kind)
	observe("react", start, err)
	if err != nil {
		respondError(c, "react", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// RemoveReactionHandler - снять свою реакцию
func (h *MessageHandlers) RemoveReactionHandler(c *gin.Context) {
	start := time.Now()
	reactor, ok := currentUser(c)
	if !ok {
		return
	}

	msg, err := h.delivery.Reactions.RemoveReaction(c.Request.Context(), c.Param("message_id"), reactor)
	observe("remove_reaction", start, err)
	if err != nil {
		respondError(c, "remove_reaction", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// ForwardHandler - переслать сообщение другому пользователю
func (h *MessageHandlers) ForwardHandler(c *gin.Context) {
	start := time.Now()
	requester, ok := currentUser(c)
	if !ok {
		return
	}

	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.delivery.Store.Forward(c.Request.Context(), req.MessageID, req.Recipient, requester)
	observe("forward", start, err)
	if err != nil {
		respondError(c, "forward", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ReplyHandler - ответ на сообщение в том же диалоге
func (h *MessageHandlers) ReplyHandler(c *gin.Context) {
	start := time.Now()
	sender, ok := currentUser(c)
	if !ok {
		return
	}

	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	content := services.TextContent(req.Content)
	if req.Kind != "" && req.Kind != models.KindText {
		content = services.MediaContent(req.Kind, req.MediaPath, req.Content)
	}

	msg, err := h.delivery.Reply(c.Request.Context(), req.ParentID, sender, content)
	observe("reply", start, err)
	if err != nil {
		respondError(c, "reply", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// DeleteMessageHandler - удалить своё сообщение
func (h *MessageHandlers) DeleteMessageHandler(c *gin.Context) {
	start := time.Now()
	requester, ok := currentUser(c)
	if !ok {
		return
	}

	err := h.delivery.Store.SoftDelete(c.Request.Context(), c.Param("message_id"), requester)
	observe("delete", start, err)
	if err != nil {
		respondError(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func setPollInterval(c *gin.Context, interval time.Duration) {
	c.Header("X-Poll-Interval", strconv.Itoa(int(interval.Seconds())))
}
