package routes

import (
	"messenger/api/handlers"

	"github.com/gin-gonic/gin"
)

// MessagesApi регистрирует API личных сообщений. auth обязателен,
// sendLimit ограничивает создание сообщений
func MessagesApi(router *gin.Engine, h *handlers.MessageHandlers, auth, sendLimit gin.HandlerFunc) *gin.RouterGroup {
	messageEndpoints := router.Group("/api/v1/messages/", auth)
	{
		messageEndpoints.POST("send", sendLimit, h.SendMessageHandler)
		messageEndpoints.POST("reply", sendLimit, h.ReplyHandler)
		messageEndpoints.POST("forward", sendLimit, h.ForwardHandler)
		messageEndpoints.POST("upload", sendLimit, h.UploadHandler)

		messageEndpoints.GET("conversation/:other_id", h.ConversationHandler)
		messageEndpoints.POST("conversation/:other_id/read", h.MarkConversationReadHandler)
		messageEndpoints.GET("recent", h.RecentHandler)
		messageEndpoints.GET("unread/count", h.UnreadCountHandler)

		messageEndpoints.PATCH(":message_id/read", h.MarkReadHandler)
		messageEndpoints.PATCH(":message_id/react", h.ReactHandler)
		messageEndpoints.DELETE(":message_id/react", h.RemoveReactionHandler)
		messageEndpoints.DELETE(":message_id", h.DeleteMessageHandler)
	}
	return messageEndpoints
}
