package handlers

import (
	"net/http"
	"time"

	"messenger/services"

	"github.com/gin-gonic/gin"
)

// UploadHandler - отправка файла. multipart: file, recipient, caption, client_nonce.
// Тип медиа определяется по содержимому
func (h *MessageHandlers) UploadHandler(c *gin.Context) {
	start := time.Now()
	sender, ok := currentUser(c)
	if !ok {
		return
	}

	maxBytes := int64(h.maxUploadMB) << 20
	// Запас на поля формы
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is too large"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer file.Close()

	nonce := c.PostForm("client_nonce")
	if nonce == "" {
		nonce = c.GetHeader("Idempotency-Key")
	}

	result, err := h.delivery.Upload(c.Request.Context(), services.SendRequest{
		Sender:      sender,
		Recipient:   c.PostForm("recipient"),
		Content:     services.TextContent(c.PostForm("caption")),
		ClientNonce: nonce,
	}, file)
	observe("upload", start, err)
	if err != nil {
		respondError(c, "upload", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"message": result.Message})
}
