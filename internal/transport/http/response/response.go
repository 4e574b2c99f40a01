package response

import "github.com/gin-gonic/gin"

// Envelope is the uniform API response shape: {success, data} on success,
// {success, message} on failure.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, Envelope{
		Success: true,
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, Envelope{
		Success: false,
		Message: message,
	})
}
