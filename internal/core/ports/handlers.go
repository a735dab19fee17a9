package ports

import "github.com/gin-gonic/gin"

type AuthHTTPHandler interface {
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
}

type StreamHTTPHandler interface {
	CreateStream(c *gin.Context)
	GetStream(c *gin.Context)
	UpdateStream(c *gin.Context)
	DeleteStream(c *gin.Context)
	ListStreams(c *gin.Context)
	StartStream(c *gin.Context)
	StopStream(c *gin.Context)
	GetStreamMetrics(c *gin.Context)
}
