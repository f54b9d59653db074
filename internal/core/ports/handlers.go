package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	ListLinks(c *gin.Context)
	GetLink(c *gin.Context)
	Connect(c *gin.Context)
	Disconnect(c *gin.Context)
	SetPreset(c *gin.Context)
	ForcePreset(c *gin.Context)
	SetAutoAdjust(c *gin.Context)
	SendFile(c *gin.Context)
	SendClipboard(c *gin.Context)
	GetQualityHistory(c *gin.Context)
	ListTransfers(c *gin.Context)
	GetControlSettings(c *gin.Context)
	SetControlSettings(c *gin.Context)
	GetAdapter(c *gin.Context)
	ReprobeAdapter(c *gin.Context)
}

type TokenHandler interface {
	IssueToken(c *gin.Context)
}
