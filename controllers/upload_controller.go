package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/techzone/intervention-manager/utils"
)

// UploadController serves intervention photos kept on local disk
type UploadController struct {
	dir string
}

// NewUploadController serves files from dir
func NewUploadController(dir string) *UploadController {
	return &UploadController{dir: dir}
}

// GetUploadedImage handles GET /uploads/:filename - serves uploaded PNG images
func (uc *UploadController) GetUploadedImage(c *gin.Context) {
	filename := c.Param("filename")

	// Prevent directory traversal; unknown names look the same as missing ones
	if !utils.IsSafeFilename(filename) || strings.ToLower(filepath.Ext(filename)) != utils.AllowedImageFormat {
		c.Status(http.StatusNotFound)
		c.Abort()
		return
	}

	filePath := filepath.Join(uc.dir, filename)
	if info, err := os.Stat(filePath); err != nil || info.IsDir() {
		c.Status(http.StatusNotFound)
		c.Abort()
		return
	}

	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "private, max-age=86400")
	c.File(filePath)
}
