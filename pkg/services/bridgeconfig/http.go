package bridgeconfig

import (
	"io"
	"net/http"
	"os"

	"github.com/bridgefleet/bridgefleet/pkg/logutil"
	"github.com/gin-gonic/gin"

	services_int "github.com/bridgefleet/bridgefleet/pkg/services"
)

var _ services_int.DashboardExtension = (*ConfigService)(nil)

func (c *ConfigService) ConfigureDashboard(g gin.IRouter) {
	g.GET("/config", c.getConfig)
	g.PUT("/config", c.putConfig)
	g.POST("/config/restore", c.restoreConfig)
	g.GET("/config/backups", c.listBackups)
}

func (c *ConfigService) getConfig(gctx *gin.Context) {
	body, err := c.Read()
	if err != nil {
		if os.IsNotExist(err) {
			gctx.JSON(http.StatusNotFound, gin.H{"error": "no config file"})
			return
		}
		c.logger.With("err", err).Error("could not read config")
		gctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gctx.Data(http.StatusOK, "application/json", body)
}

func (c *ConfigService) putConfig(gctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(gctx.Request.Body, 1<<20))
	if err != nil {
		gctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.Replace(body); err != nil {
		logutil.FromContext(gctx.Request.Context()).With("err", err).Warn("config replace rejected")
		gctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gctx.Status(http.StatusNoContent)
}

func (c *ConfigService) restoreConfig(gctx *gin.Context) {
	if err := c.Restore(); err != nil {
		c.logger.With("err", err).Warn("config restore failed")
		gctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gctx.Status(http.StatusNoContent)
}

func (c *ConfigService) listBackups(gctx *gin.Context) {
	backups, err := c.Backups()
	if err != nil {
		c.logger.With("err", err).Error("could not list backups")
		gctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gctx.JSON(http.StatusOK, backups)
}
