package updates

import (
	"net/http"

	"github.com/bridgefleet/bridgefleet/pkg/util/grpcutil"
	"github.com/gin-gonic/gin"

	services_int "github.com/bridgefleet/bridgefleet/pkg/services"
)

var _ services_int.DashboardExtension = (*UpdateService)(nil)

func (u *UpdateService) ConfigureDashboard(g gin.IRouter) {
	g.GET("/updates/latest", u.getLatest)
}

func (u *UpdateService) getLatest(gctx *gin.Context) {
	release, err := u.Latest(gctx.Request.Context())
	if err != nil {
		if grpcutil.IsErrorNotFound(err) {
			gctx.JSON(http.StatusNotFound, gin.H{"error": "no release observed yet"})
			return
		}
		u.logger.With("err", err).Error("could not load latest release")
		gctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gctx.JSON(http.StatusOK, release)
}
