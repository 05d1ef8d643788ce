package tokens

import (
	"net/http"
	"strings"

	"github.com/bridgefleet/bridgefleet/pkg/logutil"
	"github.com/bridgefleet/bridgefleet/pkg/util/grpcutil"
	"github.com/gin-gonic/gin"

	services_int "github.com/bridgefleet/bridgefleet/pkg/services"
)

var _ services_int.DashboardExtension = (*TokenService)(nil)

type createRequest struct {
	Label string `json:"label"`
}

func (s *TokenService) ConfigureDashboard(g gin.IRouter) {
	g.POST("/tokens", s.createToken)
	g.GET("/tokens", s.listTokens)
	g.DELETE("/tokens/:id", s.revokeToken)
}

// AuthMiddleware rejects requests without a valid operator token. It is
// applied to the dashboard group, not to the agent poll route.
func (s *TokenService) AuthMiddleware() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		header := gctx.GetHeader("Authorization")
		encoded, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		record, err := s.Authenticate(gctx.Request.Context(), encoded)
		if err != nil {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		gctx.Set("token_id", record.ID)
		// Downstream handlers log with the caller's token identity.
		ctx := logutil.WithContext(gctx.Request.Context(), s.logger.With("token_id", record.ID))
		gctx.Request = gctx.Request.WithContext(ctx)
		gctx.Next()
	}
}

func (s *TokenService) createToken(gctx *gin.Context) {
	var req createRequest
	// Body is optional, a bare POST issues an unlabelled token.
	_ = gctx.ShouldBindJSON(&req)

	issued, err := s.Create(gctx.Request.Context(), req.Label)
	if err != nil {
		s.logger.With("err", err).Error("could not issue token")
		gctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gctx.JSON(http.StatusCreated, issued)
}

func (s *TokenService) listTokens(gctx *gin.Context) {
	records, err := s.List(gctx.Request.Context())
	if err != nil {
		s.logger.With("err", err).Error("could not list tokens")
		gctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gctx.JSON(http.StatusOK, records)
}

func (s *TokenService) revokeToken(gctx *gin.Context) {
	id := gctx.Param("id")
	if err := s.Revoke(gctx.Request.Context(), id); err != nil {
		if grpcutil.IsErrorNotFound(err) {
			gctx.JSON(http.StatusNotFound, gin.H{"error": "no such token"})
			return
		}
		s.logger.With("err", err).Error("could not revoke token")
		gctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gctx.Status(http.StatusNoContent)
}
