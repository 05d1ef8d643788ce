package commands

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"

	services_int "github.com/bridgefleet/bridgefleet/pkg/services"
)

const routePrefix = "/api/v1alpha1/commands"

var _ services_int.HTTPExtension = (*CommandService)(nil)
var _ services_int.DashboardExtension = (*CommandService)(nil)

// ConfigureHTTP registers the agent-facing poll endpoint on the embedded
// server router.
func (c *CommandService) ConfigureHTTP(r *mux.Router) {
	c.logger.Info("configuring routes")
	r.HandleFunc(routePrefix+"/poll", c.handlePoll).Methods(http.MethodGet)
}

// handlePoll serves one agent poll: 204 when nothing is pending, otherwise
// the command envelope. Delivering consumes the pending slot.
func (c *CommandService) handlePoll(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "missing deviceId", http.StatusBadRequest)
		return
	}

	pending, ok, err := c.NextForDevice(r.Context(), deviceID)
	if err != nil {
		c.logger.With("err", err).Error("poll failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pollResponse{
		HasCommand: true,
		Command:    pending.Command,
	}); err != nil {
		c.logger.With("err", err).Error("failed to encode poll response")
	}
}

// ConfigureDashboard registers the operator-facing routes.
func (c *CommandService) ConfigureDashboard(g gin.IRouter) {
	g.POST("/commands", c.enqueueCommand)
	g.GET("/commands", c.listHistory)
	g.GET("/devices", c.listDevices)
}

func (c *CommandService) enqueueCommand(g *gin.Context) {
	var req enqueueRequest
	if err := g.ShouldBindJSON(&req); err != nil {
		g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := c.Enqueue(g.Request.Context(), req.DeviceID, req.Command)
	if err != nil {
		g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g.JSON(http.StatusOK, rec)
}

func (c *CommandService) listHistory(g *gin.Context) {
	recs, err := c.History(g.Request.Context())
	if err != nil {
		g.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	// v7 command IDs sort by creation time.
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	g.JSON(http.StatusOK, recs)
}

func (c *CommandService) listDevices(g *gin.Context) {
	devs, err := c.Devices(g.Request.Context())
	if err != nil {
		g.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	g.JSON(http.StatusOK, devs)
}
