package remote

import (
	"fmt"
	"net/http"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/engine"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "sdrtune"})
}

// call sends msg to the engine and answers with the snapshot that followed.
func (s *Server) call(c *gin.Context, msg engine.Msg) {
	if err := s.eng.Call(c.Request.Context(), msg); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.eng.Snapshot())
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Snapshot())
}

func (s *Server) tune(c *gin.Context) {
	var target domain.StationTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if target.Kind == domain.KindADSB && target.Frequency == 0 {
		target = domain.ADSBTarget()
	}
	s.call(c, engine.RequestMsg{Target: &target, Strict: c.Query("strict") == "true"})
}

func (s *Server) stop(c *gin.Context) {
	s.call(c, engine.RequestMsg{Target: nil})
}

func (s *Server) clickTab(c *gin.Context) {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.call(c, engine.TabClickMsg{Kind: kind})
}

func (s *Server) listDevices(c *gin.Context) {
	snap := s.eng.Snapshot()
	c.JSON(http.StatusOK, gin.H{"devices": snap.Devices, "selected": snap.Selected})
}

func (s *Server) selectDevice(c *gin.Context) {
	s.call(c, engine.SelectDeviceMsg{Serial: c.Param("serial")})
}

func (s *Server) connectDevice(connect bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.call(c, engine.ConnectDeviceMsg{Serial: c.Param("serial"), Connect: connect})
	}
}

func (s *Server) listStations(c *gin.Context) {
	sort := domain.SortOption(c.DefaultQuery("sort", string(domain.SortFavorites)))
	stations, err := s.store.List(sort)
	if err != nil {
		s.fail(c, err)
		return
	}
	if stations == nil {
		stations = []domain.SavedStation{}
	}
	c.JSON(http.StatusOK, gin.H{"stations": stations})
}

func (s *Server) saveStation(c *gin.Context) {
	var station domain.SavedStation
	if err := c.ShouldBindJSON(&station); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Save(station); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, station)
}

type updateRequest struct {
	Old     domain.SavedStation `json:"old"`
	Updated domain.SavedStation `json:"updated"`
}

func (s *Server) updateStation(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Update(req.Old, req.Updated); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req.Updated)
}

type targetQuery struct {
	Kind       string  `form:"kind" binding:"required"`
	Frequency  float64 `form:"frequency" binding:"required"`
	Subchannel int     `form:"subchannel"`
}

func (s *Server) removeStation(c *gin.Context) {
	var q targetQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := domain.ParseKind(q.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := domain.StationTarget{Kind: kind, Frequency: q.Frequency, Subchannel: q.Subchannel}
	if err := s.store.Remove(domain.SavedStation{Target: target}); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getTuning(c *gin.Context) {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.eng.Tuning(kind))
}

func (s *Server) setTuning(c *gin.Context) {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var params domain.TuningParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.Volume < 0 || params.Volume > 1 || params.SampleRate < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid tuning params %+v", params)})
		return
	}
	if err := s.store.SetTuningParams(kind, params); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, params)
}
