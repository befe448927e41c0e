package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/circleci/modellr"
)

type instanceStatus struct {
	Alias  string        `json:"alias"`
	State  modellr.State `json:"state"`
	Models []string      `json:"models"`
}

// instancesHandler lists every registry entry with its state and the models defined on it.
func instancesHandler(mgr *modellr.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := []instanceStatus{}
		for _, alias := range mgr.Aliases() {
			st := instanceStatus{Alias: alias, State: modellr.StateUnloaded, Models: []string{}}
			if inst := mgr.Instance(alias); inst.Alias == alias {
				st.State = inst.State()
				for _, m := range inst.Models() {
					st.Models = append(st.Models, m.Name)
				}
			}
			statuses = append(statuses, st)
		}
		c.JSON(http.StatusOK, statuses)
	}
}
