package handlers

import (
	"net/http"

	"volunteer-coordination/internal/matching"
	"volunteer-coordination/internal/metrics"
	"volunteer-coordination/internal/middleware"

	"github.com/gin-gonic/gin"
)

type MatchingHandler struct {
	ranker *matching.Ranker
}

func NewMatchingHandler(ranker *matching.Ranker) *MatchingHandler {
	return &MatchingHandler{ranker: ranker}
}

// AutoMatch ranks volunteers for the event. It only suggests; assigning a
// suggestion goes through the assign endpoint. Suggestions is the same call.
func (h *MatchingHandler) AutoMatch(c *gin.Context) {
	eventID, ok := pathID(c, "eventId")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	timer := metrics.NewTimer()
	result, err := h.ranker.Rank(ctx, eventID)
	timer.ObserveDuration(metrics.AutoMatchDuration)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	metrics.AutoMatchCandidates.Observe(float64(len(result.Matches)))

	c.JSON(http.StatusOK, result)
}
