package webhook

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ShayCichocki/monica/internal/graph"
	"github.com/ShayCichocki/monica/internal/suggest"
	"github.com/ShayCichocki/monica/internal/version"
	"github.com/ShayCichocki/monica/pkg/models"
)

// notification is one Graph change notification.
type notification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
}

// taskChainBody is either a Graph notification batch or a direct
// completion event.
type taskChainBody struct {
	Value []notification `json:"value"`
	models.CompletionEvent
}

// notificationResult reports what happened to one notification.
type notificationResult struct {
	TaskID  string `json:"task_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Skipped string `json:"skipped,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Get(),
	})
}

// handleTaskChain accepts completion deliveries. A validationToken query
// parameter is Graph's subscription handshake and is echoed back verbatim.
func (s *Server) handleTaskChain(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		c.String(http.StatusOK, token)
		return
	}
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validationToken required"})
		return
	}

	var body taskChainBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	if len(body.Value) > 0 {
		s.handleNotifications(c, body.Value)
		return
	}
	s.handleDirectCompletion(c, body.CompletionEvent)
}

func (s *Server) handleDirectCompletion(c *gin.Context, ev models.CompletionEvent) {
	if ev.TaskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id is required"})
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	if ev.CompletedAt.IsZero() {
		// Prefer the stored completion time so redeliveries share a fingerprint.
		ev.CompletedAt = s.cfg.Now()
		if s.cfg.Tasks != nil {
			task, err := s.cfg.Tasks.Get(c.Request.Context(), ev.TaskID)
			if err != nil {
				s.writeError(c, err)
				return
			}
			ev.CompletedAt = s.completedAt(task)
		}
	}

	outcome, err := s.cfg.Chain.HandleCompletion(c.Request.Context(), ev)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fingerprint": ev.Fingerprint(),
		"outcome":     outcome,
	})
}

// handleNotifications processes a Graph batch. Any retryable failure fails
// the whole batch with 503 so Graph redelivers it; notifications already
// handled replay from the ledger on redelivery.
func (s *Server) handleNotifications(c *gin.Context, batch []notification) {
	if s.cfg.Tasks == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "graph notifications are not configured"})
		return
	}
	ctx := c.Request.Context()

	results := make([]notificationResult, 0, len(batch))
	for _, n := range batch {
		if s.cfg.ClientState != "" && n.ClientState != s.cfg.ClientState {
			log.Printf("[webhook] notification for %s rejected: clientState mismatch", n.Resource)
			results = append(results, notificationResult{Skipped: "client state mismatch"})
			continue
		}
		taskID, ok := graph.ParseResource(n.Resource)
		if !ok {
			results = append(results, notificationResult{Skipped: "not a task resource"})
			continue
		}

		task, err := s.cfg.Tasks.Get(ctx, taskID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				results = append(results, notificationResult{TaskID: taskID, Skipped: "task not found"})
				continue
			}
			s.writeError(c, err)
			return
		}
		if task.State != models.TaskStateCompleted {
			results = append(results, notificationResult{TaskID: taskID, Skipped: "not completed"})
			continue
		}

		outcome, err := s.cfg.Chain.HandleCompletion(ctx, models.CompletionEvent{
			EventID:     uuid.New().String(),
			TaskID:      taskID,
			CompletedAt: s.completedAt(task),
		})
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				results = append(results, notificationResult{TaskID: taskID, Skipped: "task not found"})
				continue
			}
			s.writeError(c, err)
			return
		}
		results = append(results, notificationResult{TaskID: taskID, Outcome: outcome.String()})
	}

	c.JSON(http.StatusAccepted, gin.H{"results": results})
}

// handleHeartbeat runs one suggestion tick and delivers its output.
func (s *Server) handleHeartbeat(c *gin.Context) {
	ctx := c.Request.Context()
	recs, tickErr := s.cfg.Suggest.Tick(ctx, s.cfg.Now())

	if len(recs) > 0 {
		if err := s.cfg.Sink.Deliver(ctx, recs); err != nil {
			log.Printf("[webhook] deliver %d suggestions: %v", len(recs), err)
		}
	}
	if tickErr != nil {
		s.writeError(c, tickErr)
		return
	}
	if recs == nil {
		recs = []models.SuggestionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"offered":     len(recs),
		"suggestions": recs,
	})
}

type respondRequest struct {
	Response models.SuggestionResponse `json:"response" binding:"required"`
}

func (s *Server) handleRespond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	rec, err := s.cfg.Suggest.Respond(c.Param("task_id"), req.Response, s.cfg.Now())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleRenew(c *gin.Context) {
	res, err := s.cfg.Renewer.RenewExpiring(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"renewed": len(res.Renewed),
		"skipped": res.Skipped,
		"errors":  errs,
	})
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, suggest.ErrNotPending):
		status = http.StatusConflict
	case models.IsRetryable(err):
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "30")
	default:
		if _, ok := models.IsFailed(err); ok {
			status = http.StatusBadRequest
		}
	}
	if status >= 500 {
		log.Printf("[webhook] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// completedAt is the task's recorded completion time. The Graph store fills
// it from lastModifiedDateTime when completedDateTime is absent; the clock
// is the last resort.
func (s *Server) completedAt(task *models.Task) time.Time {
	if task.CompletedAt != nil {
		return *task.CompletedAt
	}
	log.Printf("[webhook] task %s has no completion time, using now", task.ID)
	return s.cfg.Now()
}
