package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/interview"
	"github.com/victornm/mockinterview/internal/results"
)

type UpdateAnswerRequest struct {
	Text string `json:"text"`
}

func (a *API) getInterview(c *gin.Context) {
	h := a.interviews.Open(*identity(c))
	c.JSON(http.StatusOK, h.View())
}

func (a *API) startInterview(c *gin.Context) {
	h, err := a.interviews.Start(*identity(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.View())
}

func (a *API) updateAnswer(c *gin.Context) {
	var req UpdateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errBadRequest(err))
		return
	}

	a.act(func(ctl *interview.Controller) error {
		return ctl.UpdateDraft(req.Text)
	})(c)
}

// act runs fn against the caller's session and renders the resulting view.
func (a *API) act(fn func(ctl *interview.Controller) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := a.interviews.Get(identity(c).Email)
		if err != nil {
			renderError(c, err)
			return
		}

		if err := fn(h.Controller); err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusOK, h.View())
	}
}

func (a *API) getSummary(c *gin.Context) {
	h, err := a.interviews.Get(identity(c).Email)
	if err != nil {
		renderError(c, err)
		return
	}

	sum, err := h.Controller.Summary()
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, sum)
}

// speechSocket attaches the browser to the session's speech bridge. The
// browser speaks prompts, runs recognition and receives state frames.
func (a *API) speechSocket(c *gin.Context) {
	h := a.interviews.Open(*identity(c))

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied.
		slog.DebugContext(c, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := h.Bridge.Attach(c.Request.Context(), conn, h.View()); err != nil {
		slog.DebugContext(c, "api: speech bridge detached", "email", h.Owner.Email, "error", err)
	}
}

func (a *API) listResults(c *gin.Context) {
	req := results.ListResultsRequest{
		Email: c.Query("candidate"),
	}

	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit: %q", s)))
			return
		}
		req.Limit = n
	}

	rs, err := a.results.ListResults(c, req)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": rs})
}

func (a *API) getResult(c *gin.Context) {
	r, err := a.results.GetResult(c, results.GetResultRequest{
		SessionID: c.Param("id"),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}
