package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/baiirun/mesa/internal/export"
	"github.com/baiirun/mesa/internal/service"
)

func (s *Server) listRequests(c *gin.Context) {
	f, err := requestFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := s.svc.ListRequests(c.Request.Context(), currentUser(c), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// exportRequests streams every matching request as a spreadsheet. Paging
// parameters are ignored.
func (s *Server) exportRequests(c *gin.Context) {
	c.Request.URL.RawQuery = withoutPaging(c)
	f, err := requestFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	reqs, err := s.svc.ExportRequests(c.Request.Context(), currentUser(c), f)
	if err != nil {
		fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, reqs); err != nil {
		fail(c, fmt.Errorf("failed to build export: %w", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(time.Now())))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func withoutPaging(c *gin.Context) string {
	q := c.Request.URL.Query()
	q.Del("page")
	q.Del("page_size")
	return q.Encode()
}

func (s *Server) createRequest(c *gin.Context) {
	var in service.CreateRequestInput
	if !bind(c, &in) {
		return
	}
	r, err := s.svc.CreateRequest(c.Request.Context(), currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) getRequest(c *gin.Context) {
	r, err := s.svc.GetRequest(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) updateRequest(c *gin.Context) {
	var in service.UpdateRequestInput
	if !bind(c, &in) {
		return
	}
	r, err := s.svc.UpdateRequest(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) classify(c *gin.Context) {
	var in service.ClassifyInput
	if !bind(c, &in) {
		return
	}
	r, err := s.svc.Classify(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// assign accepts an empty body, which assigns the caller.
func (s *Server) assign(c *gin.Context) {
	var in service.AssignInput
	if c.Request.ContentLength != 0 && !bind(c, &in) {
		return
	}
	r, err := s.svc.Assign(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) unassign(c *gin.Context) {
	r, err := s.svc.Unassign(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) transition(c *gin.Context) {
	var in service.TransitionInput
	if !bind(c, &in) {
		return
	}
	r, err := s.svc.Transition(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) feedback(c *gin.Context) {
	var in service.FeedbackInput
	if !bind(c, &in) {
		return
	}
	r, err := s.svc.Feedback(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) deleteRequest(c *gin.Context) {
	entry, err := s.svc.DeleteRequest(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, gin.H{"id": entry.ID, "expires_at": entry.ExpiresAt})
}

func (s *Server) listTrash(c *gin.Context) {
	page, size, err := pagination(c)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := s.svc.ListTrash(c.Request.Context(), currentUser(c), c.Query("q"), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) restore(c *gin.Context) {
	r, err := s.svc.RestoreRequest(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) purgeRequest(c *gin.Context) {
	if err := s.svc.PurgeRequest(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) emptyTrash(c *gin.Context) {
	n, err := s.svc.EmptyTrash(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, gin.H{"purged": n})
}

func (s *Server) requestWorklogs(c *gin.Context) {
	list, err := s.svc.RequestWorklogs(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) addWorklog(c *gin.Context) {
	var in service.WorklogInput
	if !bind(c, &in) {
		return
	}
	res, err := s.svc.AddWorklog(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) myWorklogs(c *gin.Context) {
	from, err := queryTime(c, "date_from", false)
	if err != nil {
		fail(c, err)
		return
	}
	to, err := queryTime(c, "date_to", true)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.MyWorklogs(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
