package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/internal/filter"
	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/internal/taxonomy"
	"github.com/brandon/unibox/internal/unibox"
	"github.com/brandon/unibox/pkg/types"
)

// Server exposes the aggregation core over HTTP. One browse session
// exists per mailbox; selecting a folder or search query replaces it.
type Server struct {
	mgr    *unibox.Manager
	logger *logrus.Logger
}

func NewServer(mgr *unibox.Manager, logger *logrus.Logger) *Server {
	return &Server{mgr: mgr, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/mailboxes", s.handleListMailboxes)

	mb := r.Group("/mailboxes/:id")
	{
		mb.DELETE("", s.handleDisconnect)

		mb.GET("/folders", s.handleCachedFolders)
		mb.POST("/folders/refresh", s.handleRefreshFolders)

		mb.POST("/select", s.handleSelect)
		mb.GET("/messages", s.handlePage)
		mb.POST("/messages/next", s.handleNext)
		mb.POST("/messages/prev", s.handlePrev)
		mb.PUT("/filter", s.handleSetFilter)

		mb.GET("/messages/:msgId", s.handleGetMessage)
		mb.GET("/messages/:msgId/attachments", s.handleListAttachments)
		mb.GET("/messages/:msgId/attachments/:attId", s.handleDownloadAttachment)

		mb.POST("/messages/:msgId/read", s.handleSetRead)
		mb.POST("/messages/:msgId/star", s.handleSetStarred)
		mb.POST("/messages/:msgId/toggle-select", s.handleToggleSelect)
		mb.DELETE("/messages/:msgId", s.handleDelete)
		mb.POST("/messages/:msgId/move", s.handleMove)
		mb.POST("/messages/:msgId/copy", s.handleCopy)

		mb.POST("/batch", s.handleBatch)
		mb.DELETE("/selection", s.handleClearSelection)

		mb.POST("/send", s.handleSend)
		mb.POST("/messages/:msgId/reply", s.handleReply)
		mb.POST("/messages/:msgId/forward", s.handleForward)

		mb.POST("/drafts", s.handleCreateDraft)
		mb.PUT("/drafts/:draftId", s.handleUpdateDraft)
		mb.DELETE("/drafts/:draftId", s.handleDeleteDraft)

		mb.POST("/sync", s.handleSync)
	}

	return r
}

// fail maps the typed adapter errors onto HTTP statuses and writes a
// JSON error body.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case provider.IsAuthExpired(err):
		status = http.StatusUnauthorized
	case provider.IsNotFound(err):
		status = http.StatusNotFound
	case provider.IsInvalidIdentifier(err):
		status = http.StatusUnprocessableEntity
	case provider.IsTransport(err):
		status = http.StatusBadGateway
	case errors.Is(err, unibox.ErrSuperseded):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleListMailboxes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mailboxes": s.mgr.Mailboxes()})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.mgr.Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": c.Param("id")})
}

func (s *Server) handleCachedFolders(c *gin.Context) {
	folders, err := s.mgr.CachedFolders(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders, "cached": true})
}

func (s *Server) handleRefreshFolders(c *gin.Context) {
	folders, err := s.mgr.RefreshFolders(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders, "cached": false})
}

type selectRequest struct {
	Category string `json:"category"`
	RawID    string `json:"raw_id"`
	RawName  string `json:"raw_name"`
	Query    string `json:"query"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid select request: " + err.Error()})
		return
	}

	cat := types.Category(req.Category)
	if req.Category == "" {
		cat = taxonomy.Classify(req.RawID, req.RawName)
	} else if !taxonomy.Canonical(cat) && cat != types.CategoryUnknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown folder category: " + req.Category})
		return
	}

	sess, err := s.mgr.Select(c.Param("id"), provider.FolderRef{
		RawID:    req.RawID,
		RawName:  req.RawName,
		Category: cat,
	}, req.Query)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := sess.Start(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

func (s *Server) session(c *gin.Context) (*unibox.Session, bool) {
	sess := s.mgr.Session(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no folder selected for mailbox " + c.Param("id")})
		return nil, false
	}
	return sess, true
}

func (s *Server) writePage(c *gin.Context, sess *unibox.Session) {
	cur := sess.Cursor()
	c.JSON(http.StatusOK, gin.H{
		"messages":    sess.Messages(),
		"page":        cur.CurrentPage(),
		"has_next":    cur.HasNext(),
		"has_prev":    cur.HasPrev(),
		"total_count": cur.TotalCount(),
		"state":       cur.State(),
		"selected":    sess.Selected(),
	})
}

func (s *Server) handlePage(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.writePage(c, sess)
}

func (s *Server) handleNext(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.FetchNext(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

func (s *Server) handlePrev(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Prev(); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

type filterRequest struct {
	UnreadOnly         bool   `json:"unread_only"`
	StarredOnly        bool   `json:"starred_only"`
	HasAttachmentsOnly bool   `json:"has_attachments_only"`
	DateRange          string `json:"date_range"`
	SearchText         string `json:"search_text"`
}

func (s *Server) handleSetFilter(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter request: " + err.Error()})
		return
	}

	sess.SetCriteria(filter.Criteria{
		UnreadOnly:         req.UnreadOnly,
		StarredOnly:        req.StarredOnly,
		HasAttachmentsOnly: req.HasAttachmentsOnly,
		DateRange:          filter.DateRange(req.DateRange),
		SearchText:         req.SearchText,
	})
	s.writePage(c, sess)
}

func (s *Server) handleGetMessage(c *gin.Context) {
	var msg *types.Message
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		var gerr error
		msg, gerr = a.GetMessage(c.Request.Context(), c.Param("msgId"))
		return gerr
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleListAttachments(c *gin.Context) {
	var atts []types.Attachment
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		var lerr error
		atts, lerr = a.ListAttachments(c.Request.Context(), c.Param("msgId"))
		return lerr
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": atts})
}

func (s *Server) handleDownloadAttachment(c *gin.Context) {
	var data []byte
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		var derr error
		data, derr = a.DownloadAttachment(c.Request.Context(), c.Param("msgId"), c.Param("attId"))
		return derr
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

type flagRequest struct {
	Value bool `json:"value"`
}

func (s *Server) handleSetRead(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flag request: " + err.Error()})
		return
	}
	if err := sess.SetRead(c.Request.Context(), c.Param("msgId"), req.Value); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

func (s *Server) handleSetStarred(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flag request: " + err.Error()})
		return
	}
	if err := sess.SetStarred(c.Request.Context(), c.Param("msgId"), req.Value); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

func (s *Server) handleToggleSelect(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.ToggleSelect(c.Param("msgId")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": sess.Selected()})
}

func (s *Server) handleClearSelection(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.ClearSelection()
	c.JSON(http.StatusOK, gin.H{"selected": sess.Selected()})
}

func (s *Server) handleDelete(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Delete(c.Request.Context(), c.Param("msgId")); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

type moveRequest struct {
	Category string `json:"category"`
	RawID    string `json:"raw_id"`
	RawName  string `json:"raw_name"`
}

func (r moveRequest) ref() provider.FolderRef {
	cat := types.Category(r.Category)
	if r.Category == "" {
		cat = taxonomy.Classify(r.RawID, r.RawName)
	}
	return provider.FolderRef{RawID: r.RawID, RawName: r.RawName, Category: cat}
}

func (s *Server) handleMove(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid move request: " + err.Error()})
		return
	}
	if err := sess.Move(c.Request.Context(), c.Param("msgId"), req.ref()); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

func (s *Server) handleCopy(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid copy request: " + err.Error()})
		return
	}
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.Copy(c.Request.Context(), c.Param("msgId"), req.ref())
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"copied": c.Param("msgId")})
}

type batchRequest struct {
	Op string `json:"op"`
}

func (s *Server) handleBatch(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch request: " + err.Error()})
		return
	}

	op := provider.BatchOp(req.Op)
	switch op {
	case provider.BatchMarkRead, provider.BatchMarkUnread, provider.BatchStar,
		provider.BatchUnstar, provider.BatchDelete:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown batch op: " + req.Op})
		return
	}

	if err := sess.BatchOperate(c.Request.Context(), op); err != nil {
		s.fail(c, err)
		return
	}
	s.writePage(c, sess)
}

func (s *Server) bindOutgoing(c *gin.Context) (*types.OutgoingMessage, bool) {
	var msg types.OutgoingMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message payload: " + err.Error()})
		return nil, false
	}
	return &msg, true
}

func (s *Server) handleSend(c *gin.Context) {
	msg, ok := s.bindOutgoing(c)
	if !ok {
		return
	}
	if len(msg.To) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one recipient is required"})
		return
	}
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.Send(c.Request.Context(), msg)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (s *Server) handleReply(c *gin.Context) {
	msg, ok := s.bindOutgoing(c)
	if !ok {
		return
	}
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.Reply(c.Request.Context(), c.Param("msgId"), msg)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (s *Server) handleForward(c *gin.Context) {
	msg, ok := s.bindOutgoing(c)
	if !ok {
		return
	}
	if len(msg.To) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one recipient is required"})
		return
	}
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.Forward(c.Request.Context(), c.Param("msgId"), msg)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (s *Server) handleCreateDraft(c *gin.Context) {
	msg, ok := s.bindOutgoing(c)
	if !ok {
		return
	}
	var id string
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		var derr error
		id, derr = a.CreateDraft(c.Request.Context(), msg)
		return derr
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"draft_id": id})
}

func (s *Server) handleUpdateDraft(c *gin.Context) {
	msg, ok := s.bindOutgoing(c)
	if !ok {
		return
	}
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.UpdateDraft(c.Request.Context(), c.Param("draftId"), msg)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft_id": c.Param("draftId")})
}

func (s *Server) handleDeleteDraft(c *gin.Context) {
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.DeleteDraft(c.Request.Context(), c.Param("draftId"))
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("draftId")})
}

func (s *Server) handleSync(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync request: " + err.Error()})
		return
	}
	err := s.mgr.Do(c.Request.Context(), c.Param("id"), func(a provider.Adapter) error {
		return a.Sync(c.Request.Context(), req.ref())
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": true})
}
