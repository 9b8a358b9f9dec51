package cartas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/auth"
	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/noel-cartinhas/noel/internal/storage"
)

const (
	defaultPerPage = 20
	minPerPage     = 5
	maxPerPage     = 100
	maxUploadBytes = 20 << 20
	maxImportBytes = 5 << 20
)

// IconSuggester maps a gift description to icon codes.
type IconSuggester interface {
	Suggest(ctx context.Context, gift string) ([]string, error)
}

// AttachmentStore keeps attachment files.
type AttachmentStore interface {
	Upload(ctx context.Context, n int, filename, contentType string, r io.Reader, size int64) (string, error)
	PresignedURL(ctx context.Context, name string) (string, error)
	LatestURL(ctx context.Context, n int) (string, error)
}

// ThumbnailQueue schedules thumbnail generation for a fresh upload.
type ThumbnailQueue interface {
	EnqueueThumbnail(letterNumber int, objectName string) error
}

// HistorySource reads the recorded events of a letter.
type HistorySource interface {
	History(ctx context.Context, letterNumber int) ([]models.CartaEvent, error)
}

// Handlers serves the /cartas routes. Icons, Files, Thumbs and History
// may be nil; the routes depending on them degrade or answer 503.
type Handlers struct {
	Service *Service
	Icons   IconSuggester
	Files   AttachmentStore
	Thumbs  ThumbnailQueue
	History HistorySource
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

func paginate(page, perPage int, total int64) Pagination {
	pages := (total + int64(perPage) - 1) / int64(perPage)
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
		HasNext:    int64(page) < pages,
		HasPrev:    page > 1,
	}
}

func pageParams(c *gin.Context) (int, int, error) {
	page, err := intQuery(c, "page", 1)
	if err != nil || page < 1 {
		return 0, 0, fmt.Errorf("page must be a positive integer")
	}
	perPage, err := intQuery(c, "per_page", defaultPerPage)
	if err != nil || perPage < minPerPage || perPage > maxPerPage {
		return 0, 0, fmt.Errorf("per_page must be between %d and %d", minPerPage, maxPerPage)
	}
	return page, perPage, nil
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func letterParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func requester(c *gin.Context) (string, bool) {
	p := auth.CurrentPrincipal(c)
	if p == nil {
		return "", false
	}
	return p.Email, p.IsAdmin()
}

// listFilter builds the filter for a public or API listing. "mine"
// falls back to everything for anonymous callers.
func listFilter(c *gin.Context) Filter {
	email, _ := requester(c)
	status := ParseListStatus(c.Query("status"))
	if status == ListMine && email == "" {
		status = ListAll
	}
	return Filter{Status: status, Query: c.Query("q"), Requester: email}
}

// ListPageHandler serves the public GET /cartas listing.
func (h *Handlers) ListPageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, err := pageParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		f := listFilter(c)
		f.Skip, f.Limit = (page-1)*perPage, perPage
		items, total, err := h.Service.List(c.Request.Context(), f)
		if err != nil {
			log.Printf("Failed to list cartas: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cartas"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items":      items,
			"q":          f.Query,
			"status":     f.Status,
			"error":      c.Query("error"),
			"pagination": paginate(page, perPage, total),
		})
	}
}

// AdminPageHandler serves GET /cartas/admin, deleted letters included.
func (h *Handlers) AdminPageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, err := pageParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		f := Filter{Query: c.Query("q"), IncludeDeleted: true, Skip: (page - 1) * perPage, Limit: perPage}
		items, total, err := h.Service.List(c.Request.Context(), f)
		if err != nil {
			log.Printf("Failed to list cartas for admin: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cartas"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "q": f.Query, "pagination": paginate(page, perPage, total)})
	}
}

// ViewPageHandler serves the public GET /cartas/:n detail.
func (h *Handlers) ViewPageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := letterParam(c)
		if !ok {
			c.Redirect(http.StatusFound, "/cartas?error=not_found")
			return
		}
		carta, err := h.Service.Get(c.Request.Context(), n)
		if errors.Is(err, ErrNotFound) {
			c.Redirect(http.StatusFound, "/cartas?error=not_found")
			return
		}
		if err != nil {
			log.Printf("Failed to load carta %d: %v", n, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load carta"})
			return
		}

		icons := []string{}
		if h.Icons != nil {
			if suggested, err := h.Icons.Suggest(c.Request.Context(), carta.GiftDescription); err != nil {
				log.Printf("Icon suggestion failed for carta %d: %v", n, err)
			} else if suggested != nil {
				icons = suggested
			}
		}

		d := access.Evaluate(auth.CurrentPrincipal(c), carta)
		c.JSON(http.StatusOK, gin.H{
			"carta":    carta,
			"is_admin": d.IsAdmin,
			"is_owner": d.IsOwner,
			"can_edit": d.CanEdit,
			"icons":    icons,
		})
	}
}

type webAction func(ctx context.Context, n int, email string, isAdmin bool) (*models.Carta, error)

// actionRedirect runs a lifecycle operation from a web form and redirects
// to target on success or to /cartas?error=<op>_failed otherwise.
func (h *Handlers) actionRedirect(op string, run webAction, target func(n int) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := letterParam(c)
		if !ok {
			c.Redirect(http.StatusFound, "/cartas?error=not_found")
			return
		}
		email, isAdmin := requester(c)
		if _, err := run(c.Request.Context(), n, email, isAdmin); err != nil {
			if Outcome(err) == "error" {
				log.Printf("Failed to %s carta %d: %v", op, n, err)
			}
			c.Redirect(http.StatusFound, "/cartas?error="+op+"_failed")
			return
		}
		c.Redirect(http.StatusFound, target(n))
	}
}

func detailURL(n int) string { return "/cartas/" + strconv.Itoa(n) }

func (h *Handlers) AdoptFormHandler() gin.HandlerFunc {
	return h.actionRedirect(OpAdopt, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Adopt(ctx, n, email)
	}, detailURL)
}

func (h *Handlers) CancelFormHandler() gin.HandlerFunc {
	return h.actionRedirect(OpCancel, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Cancel(ctx, n, email)
	}, func(int) string { return "/cartas?status=minhas" })
}

func (h *Handlers) ReleaseFormHandler() gin.HandlerFunc {
	return h.actionRedirect(OpRelease, h.Service.Release, detailURL)
}

func (h *Handlers) DeliverFormHandler() gin.HandlerFunc {
	return h.actionRedirect(OpDeliver, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Deliver(ctx, n, email)
	}, detailURL)
}

func (h *Handlers) UndeliverFormHandler() gin.HandlerFunc {
	return h.actionRedirect(OpUndeliver, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Undeliver(ctx, n, email)
	}, detailURL)
}

// respondError maps a service error to a JSON response.
func respondError(c *gin.Context, op string, err error) {
	var rej *RejectedError
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
	case errors.As(err, &rej):
		c.JSON(http.StatusBadRequest, gin.H{"error": rej.Error(), "reason": rej.Reason})
	case errors.Is(err, ErrValidation), errors.Is(err, storage.ErrMIMENotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("Failed to %s carta: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op + " carta"})
	}
}

// APIListHandler serves GET /cartas/api.
func (h *Handlers) APIListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, err := intQuery(c, "skip", 0)
		if err != nil || skip < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "skip must be a non-negative integer"})
			return
		}
		limit, err := intQuery(c, "limit", defaultLimit)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}

		f := listFilter(c)
		f.Skip, f.Limit = skip, limit
		items, _, err := h.Service.List(c.Request.Context(), f)
		if err != nil {
			respondError(c, "list", err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// APIGetHandler serves GET /cartas/api/:n.
func (h *Handlers) APIGetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
			return
		}
		carta, err := h.Service.Get(c.Request.Context(), n)
		if err != nil {
			respondError(c, "get", err)
			return
		}
		c.JSON(http.StatusOK, carta)
	}
}

type adoptRequest struct {
	LetterNumber int `json:"letter_number" form:"letter_number"`
}

// APIAdoptHandler serves POST /cartas/api/adopt.
func (h *Handlers) APIAdoptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adoptRequest
		if err := c.ShouldBind(&req); err != nil || req.LetterNumber <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "letter_number is required"})
			return
		}
		email, _ := requester(c)
		carta, err := h.Service.Adopt(c.Request.Context(), req.LetterNumber, email)
		if err != nil {
			respondError(c, OpAdopt, err)
			return
		}
		c.JSON(http.StatusOK, carta)
	}
}

// apiAction answers a lifecycle operation on /cartas/api/<op>/:n.
func (h *Handlers) apiAction(op string, run webAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
			return
		}
		email, isAdmin := requester(c)
		carta, err := run(c.Request.Context(), n, email, isAdmin)
		if err != nil {
			respondError(c, op, err)
			return
		}
		c.JSON(http.StatusOK, carta)
	}
}

func (h *Handlers) APICancelHandler() gin.HandlerFunc {
	return h.apiAction(OpCancel, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Cancel(ctx, n, email)
	})
}

func (h *Handlers) APIReleaseHandler() gin.HandlerFunc {
	return h.apiAction(OpRelease, h.Service.Release)
}

func (h *Handlers) APIDeliverHandler() gin.HandlerFunc {
	return h.apiAction(OpDeliver, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Deliver(ctx, n, email)
	})
}

func (h *Handlers) APIUndeliverHandler() gin.HandlerFunc {
	return h.apiAction(OpUndeliver, func(ctx context.Context, n int, email string, _ bool) (*models.Carta, error) {
		return h.Service.Undeliver(ctx, n, email)
	})
}

// CreateHandler serves POST /cartas/api/admin/create.
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		email, _ := requester(c)
		carta, err := h.Service.Create(c.Request.Context(), email, in)
		if err != nil {
			respondError(c, OpCreate, err)
			return
		}
		c.JSON(http.StatusCreated, carta)
	}
}

// UpdateHandler serves PUT /cartas/api/admin/:n.
func (h *Handlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
			return
		}
		var p Patch
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		email, _ := requester(c)
		carta, err := h.Service.Update(c.Request.Context(), n, email, p)
		if err != nil {
			respondError(c, OpUpdate, err)
			return
		}
		c.JSON(http.StatusOK, carta)
	}
}

// DeleteHandler serves DELETE /cartas/api/admin/:n.
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
			return
		}
		email, _ := requester(c)
		if _, err := h.Service.Delete(c.Request.Context(), n, email); err != nil {
			var rej *RejectedError
			if errors.As(err, &rej) {
				c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
				return
			}
			respondError(c, OpDelete, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "carta removed"})
	}
}

// ImportHandler serves POST /cartas/api/admin/import.
func (h *Handlers) ImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		items, err := ParseImport(raw)
		if err != nil {
			respondError(c, "import", err)
			return
		}
		email, _ := requester(c)
		res := h.Service.Import(c.Request.Context(), email, items)
		log.Printf("Imported %d cartas (%d failed) by %s", len(res.Created), len(res.Failed), email)
		c.JSON(http.StatusOK, res)
	}
}

// HistoryHandler serves GET /cartas/api/admin/:n/history.
func (h *Handlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.History == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not available"})
			return
		}
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
			return
		}
		if _, err := h.Service.Repository().GetByNumber(c.Request.Context(), n); err != nil {
			respondError(c, "load", err)
			return
		}
		evs, err := h.History.History(c.Request.Context(), n)
		if err != nil {
			log.Printf("Failed to load history of carta %d: %v", n, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"letter_number": n, "events": evs})
	}
}

// UploadHandler serves POST /cartas/api/admin/:n/anexo.
func (h *Handlers) UploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Files == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is not configured"})
			return
		}
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "carta not found"})
			return
		}
		ctx := c.Request.Context()
		if _, err := h.Service.Get(ctx, n); err != nil {
			respondError(c, "upload", err)
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if header.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		contentType := header.Header.Get("Content-Type")
		log.Printf("Receiving attachment for carta %d: %s (%s)", n, header.Filename, contentType)

		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
			return
		}
		defer f.Close()

		name, err := h.Files.Upload(ctx, n, header.Filename, contentType, f, header.Size)
		if errors.Is(err, storage.ErrMIMENotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			log.Printf("Upload failed for carta %d: %v", n, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected failure uploading attachment"})
			return
		}

		email, _ := requester(c)
		if _, err := h.Service.Update(ctx, n, email, Patch{AttachmentURL: Some(name), ThumbnailURL: Null[string]()}); err != nil {
			log.Printf("Stored %s but failed to reference it from carta %d: %v", name, n, err)
			respondError(c, "upload", err)
			return
		}

		if h.Thumbs != nil {
			if err := h.Thumbs.EnqueueThumbnail(n, name); err != nil {
				log.Printf("Failed to enqueue thumbnail for %s: %v", name, err)
			}
		}

		url, err := h.Files.PresignedURL(ctx, name)
		if err != nil {
			log.Printf("Failed to sign %s: %v", name, err)
		}
		c.JSON(http.StatusOK, gin.H{"object_name": name, "url": url})
	}
}

// LatestAttachmentHandler serves GET /cartas/api/:n/anexo.
func (h *Handlers) LatestAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Files == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is not configured"})
			return
		}
		n, ok := letterParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
			return
		}
		url, err := h.Files.LatestURL(c.Request.Context(), n)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
			return
		}
		if err != nil {
			log.Printf("Failed to find attachment of carta %d: %v", n, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to find attachment"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}
