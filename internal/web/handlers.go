package web

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/session"
)

// Handlers contains HTTP route handlers for the web UI.
// mu serialises controller calls so a slow upload cannot overlap another action.
type Handlers struct {
	mu       sync.Mutex
	ctl      *session.Controller
	cfg      *config.Config
	renderer *Renderer
	logger   *zap.Logger

	// flash is the status of the last POST, shown once after the redirect.
	flash *session.Status
}

// actionResult is the JSON body returned by state-changing routes.
type actionResult struct {
	Status session.Status `json:"status"`
	Result any            `json:"result,omitempty"`
}

// HandleAnnotate handles GET /annotate: the current text, its labels and the session state.
func (h *Handlers) HandleAnnotate(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := h.ctl.CurrentRecord()
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"record":     rec,
			"categories": h.ctl.Categories(),
			"progress":   h.ctl.Progress(),
			"remote":     h.ctl.Availability(),
			"dirty":      h.ctl.Dirty(),
			"pending":    h.ctl.Pending(),
		})
		return
	}

	flash := h.flash
	h.flash = nil

	h.renderer.renderPage(w, r, "annotate", AnnotatePageData{
		PageData: PageData{
			Title:   "Annotate",
			Version: h.renderer.version,
			Nav:     "annotate",
		},
		Record:     rec,
		Categories: h.ctl.Categories(),
		Progress:   h.ctl.Progress(),
		Remote:     h.ctl.Availability(),
		Info:       h.ctl.Info(),
		Flash:      flash,
		Dirty:      h.ctl.Dirty(),
	})
}

// HandleSubmit handles POST /annotate: stage the submitted selection, then run the action.
//
// Form fields: id (repeatable), label (repeatable), action
// (stage|prev|next|goto|save_local|save_remote) and position for goto.
// position is 1-based, matching the "Text N of M" header.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	action := r.FormValue("action")
	if action == "" {
		action = "stage"
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Unchecked checkboxes are not submitted, so an id with no label clears the selection.
	if ids := r.Form["id"]; len(ids) > 0 {
		if err := h.ctl.SetLabels(ids, r.Form["label"]); err != nil {
			h.respond(w, r, "set_labels", nil, err)
			return
		}
	}

	var (
		op     string
		result any
		err    error
	)
	switch action {
	case "stage":
		op = "set_labels"
	case "prev", "next":
		op = "navigate"
		delta := 1
		if action == "prev" {
			delta = -1
		}
		result = h.ctl.Navigate(delta)
	case "goto":
		op = "navigate"
		pos, convErr := strconv.Atoi(r.FormValue("position"))
		if convErr != nil {
			err = errors.NewInvalidRequest("position must be an integer")
			break
		}
		result = h.ctl.Goto(pos - 1)
	case "save_local":
		op = "save_local"
		result, err = h.ctl.SaveLocal(r.Context())
	case "save_remote":
		op = "save_remote"
		result, err = h.ctl.SaveRemote(r.Context())
	default:
		h.renderer.renderError(w, r, errors.NewInvalidRequest(fmt.Sprintf("unknown action %q", action)))
		return
	}

	h.respond(w, r, op, result, err)
}

// HandleReload handles POST /reload: overwrite local annotations with the mirror copy.
// Requires confirm=true.
func (h *Handlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.ctl.ReloadFromRemote(r.Context(), r.FormValue("confirm") == "true")
	var result any
	if out != nil {
		result = out
	}
	h.respond(w, r, "reload", result, err)
}

// HandleDownload handles GET /download: the local annotation file as an attachment.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	data, err := h.ctl.LocalFile()
	name := filepath.Base(h.ctl.LocalPath())
	h.mu.Unlock()

	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleInfo handles GET /info: debug panel data as JSON.
func (h *Handlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	info := h.ctl.Info()
	h.mu.Unlock()
	renderJSON(w, http.StatusOK, info)
}

// HandleGuidelines handles GET /guidelines: the annotation guidelines rendered from Markdown.
func (h *Handlers) HandleGuidelines(w http.ResponseWriter, r *http.Request) {
	data := GuidelinesPageData{
		PageData: PageData{
			Title:   "Guidelines",
			Version: h.renderer.version,
			Nav:     "guidelines",
		},
	}

	if path := h.cfg.GuidelinesPath; path != "" {
		md, err := os.ReadFile(path)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewLocalIO("read", path, err))
			return
		}
		data.Configured = true
		data.RenderedHTML = renderMarkdown(string(md))
	}

	h.renderer.renderPage(w, r, "guidelines", data)
}

// respond reports the outcome of an action. Session errors become a status,
// never a crash: JSON clients get it in the body, browsers get it as a flash
// after a redirect back to the annotation page.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, op string, result any, err error) {
	st := session.Describe(op, err)
	if err == nil {
		st.Message = detailMessage(st.Message, result)
	} else {
		h.logger.Warn("action failed", zap.String("op", op), zap.String("code", st.Code), zap.String("message", st.Message))
	}

	if wantsJSON(r) {
		status := http.StatusOK
		if err != nil {
			status = errors.As(err).Status
		}
		renderJSON(w, status, actionResult{Status: st, Result: result})
		return
	}

	h.flash = &st
	http.Redirect(w, r, "/annotate", http.StatusSeeOther)
}

// detailMessage appends sizes and counts to a success message.
func detailMessage(msg string, result any) string {
	switch out := result.(type) {
	case *session.SaveLocalOutput:
		return fmt.Sprintf("%s (%d texts annotated, %s bytes)", msg, out.Annotated, formatCount(out.Bytes))
	case *session.SaveRemoteOutput:
		return fmt.Sprintf("%s (%s bytes to %s)", msg, formatCount(out.Bytes), out.Remote)
	case *session.ReloadOutput:
		return fmt.Sprintf("%s (%d records, %d annotated)", msg, out.Records, out.Annotated)
	}
	return msg
}
