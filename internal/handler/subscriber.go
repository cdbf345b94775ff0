package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/service"
	"github.com/sakif/learnmade/internal/validation"
)

type SubscriberHandler struct {
	subscriptions *service.SubscriptionService
	logger        *slog.Logger
}

func NewSubscriberHandler(subscriptions *service.SubscriptionService, logger *slog.Logger) *SubscriberHandler {
	return &SubscriberHandler{subscriptions: subscriptions, logger: logger}
}

// HandleSubscribe joins the newsletter.
//
// HTTP: POST /subscribe
// REQUEST BODY: {"email": "...", "confirm_email_address": ""}
//
// confirm_email_address is a hidden honeypot. Bots that fill it get the
// same 201 as a real signup.
func (h *SubscriberHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var in validation.SubscribeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.subscriptions.Subscribe(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeMessage(w, status, res.Message)
}

// HandleList returns every subscriber, newest first.
//
// HTTP: GET /subscribers (admin)
func (h *SubscriberHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptions.List(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, subs)
}

type deleteSubscriberRequest struct {
	ID string `json:"id"`
}

// HandleDelete removes a subscriber row outright.
//
// HTTP: DELETE /subscribers (admin)
// REQUEST BODY: {"id": "..."}
func (h *SubscriberHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteSubscriberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.subscriptions.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), strings.TrimSpace(req.ID)); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Subscriber deleted")
}

// unsubscribePage is what a person sees after clicking the email link.
// Mail scanners prefetch links, so the GET only shows this form; the change
// happens on POST.
var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Unsubscribe | LearnMade</title></head>
<body>
{{if .Done}}
<p>{{.Message}}</p>
{{else}}
<p>Stop sending LearnMade course announcements to <strong>{{.Email}}</strong>?</p>
<form method="post" action="/unsubscribe?token={{.Token}}">
  <button type="submit">Unsubscribe</button>
</form>
{{end}}
</body>
</html>
`))

type unsubscribeView struct {
	Email   string
	Token   string
	Done    bool
	Message string
}

// HandleUnsubscribeConfirm shows the confirmation form for a signed token.
// It never changes the subscription.
//
// HTTP: GET /unsubscribe?token=<jwt>
func (h *SubscriberHandler) HandleUnsubscribeConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	sub, err := h.subscriptions.CheckUnsubscribe(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	h.renderUnsubscribe(w, unsubscribeView{Email: sub.Email, Token: token})
}

// HandleUnsubscribe deactivates the subscriber named by a signed token.
//
// HTTP: POST /unsubscribe?token=<jwt>
//
// Serves both the confirmation form and RFC 8058 one-click unsubscribe,
// where the mail client posts "List-Unsubscribe=One-Click". Browsers get
// an HTML page back, everyone else the JSON envelope.
func (h *SubscriberHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.subscriptions.Unsubscribe(r.Context(), r.FormValue("token")); err != nil {
		writeError(w, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		h.renderUnsubscribe(w, unsubscribeView{Done: true, Message: service.MsgUnsubscribed})
		return
	}
	writeMessage(w, http.StatusOK, service.MsgUnsubscribed)
}

func (h *SubscriberHandler) renderUnsubscribe(w http.ResponseWriter, view unsubscribeView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := unsubscribePage.Execute(w, view); err != nil {
		h.logger.Error("rendering unsubscribe page", slog.String("error", err.Error()))
	}
}
