package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"park-ticketing/internal/apperr"
	"park-ticketing/internal/auth"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
	"park-ticketing/internal/sse"
	"park-ticketing/internal/tickets/qr"
	"park-ticketing/internal/tickets/template"
	tickets "park-ticketing/internal/tickets/service"
	"park-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	TicketService *tickets.TicketService
	QRGenerator   *qr.QRGenerator
	PDFGenerator  *template.TicketPDFGenerator
	Events        *sse.AvailabilityEmitter
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, qrGenerator *qr.QRGenerator, pdfGenerator *template.TicketPDFGenerator, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: ticketService,
		QRGenerator:   qrGenerator,
		PDFGenerator:  pdfGenerator,
		Logger:        log,
	}
}

// RegisterRoutes mounts /tickets. Only availability and its stream are served
// without a token.
func (h *Handler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/tickets", func(r chi.Router) {
		r.Get("/availability", h.Availability)
		r.Get("/availability/stream", h.StreamAvailability)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/", h.PurchaseTicket)
			r.Get("/", h.ListTickets)
			r.Post("/verify", h.VerifyQR)
			r.Get("/{ticketID}", h.GetTicket)
			r.Get("/{ticketID}/qr", h.GetTicketQR)
			r.Get("/{ticketID}/pdf", h.GetTicketPDF)
		})
	})
}

func (h *Handler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	authUserID, ok := auth.UserID(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.PurchaseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := h.TicketService.Purchase(r.Context(), req, authUserID)
	if err != nil {
		if apperr.HTTPStatus(err) == http.StatusInternalServerError {
			h.Logger.Error("TICKET", fmt.Sprintf("Purchase failed for user %d: %v", authUserID, err))
		}
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.ListTickets(r.Context())
	if err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("Failed to list tickets: %v", err))
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.loadTicket(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, ticket)
}

// GetTicketQR serves the stored QR as a PNG image.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.loadTicket(w, r)
	if !ok {
		return
	}
	png, err := qr.DecodeDataURL(ticket.QRPayload)
	if err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("Stored QR for ticket %d is unreadable: %v", ticket.ID, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=ticket-%d.png", ticket.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) GetTicketPDF(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.loadTicket(w, r)
	if !ok {
		return
	}
	png, err := qr.DecodeDataURL(ticket.QRPayload)
	if err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("Stored QR for ticket %d is unreadable: %v", ticket.ID, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to render ticket")
		return
	}
	doc, err := h.PDFGenerator.Generate(*ticket, png)
	if err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("PDF generation failed for ticket %d: %v", ticket.ID, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to render ticket")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ticket-%d.pdf", ticket.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (h *Handler) loadTicket(w http.ResponseWriter, r *http.Request) (*models.Ticket, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "invalid ticket id")
		return nil, false
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), id)
	if err != nil {
		utils.WriteAppError(w, err)
		return nil, false
	}
	return ticket, true
}

type verifyRequest struct {
	QR string `json:"qr"`
}

type verifyResponse struct {
	Valid  bool           `json:"valid"`
	Ticket *models.Ticket `json:"ticket"`
}

// VerifyQR checks scanned QR text against the stored ticket.
func (h *Handler) VerifyQR(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.QR == "" {
		utils.WriteError(w, http.StatusBadRequest, "qr is required")
		return
	}

	content, err := h.QRGenerator.DecryptQRData(body.QR)
	if err != nil {
		h.Logger.LogSecurity("QR_REJECTED", err.Error())
		utils.WriteError(w, http.StatusBadRequest, "invalid QR code")
		return
	}

	ticket, err := h.TicketService.GetTicket(r.Context(), content.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if ticket.UserID != content.UserID || ticket.VisitDate != content.VisitDate {
		h.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("ticket %d", ticket.ID))
		utils.WriteError(w, http.StatusBadRequest, "QR code does not match ticket")
		return
	}
	utils.WriteJSON(w, http.StatusOK, verifyResponse{Valid: true, Ticket: ticket})
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	day, err := h.TicketService.Availability(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, day)
}

// StreamAvailability sends the current availability of a day, then every
// update caused by a purchase for that day, as server-sent events.
func (h *Handler) StreamAvailability(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		utils.WriteError(w, http.StatusNotFound, "availability stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	current, err := h.TicketService.Availability(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	// The server write timeout would otherwise end the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	updates := h.Events.Subscribe(ctx, current.Date)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, current); err != nil {
		return
	}
	flusher.Flush()
	h.Logger.Debug("SSE", fmt.Sprintf("Client watching availability for %s", current.Date))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, &update); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to write availability event: %v", err))
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client stopped watching %s", current.Date))
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, update *models.DayAvailability) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: availability\ndata: %s\n\n", data)
	return err
}
