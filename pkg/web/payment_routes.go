package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/gridkit/pkg/payment"
	"github.com/fgrzl/mux"
)

func configurePaymentRoutes(router *mux.Router, service *payment.Service) {
	routes := &paymentRoutes{service: service}

	router.GET("/api/payment/invoice", routes.getInvoice)
	router.GET("/api/payment/invoices/issued", routes.getIssuedInvoices)
	router.GET("/api/payment/invoices/received", routes.getReceivedInvoices)
	router.POST("/api/payment/invoices", routes.issueInvoice)
	router.POST("/api/payment/invoice/send", routes.sendInvoice)
	router.POST("/api/payment/invoice/accept", routes.acceptInvoice)

	router.GET("/api/payment/debit-note", routes.getDebitNote)
	router.POST("/api/payment/debit-notes", routes.issueDebitNote)
	router.POST("/api/payment/debit-note/send", routes.sendDebitNote)
	router.POST("/api/payment/debit-note/accept", routes.acceptDebitNote)
}

type paymentRoutes struct {
	service *payment.Service
}

func (r *paymentRoutes) getInvoice(c mux.RouteContext) {
	id, ok := requireQuery(c, "id")
	if !ok {
		return
	}
	invoice, err := r.service.GetInvoice(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, invoice)
}

func (r *paymentRoutes) getIssuedInvoices(c mux.RouteContext) {
	invoices, err := enumerators.ToSlice(r.service.GetIssuedInvoices(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, invoices)
}

func (r *paymentRoutes) getReceivedInvoices(c mux.RouteContext) {
	invoices, err := enumerators.ToSlice(r.service.GetReceivedInvoices(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, invoices)
}

type issueInvoiceRequest struct {
	AgreementID string `json:"agreement_id"`
	Amount      string `json:"amount"`
	DueDate     int64  `json:"due_date"`
}

func (r *paymentRoutes) issueInvoice(c mux.RouteContext) {
	var req issueInvoiceRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		http.Error(c.Response(), "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	invoice, err := r.service.IssueInvoice(c, req.AgreementID, req.Amount, req.DueDate)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, invoice)
}

func (r *paymentRoutes) sendInvoice(c mux.RouteContext) {
	r.action(c, r.service.SendInvoice)
}

func (r *paymentRoutes) acceptInvoice(c mux.RouteContext) {
	r.action(c, r.service.AcceptInvoice)
}

func (r *paymentRoutes) getDebitNote(c mux.RouteContext) {
	id, ok := requireQuery(c, "id")
	if !ok {
		return
	}
	debitNote, err := r.service.GetDebitNote(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, debitNote)
}

type issueDebitNoteRequest struct {
	AgreementID    string `json:"agreement_id"`
	ActivityID     string `json:"activity_id"`
	TotalAmountDue string `json:"total_amount_due"`
	DueDate        int64  `json:"due_date"`
}

func (r *paymentRoutes) issueDebitNote(c mux.RouteContext) {
	var req issueDebitNoteRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		http.Error(c.Response(), "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	debitNote, err := r.service.IssueDebitNote(c, req.AgreementID, req.ActivityID, req.TotalAmountDue, req.DueDate)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, debitNote)
}

func (r *paymentRoutes) sendDebitNote(c mux.RouteContext) {
	r.action(c, r.service.SendDebitNote)
}

func (r *paymentRoutes) acceptDebitNote(c mux.RouteContext) {
	r.action(c, r.service.AcceptDebitNote)
}

func (r *paymentRoutes) action(c mux.RouteContext, action func(ctx context.Context, id string) error) {
	id, ok := requireQuery(c, "id")
	if !ok {
		return
	}
	if err := action(c, id); err != nil {
		writeError(c, err)
		return
	}
	c.Response().WriteHeader(http.StatusNoContent)
}
