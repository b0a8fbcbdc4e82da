package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fgrzl/gridkit/pkg/market"
	"github.com/fgrzl/mux"
	"github.com/google/uuid"
)

func configureMarketRoutes(router *mux.Router, service *market.Service) {
	routes := &marketRoutes{service: service}

	router.GET("/api/market/agreement", routes.getAgreement)
	router.POST("/api/market/agreements", routes.createAgreement)
	router.POST("/api/market/agreement/propose", routes.proposeAgreement)
	router.POST("/api/market/agreement/approve", routes.approveAgreement)
	router.POST("/api/market/agreement/terminate", routes.terminateAgreement)
}

type marketRoutes struct {
	service *market.Service
}

func (r *marketRoutes) getAgreement(c mux.RouteContext) {
	id, ok := requireQuery(c, "id")
	if !ok {
		return
	}
	agreement, err := r.service.GetAgreement(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, agreement)
}

type createAgreementRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Offer      string    `json:"offer"`
	Demand     string    `json:"demand"`
	ValidTo    int64     `json:"valid_to"`
}

func (r *marketRoutes) createAgreement(c mux.RouteContext) {
	var req createAgreementRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		http.Error(c.Response(), "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	agreement, err := r.service.CreateAgreement(c, req.ProviderID, req.Offer, req.Demand, req.ValidTo)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, agreement)
}

func (r *marketRoutes) proposeAgreement(c mux.RouteContext) {
	r.agreementAction(c, r.service.ProposeAgreement)
}

func (r *marketRoutes) approveAgreement(c mux.RouteContext) {
	r.agreementAction(c, r.service.ApproveAgreement)
}

func (r *marketRoutes) terminateAgreement(c mux.RouteContext) {
	r.agreementAction(c, r.service.TerminateAgreement)
}

func (r *marketRoutes) agreementAction(c mux.RouteContext, action func(ctx context.Context, id string) error) {
	id, ok := requireQuery(c, "id")
	if !ok {
		return
	}
	if err := action(c, id); err != nil {
		writeError(c, err)
		return
	}
	agreement, err := r.service.GetAgreement(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, agreement)
}
