package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/service"
)

type StrategyHandler struct {
	svc *service.InterviewService
}

func NewStrategyHandler(svc *service.InterviewService) *StrategyHandler {
	return &StrategyHandler{svc: svc}
}

type strategiesResponse struct {
	Methodology domain.Methodology      `json:"methodology"`
	Strategies  []domain.StrategyConfig `json:"strategies"`
}

func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, strategiesResponse{
		Methodology: h.svc.Methodology(),
		Strategies:  h.svc.Strategies(),
	})
}
