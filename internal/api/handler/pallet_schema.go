package handler

import "github.com/palletrack/pallet-system/internal/core/domain"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request types ---

type availableQuery struct {
	Target string `query:"target" validate:"required,oneof=type content"`
	Thing  string `query:"thing"  validate:"required"`
}

type selectionsQuery struct {
	Content bool `query:"content"`
}

// --- Response types ---

type palletResponse struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Content  string     `json:"content"`
	Status   string     `json:"status"`
	Position [2]float64 `json:"position"`
	Holder   string     `json:"final_user,omitempty"`
}

type palletListResponse struct {
	Count   int              `json:"count"`
	Pallets []palletResponse `json:"pallets"`
}

type selectionsResponse struct {
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

func toPalletResponse(p *domain.Pallet) palletResponse {
	return palletResponse{
		ID:       p.ID,
		Type:     p.Category,
		Content:  p.Contents,
		Status:   string(p.Status),
		Position: p.Position,
		Holder:   p.Holder,
	}
}

func toPalletList(ps []*domain.Pallet) palletListResponse {
	out := palletListResponse{Count: len(ps), Pallets: make([]palletResponse, 0, len(ps))}
	for _, p := range ps {
		out.Pallets = append(out.Pallets, toPalletResponse(p))
	}
	return out
}
