package receiving

import "time"

type lineUpdateRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Received int64  `json:"received" validate:"gte=0"`
	Damaged  int64  `json:"damaged" validate:"gte=0"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=PENDING PARTIALLY_RECEIVED COMPLETED CANCELLED"`
	Remarks  string `json:"remarks,omitempty" validate:"max=500"`
}

type deliveryReportRequest struct {
	Lines []lineUpdateRequest `json:"lines" validate:"required,min=1,max=500,dive"`
}

func (req deliveryReportRequest) toReport(orderID int64) DeliveryReport {
	report := DeliveryReport{OrderID: orderID, Lines: make([]LineUpdate, 0, len(req.Lines))}
	for _, l := range req.Lines {
		report.Lines = append(report.Lines, LineUpdate{
			ItemID:          l.ItemID,
			Received:        l.Received,
			Damaged:         l.Damaged,
			RequestedStatus: LineStatus(l.Status),
			Remarks:         l.Remarks,
		})
	}
	return report
}

type approvalRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT APPROVED REJECTED"`
}

type lineResultResponse struct {
	ItemID     int64  `json:"item_id"`
	PriorNet   int64  `json:"prior_net"`
	NewNet     int64  `json:"new_net"`
	Delta      int64  `json:"delta"`
	Status     string `json:"status"`
	NewBalance *int64 `json:"new_balance,omitempty"`
}

type orderStatusResponse struct {
	OrderID         int64     `json:"order_id"`
	Status          string    `json:"status"`
	TotalOrdered    int64     `json:"total_ordered"`
	TotalReceived   int64     `json:"total_received"`
	ReceivedPercent float64   `json:"received_percent"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

type reportResponse struct {
	OrderID     int64                `json:"order_id"`
	ReportRef   string               `json:"report_ref"`
	Lines       []lineResultResponse `json:"lines"`
	OrderStatus orderStatusResponse  `json:"order_status"`
}

type lineResponse struct {
	OrderID         int64  `json:"order_id"`
	ItemID          int64  `json:"item_id"`
	ItemCode        string `json:"item_code"`
	ItemName        string `json:"item_name"`
	CategoryCode    string `json:"category_code"`
	CategoryName    string `json:"category_name"`
	OrderedQuantity int64  `json:"ordered_quantity"`
	Received        int64  `json:"received"`
	Damaged         int64  `json:"damaged"`
	NetStock        int64  `json:"net_stock"`
	Status          string `json:"status"`
	Remarks         string `json:"remarks,omitempty"`
}

type orderResponse struct {
	Status orderStatusResponse `json:"status"`
	Lines  []lineResponse      `json:"lines"`
}

type stockResponse struct {
	ItemID       int64     `json:"item_id"`
	CurrentStock int64     `json:"current_stock"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type driftResponse struct {
	ItemID       int64 `json:"item_id"`
	CurrentStock int64 `json:"current_stock"`
	LedgerNet    int64 `json:"ledger_net"`
}

func toOrderStatusResponse(rec OrderStatusRecord) orderStatusResponse {
	return orderStatusResponse{
		OrderID:         rec.OrderID,
		Status:          string(rec.Status),
		TotalOrdered:    rec.TotalOrdered,
		TotalReceived:   rec.TotalReceived,
		ReceivedPercent: rec.ReceivedPercent,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func toReportResponse(res ReportResult) reportResponse {
	out := reportResponse{
		OrderID:     res.OrderID,
		ReportRef:   res.ReportRef,
		Lines:       make([]lineResultResponse, 0, len(res.Lines)),
		OrderStatus: toOrderStatusResponse(res.OrderStatus),
	}
	for _, l := range res.Lines {
		line := lineResultResponse{
			ItemID:   l.ItemID,
			PriorNet: l.PriorNet,
			NewNet:   l.NewNet,
			Delta:    l.Delta,
			Status:   string(l.Status),
		}
		if l.BalanceChanged {
			balance := l.NewBalance
			line.NewBalance = &balance
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

func toLineResponse(v LineView) lineResponse {
	return lineResponse{
		OrderID:         v.OrderID,
		ItemID:          v.ItemID,
		ItemCode:        v.ItemCode,
		ItemName:        v.ItemName,
		CategoryCode:    v.CategoryCode,
		CategoryName:    v.CategoryName,
		OrderedQuantity: v.OrderedQuantity,
		Received:        v.Received,
		Damaged:         v.Damaged,
		NetStock:        v.NetStock,
		Status:          string(v.Status),
		Remarks:         v.Remarks,
	}
}
