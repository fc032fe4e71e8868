package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const statisticsHistoryLimit = 1000

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64           `json:"total_trades"`
	ProfitableTrades int64           `json:"profitable_trades"`
	WinRate          float64         `json:"win_rate"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
}

func (s *StatsDetail) add(profit decimal.Decimal) {
	s.TotalTrades++
	if profit.IsPositive() {
		s.ProfitableTrades++
	}
	s.TotalProfit = s.TotalProfit.Add(profit)
}

func (s *StatsDetail) finish() {
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates win rate and realized profit over the caller's closed trades.
func (h *Handler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromRequest(r)
	trades, err := h.store.ListTradeHistory(r.Context(), userID, statisticsHistoryLimit)
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}

	since24h := h.now().Add(-24 * time.Hour)

	var stats24h, statsAllTime StatsDetail
	for _, trade := range trades {
		statsAllTime.add(trade.CurrentProfit)

		// Closing is the last write to a trade.
		if trade.UpdatedAt.After(since24h) {
			stats24h.add(trade.CurrentProfit)
		}
	}
	statsAllTime.finish()
	stats24h.finish()

	h.writeJSON(w, http.StatusOK, StatisticsResponse{
		Since24h: stats24h,
		AllTime:  statsAllTime,
	})
}
