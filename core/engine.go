package core

import (
	"go.uber.org/zap"
)

// Engine wraps Clear with optional structured logging. It holds no market
// state and is safe for concurrent use.
type Engine struct {
	logger *zap.Logger
}

// NewEngine returns an Engine logging to logger; a nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("clearing")}
}

// Clear runs Clear and logs the outcome at debug level.
func (e *Engine) Clear(supply, demand BidSet) (*ClearingResult, error) {
	result, err := Clear(supply, demand)
	if err != nil {
		e.logger.Warn("rejected bid batch",
			zap.Int("supply_bids", len(supply)),
			zap.Int("demand_bids", len(demand)),
			zap.Error(err))
		return nil, err
	}

	if ce := e.logger.Check(zap.DebugLevel, "interval cleared"); ce != nil {
		fields := []zap.Field{
			zap.Int("supply_bids", len(supply)),
			zap.Int("demand_bids", len(demand)),
			zap.Int("trades", len(result.Trades)),
			zap.String("termination", string(result.Termination)),
		}
		if result.ClearingPrice != nil {
			fields = append(fields, zap.Float64("clearing_price", *result.ClearingPrice))
		}
		ce.Write(fields...)
	}

	return result, nil
}
