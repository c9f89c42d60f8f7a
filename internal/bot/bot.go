package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/config"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bias"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/binance"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/database"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/events"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/execution"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/market"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/notification"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/risk"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/signal"
)

const (
	fastTickInterval  = time.Minute
	slowTickInterval  = 5 * time.Minute
	dailyTickInterval = time.Hour
	fetchTimeout      = 15 * time.Second
	displacementSpan  = 3
)

// Deps carries the external surfaces the bot talks to. Repo, State, Bus and
// Notifier may be nil; the bot degrades to in-memory operation.
type Deps struct {
	Client   binance.MarketData
	Stream   *binance.KlineStream
	Repo     *database.Repository
	State    *database.StateStore
	Bus      *events.Bus
	Notifier *notification.Manager
	Logger   zerolog.Logger
}

// Bot runs the analysis-to-decision pipeline for a single instrument. All
// cycles execute on one goroutine; a new tick never overlaps a running
// cycle, so the cache needs no internal locking. The mutex only serializes
// cycles against read-only snapshots taken by the API layer.
type Bot struct {
	cfg    *config.Config
	symbol string
	fastTF market.Timeframe
	slowTF market.Timeframe
	execTF market.Timeframe

	client   binance.MarketData
	stream   *binance.KlineStream
	repo     *database.Repository
	state    *database.StateStore
	bus      *events.Bus
	notifier *notification.Manager
	logger   zerolog.Logger

	calendar  *market.Calendar
	swingDet  *analysis.SwingDetector
	structure *analysis.StructureAnalyzer
	scorer    *analysis.DisplacementScorer
	liquidity *analysis.LiquidityMapper
	sweepDet  *analysis.SweepDetector
	fvgDet    *analysis.FVGDetector
	biasEng   *bias.Engine
	detector  *signal.Detector
	riskMgr   *risk.Manager
	positions *execution.PositionManager

	mu    sync.Mutex
	cache *Cache

	stopChan chan struct{}
	wg       sync.WaitGroup
	nowFn    func() time.Time
}

// NewBot wires the full pipeline from configuration.
func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	calendar, err := market.NewCalendar(cfg.SessionConfig.Timezone)
	if err != nil {
		return nil, fmt.Errorf("building trading calendar: %w", err)
	}

	fastTF := market.Timeframe(cfg.TradingConfig.FastTimeframe)
	slowTF := market.Timeframe(cfg.TradingConfig.SlowTimeframe)
	execTF := market.Timeframe(cfg.TradingConfig.ExecTimeframe)
	for _, tf := range []market.Timeframe{fastTF, slowTF, execTF} {
		if tf.Duration() == 0 {
			return nil, fmt.Errorf("unsupported timeframe %q", tf)
		}
	}

	logger := deps.Logger.With().Str("component", "bot").Str("symbol", cfg.TradingConfig.Symbol).Logger()

	scorer := analysis.NewDisplacementScorer(0, 0, 0)
	riskMgr := risk.NewManager(risk.Config{
		InitialBalance:  cfg.RiskConfig.InitialBalance,
		Leverage:        cfg.RiskConfig.Leverage,
		KillSwitchPct:   cfg.RiskConfig.KillSwitchPct,
		WeeklyLossPct:   cfg.RiskConfig.WeeklyLossPct,
		DailyLossPct:    cfg.RiskConfig.DailyLossPct,
		MaxTradesPerDay: cfg.RiskConfig.MaxTradesPerDay,
		MinRiskReward:   cfg.RiskConfig.MinRiskReward,
	}, time.Now())
	trader := execution.NewPaperTrader(execution.PaperTraderConfig{}, deps.Logger)

	var notifier execution.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}
	positions := execution.NewPositionManager(
		cfg.TradingConfig.Symbol, riskMgr, trader, execution.NewExitStrategy(), notifier, deps.Logger,
	)

	b := &Bot{
		cfg:    cfg,
		symbol: cfg.TradingConfig.Symbol,
		fastTF: fastTF,
		slowTF: slowTF,
		execTF: execTF,

		client:   deps.Client,
		stream:   deps.Stream,
		repo:     deps.Repo,
		state:    deps.State,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		logger:   logger,

		calendar:  calendar,
		swingDet:  analysis.NewSwingDetector(0),
		structure: analysis.NewStructureAnalyzer(scorer, 0),
		scorer:    scorer,
		liquidity: analysis.NewLiquidityMapper(),
		sweepDet:  analysis.NewSweepDetector(0, cfg.SignalConfig.MinSweepScore),
		fvgDet:    analysis.NewFVGDetector(scorer),
		biasEng:   bias.NewEngine(bias.EngineConfig{}),
		detector: signal.NewDetector(signal.DetectorConfig{
			MinSweepScore: cfg.SignalConfig.MinSweepScore,
			MinConfidence: cfg.SignalConfig.MinConfidence,
			MinRiskReward: cfg.RiskConfig.MinRiskReward,
			StopBufferPct: cfg.SignalConfig.StopBufferPct,
		}),
		riskMgr:   riskMgr,
		positions: positions,

		cache:    newCache([]market.Timeframe{execTF, fastTF, slowTF, market.Timeframe1d}),
		stopChan: make(chan struct{}),
		nowFn:    time.Now,
	}
	return b, nil
}

// Start bootstraps caches, recovers persisted state, and launches the run
// loop. It blocks until the initial data fetch completes.
func (b *Bot) Start() error {
	now := b.nowFn()
	if err := b.bootstrap(now); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	b.recover(now)

	b.mu.Lock()
	b.dailyCycle(now)
	b.mu.Unlock()

	if b.stream != nil {
		b.stream.Start()
	}
	b.wg.Add(1)
	go b.run()

	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStarted, Timestamp: now, Data: map[string]any{"symbol": b.symbol}})
	}
	b.logger.Info().Msg("bot started")
	return nil
}

// Stop force-closes any live position at the last known price and shuts
// the loop down.
func (b *Bot) Stop() {
	close(b.stopChan)
	b.wg.Wait()
	if b.stream != nil {
		b.stream.Stop()
	}

	now := b.nowFn()
	b.mu.Lock()
	price := b.cache.LastPrice
	postings := b.positions.ForceCloseAll(price, now)
	b.settlePostings(postings)
	b.persist(now)
	b.mu.Unlock()

	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStopped, Timestamp: now, Data: map[string]any{"symbol": b.symbol}})
	}
	b.logger.Info().Msg("bot stopped")
}

func (b *Bot) run() {
	defer b.wg.Done()

	fast := time.NewTicker(fastTickInterval)
	slow := time.NewTicker(slowTickInterval)
	daily := time.NewTicker(dailyTickInterval)
	defer fast.Stop()
	defer slow.Stop()
	defer daily.Stop()

	var streamCh <-chan market.Candle
	if b.stream != nil {
		streamCh = b.stream.Candles()
	}

	for {
		select {
		case <-b.stopChan:
			return
		case c, ok := <-streamCh:
			if !ok {
				streamCh = nil
				continue
			}
			b.safeCycle("stream", func(now time.Time) { b.onStreamCandle(c, now) })
		case <-fast.C:
			b.safeCycle("fast", b.fastCycle)
		case <-slow.C:
			b.safeCycle("slow", b.slowCycle)
		case <-daily.C:
			b.safeCycle("daily", b.dailyCycle)
		}
	}
}

// safeCycle runs one cycle under the cache lock with panic isolation. A
// failure in one cycle never takes the process down; the next tick proceeds.
func (b *Bot) safeCycle(name string, fn func(now time.Time)) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s cycle: %v", name, r)
			b.logger.Error().Err(err).Msg("cycle recovered")
			if b.bus != nil {
				b.bus.PublishError("bot", err)
			}
		}
	}()
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.nowFn())
}

// bootstrap seeds every series with history and runs a first analysis pass.
func (b *Bot) bootstrap(now time.Time) error {
	fetches := []struct {
		tf    market.Timeframe
		limit int
	}{
		{b.execTF, candleCap},
		{b.fastTF, candleCap},
		{b.slowTF, 200},
		{market.Timeframe1d, 30},
	}
	for _, f := range fetches {
		candles, err := b.fetchKlines(f.tf, f.limit)
		if err != nil {
			return fmt.Errorf("fetching %s history: %w", f.tf, err)
		}
		b.cache.Series[f.tf].Append(candles...)
	}
	if last, ok := b.cache.Series[b.execTF].Last(); ok {
		b.cache.LastPrice = last.Close
	}
	b.cache.resetDay(b.dayOpenPrice(now))

	b.analyzeTimeframe(b.fastTF)
	b.analyzeTimeframe(b.slowTF)
	b.rebuildLiquidity(now)
	b.transitionLevels(now)
	b.rebuildGaps(now)
	return nil
}

// recover restores swings, trade history, and any live trade from the
// persistence layer. Best-effort: failures are logged, never fatal.
func (b *Bot) recover(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if b.repo != nil {
		for _, tf := range []market.Timeframe{b.fastTF, b.slowTF} {
			swings, err := b.repo.LoadSwings(ctx, b.symbol, tf, swingCap)
			if err != nil {
				b.logger.Warn().Err(err).Str("timeframe", string(tf)).Msg("swing recovery failed")
				continue
			}
			b.cache.Swings[tf] = analysis.MergeSwings(swings, b.cache.Swings[tf], swingCap)
		}
		if trades, err := b.repo.RecentTrades(ctx, b.symbol, recentHistoryLimit); err == nil {
			b.positions.Seed(trades)
		} else {
			b.logger.Warn().Err(err).Msg("trade history recovery failed")
		}
	}

	if b.state != nil {
		snap, err := b.state.Load(ctx, b.symbol)
		switch {
		case err == database.ErrNoSnapshot:
		case err != nil:
			b.logger.Warn().Err(err).Msg("state recovery failed")
		default:
			b.riskMgr.Restore(snap.Risk, now)
			b.positions.Adopt(snap.Trade)
			b.logger.Info().Time("saved_at", snap.SavedAt).Msg("recovered persisted state")
		}
	}
}

const recentHistoryLimit = 50

// onStreamCandle folds a closed candle from the websocket into its series
// and runs the matching cycle immediately.
func (b *Bot) onStreamCandle(c market.Candle, now time.Time) {
	series, ok := b.cache.Series[c.Timeframe]
	if !ok {
		return
	}
	series.Append(c)
	switch c.Timeframe {
	case b.execTF, b.fastTF:
		b.fastCycle(now)
	case b.slowTF, market.Timeframe1d:
		b.slowCycle(now)
	}
}

// fastCycle is the execution-critical path: refresh the fast timeframes,
// re-derive analysis, evaluate the open position, and look for a setup.
func (b *Bot) fastCycle(now time.Time) {
	b.refresh(b.execTF, 50)
	b.refresh(b.fastTF, 50)

	execCandle, ok := b.cache.Series[b.execTF].LastClosed(now)
	if !ok {
		return
	}
	b.cache.LastPrice = execCandle.Close
	b.cache.trackSession(execCandle)

	b.analyzeTimeframe(b.fastTF)
	b.rebuildLiquidity(now)
	b.detectSweeps(now)
	b.transitionLevels(now)
	b.rebuildGaps(now)

	b.managePosition(execCandle, now)
	b.evaluateSignal(now)
	b.persist(now)
}

// slowCycle refreshes the higher timeframes that feed bias and liquidity.
func (b *Bot) slowCycle(now time.Time) {
	b.refresh(b.slowTF, 20)
	b.refresh(market.Timeframe1d, 5)
	b.analyzeTimeframe(b.slowTF)
	b.persist(now)
}

// dailyCycle recomputes the daily bias once per calendar day and resets
// session tracking. Risk period counters roll inside the risk manager.
func (b *Bot) dailyCycle(now time.Time) {
	day := b.calendar.DayOpen(now)
	if !b.cache.BiasDate.IsZero() && !day.After(b.cache.BiasDate) {
		return
	}
	b.cache.BiasDate = day
	b.cache.resetDay(b.dayOpenPrice(now))

	b.cache.Bias = b.biasEng.Compute(bias.Inputs{
		FastStructure: b.cache.Structures[b.fastTF],
		SlowStructure: b.cache.Structures[b.slowTF],
		FastSwings:    b.cache.Swings[b.fastTF],
		Levels:        b.cache.Levels,
		Price:         b.cache.LastPrice,
		DayOpen:       b.cache.DayOpenPrice,
		Session:       b.calendar.SessionAt(now),
		InNoTrade:     b.calendar.InNoTradeWindow(now),
		DayStart:      day,
		Now:           now,
	})

	bi := b.cache.Bias
	b.logger.Info().
		Str("direction", string(bi.Direction)).
		Str("framework", string(bi.Framework)).
		Str("phase", string(bi.Phase)).
		Msg("daily bias computed")
	if b.bus != nil {
		b.bus.PublishBias(b.symbol, string(bi.Direction), string(bi.Framework), string(bi.Phase))
	}
	if b.notifier != nil {
		_ = b.notifier.SendBias(b.symbol, string(bi.Direction), string(bi.Framework), string(bi.Phase))
	}
}

// refresh pulls the newest klines for a timeframe. Fetch failures skip the
// refresh; analysis proceeds on the cached series.
func (b *Bot) refresh(tf market.Timeframe, limit int) {
	candles, err := b.fetchKlines(tf, limit)
	if err != nil {
		b.logger.Warn().Err(err).Str("timeframe", string(tf)).Msg("kline refresh failed")
		return
	}
	b.cache.Series[tf].Append(candles...)
}

func (b *Bot) fetchKlines(tf market.Timeframe, limit int) ([]market.Candle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	return b.client.GetKlines(ctx, b.symbol, tf, limit)
}

// analyzeTimeframe re-derives swings, structure, and structural events for
// one timeframe from its current series.
func (b *Bot) analyzeTimeframe(tf market.Timeframe) {
	candles := b.cache.Series[tf].Candles()
	fresh := b.swingDet.Detect(candles)
	b.cache.Swings[tf] = analysis.MergeSwings(b.cache.Swings[tf], fresh, swingCap)

	state := b.structure.Analyze(b.cache.Swings[tf])
	if len(candles) > 0 {
		event := b.structure.DetectBMS(state, candles[len(candles)-1])
		event = b.structure.DetectSMS(event, candles)
		event.Timeframe = tf
		state.LastEvent = event
		b.cache.Events[tf] = event
		if event.Type == analysis.EventCHOCH || event.Type == analysis.EventSMS {
			if b.bus != nil {
				b.bus.Publish(events.Event{
					Type:      events.EventStructureShift,
					Timestamp: event.Time,
					Data: map[string]any{
						"symbol":    b.symbol,
						"event":     string(event.Type),
						"direction": string(event.Direction),
						"timeframe": string(tf),
						"level":     event.Level,
					},
				})
			}
		}
	}
	b.cache.Structures[tf] = state
}

// rebuildLiquidity maps the liquidity landscape fresh from the current
// swings. Every level comes out ACTIVE; transitionLevels runs separately,
// after sweep detection, so a level swept within the candle window is still
// scannable as a sweep candidate.
func (b *Bot) rebuildLiquidity(now time.Time) {
	swings := append([]analysis.Swing(nil), b.cache.Swings[b.fastTF]...)
	swings = append(swings, b.cache.Swings[b.slowTF]...)

	daily := b.cache.Series[market.Timeframe1d].Candles()
	// Drop the still-forming daily candle so PDH/PDL and the weekly window
	// reference completed days only.
	for len(daily) > 0 && daily[len(daily)-1].CloseTime().After(now) {
		daily = daily[:len(daily)-1]
	}

	b.cache.Levels = b.liquidity.Map(
		swings,
		daily,
		b.cache.SessionHigh,
		b.cache.SessionLow,
		now,
	)
}

// transitionLevels advances level states against the fast candles.
func (b *Bot) transitionLevels(now time.Time) {
	b.liquidity.UpdateLevelStates(b.cache.Levels, b.cache.Series[b.fastTF].Candles(), now)
}

// detectSweeps scans active levels for sweep-and-reclaim patterns and rings
// any new ones into the bounded sweep cache.
func (b *Bot) detectSweeps(now time.Time) {
	found := b.sweepDet.Detect(b.cache.Levels, b.cache.Series[b.fastTF].Candles())
	for _, s := range found {
		if b.cache.seenSweep(s) {
			continue
		}
		b.cache.Sweeps = analysis.AppendSweep(b.cache.Sweeps, s, sweepCap)
		b.logger.Info().
			Float64("level", s.Level.Price).
			Str("type", string(s.Level.Type)).
			Int("score", s.Score).
			Msg("liquidity sweep detected")
		if b.bus != nil {
			b.bus.Publish(events.Event{
				Type:      events.EventSweepDetected,
				Timestamp: now,
				Data: map[string]any{
					"symbol": b.symbol,
					"level":  s.Level.Price,
					"type":   string(s.Level.Type),
					"score":  s.Score,
				},
			})
		}
	}
}

// rebuildGaps detects fresh imbalances on the fast timeframe, merges them
// into the known set, advances their states, and drops terminal or stale ones.
func (b *Bot) rebuildGaps(now time.Time) {
	fresh := b.fvgDet.Detect(b.cache.Series[b.fastTF].Candles())
	b.cache.Gaps = analysis.MergeGaps(b.cache.Gaps, fresh)
	analysis.UpdateGapStates(b.cache.Gaps, b.cache.Series[b.execTF].Candles())
	b.cache.Gaps = analysis.PruneGaps(b.cache.Gaps, now)
}

// managePosition advances the live trade against the latest closed
// execution candle and books any resulting postings.
func (b *Bot) managePosition(c market.Candle, now time.Time) {
	if b.positions.Current() == nil {
		return
	}
	cutoff := b.calendar.PastTimeCutoff(now, b.cfg.SessionConfig.CutoffHour, b.cfg.SessionConfig.CutoffMinute)
	postings := b.positions.OnCandle(c, execution.ExitContext{
		Price:      c.Close,
		KillSwitch: b.riskMgr.KillSwitchActive(),
		PastCutoff: cutoff,
		FastEvent:  b.cache.Events[b.fastTF],
	}, now)
	b.settlePostings(postings)
}

// evaluateSignal runs the full gate chain and opens a paper trade when a
// setup clears. Block reasons are published once per distinct gate.
func (b *Bot) evaluateSignal(now time.Time) {
	if b.positions.Current() != nil {
		return
	}

	fastState := b.cache.Structures[b.fastTF]

	// The daily bias carries the reference range; the premium/discount
	// classification goes stale once intraday price crosses equilibrium,
	// so re-derive it at the live price.
	zone := b.cache.Bias.Zone
	if zone.RangeHigh > zone.RangeLow {
		zone = analysis.CalcZone(zone.RangeHigh, zone.RangeLow, b.cache.LastPrice)
	}

	in := signal.Inputs{
		Bias:         b.cache.Bias,
		Zone:         zone,
		InKillzone:   b.calendar.InKillzone(now),
		Sweeps:       b.cache.Sweeps,
		Gaps:         b.cache.Gaps,
		Levels:       b.cache.Levels,
		FastEvent:    b.cache.Events[b.fastTF],
		SlowEvent:    b.cache.Events[b.slowTF],
		FastSwings:   fastState.SwingCount,
		SlowSwings:   b.cache.Structures[b.slowTF].SwingCount,
		Critical:     fastState.CriticalSwing,
		Displacement: b.scorer.ScoreRecent(b.cache.Series[b.fastTF].Candles(), displacementSpan),
		Price:        b.cache.LastPrice,
		Now:          now,
	}

	sig, reason := b.detector.Detect(in, b.cache.Debounce)
	if sig == nil {
		if reason != "" && reason != b.cache.LastBlockReason {
			b.cache.LastBlockReason = reason
			if b.bus != nil {
				b.bus.PublishSignalBlocked(b.symbol, reason)
			}
		}
		return
	}
	b.cache.LastBlockReason = ""

	if b.bus != nil {
		b.bus.PublishSignal(b.symbol, string(sig.Side), sig.Entry, sig.StopLoss, sig.TP2, sig.Confidence)
	}

	t, blockReason := b.positions.HandleSignal(sig, now)
	if t == nil {
		b.logger.Info().Str("reason", blockReason).Msg("signal blocked")
		if b.bus != nil {
			b.bus.PublishSignalBlocked(b.symbol, blockReason)
		}
		if b.notifier != nil {
			_ = b.notifier.SendRiskBlock(b.symbol, blockReason)
		}
		return
	}
	b.logger.Info().
		Str("trade_id", t.ID).
		Str("side", string(t.Side)).
		Float64("entry", sig.Entry).
		Float64("stop", sig.StopLoss).
		Int("confidence", sig.Confidence).
		Msg("paper trade opened")
}

// settlePostings publishes closure events for any final posting. PnL
// bookkeeping already happened inside the position manager.
func (b *Bot) settlePostings(postings []execution.Posting) {
	for _, p := range postings {
		if p.Kind != execution.PostingFinalClose {
			continue
		}
		for _, t := range b.positions.Recent() {
			if t.ID == p.TradeID {
				if b.bus != nil {
					b.bus.PublishTradeClosed(b.symbol, t.ID, string(t.Status), t.RealizedPnL, t.RRAchieved)
				}
				break
			}
		}
	}
}

// persist writes the durable slices of state. All writes are best-effort.
func (b *Bot) persist(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if b.repo != nil {
		for _, tf := range []market.Timeframe{b.fastTF, b.slowTF} {
			if err := b.repo.SaveSwings(ctx, b.symbol, b.cache.Swings[tf]); err != nil {
				b.logger.Warn().Err(err).Msg("swing persistence failed")
			}
		}
		if t := b.positions.Current(); t != nil {
			if err := b.repo.SaveTrade(ctx, b.symbol, t); err != nil {
				b.logger.Warn().Err(err).Msg("trade persistence failed")
			}
		}
		for _, t := range b.positions.Recent() {
			tt := t
			if err := b.repo.SaveTrade(ctx, b.symbol, &tt); err != nil {
				b.logger.Warn().Err(err).Msg("trade persistence failed")
				break
			}
		}
	}

	if b.state != nil {
		snap := database.BotSnapshot{
			Trade:   b.positions.Current(),
			Risk:    b.riskMgr.State(),
			SavedAt: now,
		}
		if snap.Trade == nil {
			b.state.Clear(ctx, b.symbol)
		} else if err := b.state.Save(ctx, b.symbol, snap); err != nil {
			b.logger.Warn().Err(err).Msg("state persistence failed")
		}
	}
}

// dayOpenPrice finds the open of the first execution candle at or after the
// local day boundary, falling back to the last known price.
func (b *Bot) dayOpenPrice(now time.Time) float64 {
	dayStart := b.calendar.DayOpen(now)
	for _, c := range b.cache.Series[b.execTF].Candles() {
		if !c.OpenTime.Before(dayStart) {
			return c.Open
		}
	}
	return b.cache.LastPrice
}
