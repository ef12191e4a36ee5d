package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/market"
	"okx-scanner/internal/models"
	"okx-scanner/internal/screener"
	"okx-scanner/internal/security"
	"okx-scanner/internal/store"
	"okx-scanner/pkg/utils"
)

// artifactOpener is implemented by backends that keep one file per series.
type artifactOpener interface {
	Open(name string) (*os.File, os.FileInfo, error)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) debugEcho(c *gin.Context) {
	key, source := security.ExtractAPIKey(c.Request)
	var tail any
	if key != "" {
		tail = security.KeyTail(key)
	}
	c.JSON(http.StatusOK, gin.H{
		"has_key":    key != "",
		"key_tail":   tail,
		"key_source": string(source),
		"headers_seen": gin.H{
			"authorization_present": c.GetHeader("Authorization") != "",
			"x-api-key_present":     c.GetHeader("X-Api-Key") != "",
		},
	})
}

// ============================================================================
// Market data
// ============================================================================

func (s *Server) ticker(c *gin.Context) {
	instID, err := security.ValidateInstID(c.Query("inst_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	t, err := s.source.FetchTicker(c.Request.Context(), instID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) tickers(c *gin.Context) {
	instType, err := security.ValidateInstType(c.DefaultQuery("inst_type", string(models.InstSpot)))
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := s.source.FetchTickers(c.Request.Context(), instType)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Ticker{}
	}
	c.JSON(http.StatusOK, gin.H{"inst_type": instType, "count": len(list), "data": list})
}

func (s *Server) candles(c *gin.Context) {
	instID, err := security.ValidateInstID(c.Query("inst_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	bar := c.Query("bar")
	if !utils.IsValidBar(bar) {
		writeError(c, errors.NewValidationError("bar", bar, "unknown bar"))
		return
	}

	def, ok := s.scanDefaults().Bars.Limit(bar)
	if !ok {
		def = market.DefaultLimit(bar)
	}
	limit, err := queryInt(c, "limit", def)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit <= 0 || limit > market.MaxLimit {
		writeError(c, errors.NewValidationError("limit", limit, fmt.Sprintf("must be between 1 and %d", market.MaxLimit)))
		return
	}

	series, err := s.source.FetchCandles(c.Request.Context(), instID, bar, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"inst_id": instID,
		"bar":     bar,
		"columns": models.CandleColumns,
		"data":    series.Rows,
	})
}

// ============================================================================
// Scanner control
// ============================================================================

type scanStartResponse struct {
	Started bool `json:"started"`
	models.ScanStatus
}

type scanStopResponse struct {
	Stopped bool `json:"stopped"`
	models.ScanStatus
}

func (s *Server) scanStart(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, err)
		return
	}

	var req models.ScanConfigRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			writeError(c, errors.NewValidationError("body", nil, "invalid scan configuration: "+err.Error()))
			return
		}
	}

	defaults := s.scanDefaults()
	if req.Symbols == nil {
		req.Symbols = []string{}
	}
	for i, sym := range req.Symbols {
		req.Symbols[i] = utils.NormalizeInstID(sym)
	}
	if len(req.Bars) == 0 {
		req.Bars = slices.Clone(defaults.Bars)
	}
	if req.Batch == 0 {
		req.Batch = defaults.Batch
	}
	if req.IntervalSec == 0 {
		req.IntervalSec = int(defaults.Interval.Seconds())
	}

	cfg := req.ToConfig()
	ctx := c.Request.Context()
	details := map[string]any{"symbols": len(cfg.Symbols), "batch": cfg.Batch, "interval_sec": req.IntervalSec}
	if err := s.scanner.Reconfigure(cfg); err != nil {
		_ = s.audit.LogScan(ctx, security.AuditScanReconfigured, details, err)
		writeError(c, err)
		return
	}
	_ = s.audit.LogScan(ctx, security.AuditScanReconfigured, details, nil)

	s.scanner.Start(s.baseCtx)
	_ = s.audit.LogScan(ctx, security.AuditScanStarted, nil, nil)

	c.JSON(http.StatusOK, scanStartResponse{Started: true, ScanStatus: s.scanner.Status()})
}

func (s *Server) scanStop(c *gin.Context) {
	s.scanner.Stop()
	_ = s.audit.LogScan(c.Request.Context(), security.AuditScanStopped, nil, nil)
	c.JSON(http.StatusOK, scanStopResponse{Stopped: true, ScanStatus: s.scanner.Status()})
}

func (s *Server) scanStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.scanner.Status())
}

// ============================================================================
// Artifacts
// ============================================================================

func (s *Server) filesList(c *gin.Context) {
	list, err := s.backend.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []store.Artifact{}
	}
	c.JSON(http.StatusOK, gin.H{"backend": s.cfg.Storage.Backend, "files": list})
}

func (s *Server) filesDownload(c *gin.Context) {
	name := c.Query("path")
	if name == "" {
		name = c.Query("name")
	}
	instID, bar, ok := store.ParseArtifactName(name)
	if !ok {
		writeError(c, errors.NewValidationError("path", name, "not a candle artifact"))
		return
	}
	ctx := c.Request.Context()

	if opener, ok := s.backend.(artifactOpener); ok {
		f, info, err := opener.Open(name)
		_ = s.audit.LogDownload(ctx, name, err)
		if err != nil {
			writeError(c, err)
			return
		}
		defer f.Close()
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
		return
	}

	series, err := s.backend.ReadCandles(ctx, instID, bar)
	_ = s.audit.LogDownload(ctx, name, err)
	if err != nil {
		writeError(c, err)
		return
	}
	filename := strings.TrimSuffix(name, ".csv") + ".csv"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := store.WriteCSV(c.Writer, series); err != nil {
		s.logger.Warn().Err(err).Str("artifact", name).Msg("Download interrupted")
	}
}

// ============================================================================
// Preferences
// ============================================================================

func (s *Server) prefsGet(c *gin.Context) {
	p, err := s.prefs.Read()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) prefsUpdate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	var keys map[string]json.RawMessage
	_ = sonic.Unmarshal(body, &keys)
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	slices.Sort(names)

	p, err := s.prefs.Update(body)
	if err == nil {
		err = s.rebuildScreeners(p)
	}
	_ = s.audit.LogPrefsChanged(ctx, names, err)
	if err != nil {
		writeError(c, err)
		return
	}
	s.reseedDefaults(p)
	c.JSON(http.StatusOK, p)
}

// ============================================================================
// Strategy
// ============================================================================

func (s *Server) strategyEvaluate(c *gin.Context) {
	scr, ok := s.screener(c.Param("policy"))
	if !ok {
		writeError(c, fmt.Errorf("%w: %q", errors.ErrUnknownPolicy, c.Param("policy")))
		return
	}
	instID, err := security.ValidateInstID(c.Query("inst_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := s.params(c)
	if err != nil {
		writeError(c, err)
		return
	}

	sig, err := scr.Evaluate(c.Request.Context(), instID, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (s *Server) strategyScan(c *gin.Context) {
	scr, ok := s.screener(c.Param("policy"))
	if !ok {
		writeError(c, fmt.Errorf("%w: %q", errors.ErrUnknownPolicy, c.Param("policy")))
		return
	}
	p, err := s.params(c)
	if err != nil {
		writeError(c, err)
		return
	}
	instType, err := security.ValidateInstType(c.DefaultQuery("inst_type", string(models.InstSpot)))
	if err != nil {
		writeError(c, err)
		return
	}
	top, err := queryInt(c, "top", 5)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := scr.ScanTop(c.Request.Context(), screener.TopRequest{Params: p, InstType: instType, Top: top})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) signalsRecent(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "not_supported", "detail": "signal journal requires the sqlite backend"})
		return
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit <= 0 || limit > 500 {
		writeError(c, errors.NewValidationError("limit", limit, "must be between 1 and 500"))
		return
	}
	list, err := s.journal.RecentSignals(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []store.StoredSignal{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": list})
}

// ============================================================================
// Helpers
// ============================================================================

// params reads the evaluation query parameters over the configured
// defaults.
func (s *Server) params(c *gin.Context) (screener.Params, error) {
	p := screener.DefaultParams()
	p.Sizing = s.riskDefaults()
	p.Bar = c.DefaultQuery("bar", p.Bar)
	p.TrendBar = c.DefaultQuery("trend_bar", p.TrendBar)

	var err error
	if p.Limit, err = queryInt(c, "limit", p.Limit); err != nil {
		return p, err
	}
	if p.Sizing.RiskPercent, err = queryFloat(c, "risk_percent", p.Sizing.RiskPercent); err != nil {
		return p, err
	}
	if p.Sizing.CapitalTotal, err = queryFloat(c, "funds_total", p.Sizing.CapitalTotal); err != nil {
		return p, err
	}
	if p.Sizing.Split, err = queryInt(c, "funds_split", p.Sizing.Split); err != nil {
		return p, err
	}
	if p.Sizing.Leverage, err = queryFloat(c, "leverage", p.Sizing.Leverage); err != nil {
		return p, err
	}
	if p.Exclude, err = queryBool(c, "exclude_btc_in_screen", p.Exclude); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) scanDefaults() models.ScanConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

func (s *Server) reseedDefaults(p store.Prefs) {
	cfg := s.cfg.ScanConfig()
	p.SeedScan(&cfg, s.cfg.ScanFieldPinned)
	s.mu.Lock()
	s.defaults = cfg
	s.mu.Unlock()
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name, raw, "must be an integer")
	}
	return v, nil
}

func queryFloat(c *gin.Context, name string, def float64) (float64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.NewValidationError(name, raw, "must be a number")
	}
	return v, nil
}

func queryBool(c *gin.Context, name string, def bool) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewValidationError(name, raw, "must be a boolean")
	}
	return v, nil
}
