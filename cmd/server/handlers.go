package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/Simplici0/importcost/internal/form"
	"github.com/Simplici0/importcost/internal/metrics"
	"github.com/Simplici0/importcost/internal/pricing"
	"github.com/Simplici0/importcost/internal/report"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string `json:"error"`
	Line   string `json:"line,omitempty"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type defaultsResponse struct {
	PercentMode  form.PercentMode `json:"percent_mode"`
	FillDefaults bool             `json:"fill_defaults"`
	Defaults     form.Defaults    `json:"defaults"`
}

// reportRequest holds the lines undecoded so a bad cost field can be reported
// against its line.
type reportRequest struct {
	Lines []json.RawMessage `json:"lines" validate:"required"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, defaultsResponse{
		PercentMode:  s.cfg.PercentMode,
		FillDefaults: s.cfg.FillDefaults,
		Defaults:     s.defaults,
	})
}

// handleRecompute serves the live-edit form: every keystroke posts the whole
// form and gets the recomputed figures back.
func (s *server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.badRequest(w, r, "invalid form")
		return
	}

	opts := form.Options{PercentMode: s.cfg.PercentMode}
	if s.cfg.FillDefaults {
		opts.Defaults = &s.defaults
	}

	in, err := form.ParseInput(form.FieldsFromValues(r.PostForm), opts)
	if err != nil {
		s.computeFailed(w, r, metrics.SourceForm, err)
		return
	}
	s.log.Debug("recompute input",
		zap.String("request_id", requestIDFrom(r)),
		zap.Stringer("unit_price_usd", in.UnitPriceUSD),
		zap.Stringer("admin_fee_percent", in.AdminFeePercent),
		zap.Stringer("exchange_rate", in.ExchangeRate),
		zap.Int("quantity", in.Quantity),
		zap.Bool("sold", in.SalePriceUnitLocal.Valid),
	)

	s.compute(w, r, metrics.SourceForm, in)
}

// handleCompute takes the canonical JSON input: every cost field is required
// and admin_fee_percent is a fraction.
func (s *server) handleCompute(w http.ResponseWriter, r *http.Request) {
	var in pricing.Input
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &in); err != nil {
		if errors.As(err, new(*pricing.InvalidInputError)) {
			s.computeFailed(w, r, metrics.SourceAPI, err)
			return
		}
		s.badRequest(w, r, "invalid JSON body")
		return
	}
	s.compute(w, r, metrics.SourceAPI, in)
}

func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		s.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	lines, err := report.DecodeLines(req.Lines)
	if err != nil {
		s.reportFailed(w, r, err)
		return
	}
	rep, err := report.Build(lines)
	if err != nil {
		s.reportFailed(w, r, err)
		return
	}
	s.metrics.ObserveComputation(metrics.SourceReport, "")
	render.JSON(w, r, rep)
}

// reportFailed answers 422 for a bad cost field and 400 for any other bad
// line, naming the line either way.
func (s *server) reportFailed(w http.ResponseWriter, r *http.Request, err error) {
	var lineErr *report.LineError
	if !errors.As(err, &lineErr) {
		s.computeFailed(w, r, metrics.SourceReport, err)
		return
	}
	var invalid *pricing.InvalidInputError
	if errors.As(err, &invalid) {
		s.metrics.ObserveComputation(metrics.SourceReport, invalid.Field)
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Error: "invalid_input", Line: lineErr.ID, Field: invalid.Field, Reason: invalid.Reason})
		return
	}
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: "bad_request", Line: lineErr.ID, Reason: lineErr.Err.Error()})
}

func (s *server) compute(w http.ResponseWriter, r *http.Request, source string, in pricing.Input) {
	res, err := pricing.Compute(in)
	if err != nil {
		s.computeFailed(w, r, source, err)
		return
	}
	s.metrics.ObserveComputation(source, "")
	render.JSON(w, r, res.Display())
}

// computeFailed maps an *pricing.InvalidInputError to 422; anything else is
// unexpected.
func (s *server) computeFailed(w http.ResponseWriter, r *http.Request, source string, err error) {
	var invalid *pricing.InvalidInputError
	if errors.As(err, &invalid) {
		s.metrics.ObserveComputation(source, invalid.Field)
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Error: "invalid_input", Field: invalid.Field, Reason: invalid.Reason})
		return
	}

	s.log.Error("computation failed", zap.String("request_id", requestIDFrom(r)), zap.String("source", source), zap.Error(err))
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, errorResponse{Error: "internal_error"})
}

func (s *server) badRequest(w http.ResponseWriter, r *http.Request, reason string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: "bad_request", Reason: reason})
}
