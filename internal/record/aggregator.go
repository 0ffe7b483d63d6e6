package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/token"
	"github.com/chartview/chartview/internal/upstream"
)

var (
	// ErrUnknownSource signals a source identifier outside the configured
	// set.
	ErrUnknownSource = errors.New("unknown source")

	// ErrInvalidPatientID signals a patient id that fails validation before
	// any upstream call is made.
	ErrInvalidPatientID = errors.New("invalid patient id")
)

// FHIR logical ids: alphanumerics, dash and dot, at most 64 characters.
var patientIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

// Aggregator assembles unified patient records. It fans the four category
// fetches out concurrently and always waits for all of them; a failure in
// one category is recorded in that category's outcome and never cancels
// the others.
type Aggregator struct {
	adapters map[token.Source]upstream.Adapter
	tokens   *token.Context
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewAggregator wires the aggregator over the given adapters. timeout is
// the per-call budget applied independently to each upstream fetch.
func NewAggregator(adapters []upstream.Adapter, tokens *token.Context, timeout time.Duration, logger zerolog.Logger) *Aggregator {
	m := make(map[token.Source]upstream.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &Aggregator{
		adapters: m,
		tokens:   tokens,
		timeout:  timeout,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

func (a *Aggregator) adapter(source token.Source) (upstream.Adapter, error) {
	ad, ok := a.adapters[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return ad, nil
}

// LoadPatientRecord fetches demographics, radiology, labs and notes for one
// patient from one source and merges them into a PatientRecord.
//
// Only three conditions surface as errors: an unknown source, a malformed
// patient id, and a missing credential. Everything upstream-side, including
// all four fetches failing, still produces a record; the failures live in
// its Outcomes.
func (a *Aggregator) LoadPatientRecord(ctx context.Context, source token.Source, patientID string) (*PatientRecord, error) {
	ad, err := a.adapter(source)
	if err != nil {
		return nil, err
	}
	if !patientIDPattern.MatchString(patientID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPatientID, patientID)
	}
	cred, err := a.tokens.Get(source)
	if err != nil {
		return nil, err
	}

	rec := &PatientRecord{
		Source:    source,
		PatientID: patientID,
		Radiology: []ClinicalDocument{},
		Labs:      []ClinicalDocument{},
		Notes:     []ClinicalDocument{},
	}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		raw, err := a.fetch(ctx, func(c context.Context) (json.RawMessage, error) {
			return ad.FetchDemographics(c, cred, patientID)
		})
		if err != nil {
			rec.Outcomes.Demographics = a.failureOutcome(source, "demographics", err)
			return
		}
		p, err := NormalizePatient(source, raw)
		if err != nil {
			out := a.failureOutcome(source, "demographics", err)
			var shapeErr *UnrecognizedShapeError
			if errors.As(err, &shapeErr) {
				out.Raw = shapeErr.Raw
			}
			rec.Outcomes.Demographics = out
			return
		}
		rec.Patient = p
	}()

	fetchDocs := func(category Category, outcome *FetchOutcome, docs *[]ClinicalDocument,
		fn func(context.Context, token.Credential, string) (json.RawMessage, error)) {
		defer wg.Done()
		raw, err := a.fetch(ctx, func(c context.Context) (json.RawMessage, error) {
			return fn(c, cred, patientID)
		})
		if err != nil {
			*outcome = a.failureOutcome(source, string(category), err)
			return
		}
		list, err := NormalizeDocuments(source, category, raw)
		if err != nil {
			*outcome = a.failureOutcome(source, string(category), err)
			return
		}
		*docs = list
	}

	go fetchDocs(CategoryRadiology, &rec.Outcomes.Radiology, &rec.Radiology, ad.FetchRadiology)
	go fetchDocs(CategoryLab, &rec.Outcomes.Labs, &rec.Labs, ad.FetchLabs)
	go fetchDocs(CategoryNote, &rec.Outcomes.Notes, &rec.Notes, ad.FetchNotes)

	wg.Wait()

	if rec.Partial() {
		a.logger.Warn().
			Str("source", source.String()).
			Str("patient_id", patientID).
			Bool("demographics_failed", rec.Outcomes.Demographics.Failed).
			Bool("radiology_failed", rec.Outcomes.Radiology.Failed).
			Bool("labs_failed", rec.Outcomes.Labs.Failed).
			Bool("notes_failed", rec.Outcomes.Notes.Failed).
			Msg("patient record assembled with partial failures")
	}
	return rec, nil
}

// fetch runs one upstream call under its own deadline so a slow category
// cannot eat its siblings' budget.
func (a *Aggregator) fetch(ctx context.Context, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return fn(callCtx)
}

// failureOutcome converts a fetch or normalization error into the outcome
// recorded on the record.
func (a *Aggregator) failureOutcome(source token.Source, category string, err error) FetchOutcome {
	out := FetchOutcome{Failed: true, Reason: err.Error()}

	var reqErr *upstream.RequestError
	switch {
	case errors.As(err, &reqErr):
		out.Status = reqErr.Status
	case errors.Is(err, context.DeadlineExceeded):
		out.Reason = "upstream call timed out"
	}

	a.logger.Warn().
		Str("source", source.String()).
		Str("category", category).
		Int("status", out.Status).
		Err(err).
		Msg("upstream fetch failed")
	return out
}

// SearchPatients runs a name search against one source and returns the
// normalized summaries.
func (a *Aggregator) SearchPatients(ctx context.Context, source token.Source, name string) ([]PatientSummary, error) {
	ad, err := a.adapter(source)
	if err != nil {
		return nil, err
	}
	cred, err := a.tokens.Get(source)
	if err != nil {
		return nil, err
	}

	raw, err := a.fetch(ctx, func(c context.Context) (json.RawMessage, error) {
		return ad.SearchPatients(c, cred, name)
	})
	if err != nil {
		return nil, err
	}
	return NormalizePatientSummaries(source, raw)
}
