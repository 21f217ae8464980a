// Package resolve turns heterogeneous user-supplied identifiers (ticker
// symbols, option expressions, resource URLs) into canonical instrument
// records, batching upstream calls and aliasing results under every form
// an instrument is known by.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stockbot/internal/cache"
	"stockbot/internal/rhood"
)

// DefaultPoolSize bounds concurrent search calls per resolution.
const DefaultPoolSize = 10

var uuidPattern = regexp.MustCompile(`([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})/?$`)

// parser is the per-kind identifier grammar and disambiguation rule.
type parser interface {
	Kind() rhood.Kind
	Example() string
	Match(identifier string) bool
	SearchParams(ctx context.Context, identifier string) (rhood.Params, error)
	// ParamsFor rebuilds search params from an already-resolved
	// instrument, without any lookup.
	ParamsFor(inst rhood.Instrument) rhood.Params
	StandardIdentifier(identifier string) (string, error)
	Filter(results []rhood.Instrument, params rhood.Params) []rhood.Instrument
	Search(ctx context.Context, params rhood.Params) ([]rhood.Instrument, error)
	Batch(ctx context.Context, ids []string) ([]rhood.Instrument, error)
	Decode(raw json.RawMessage) (rhood.Instrument, error)
	BaseURL() string
	SearchURL(params rhood.Params) string
}

// Resolver maps identifiers to Instruments with the minimum number of
// upstream calls: batch gets for known UUIDs, cache-first concurrent
// searches for symbolic expressions.
type Resolver struct {
	client   *rhood.Client
	cache    *cache.Cache
	parsers  []parser
	poolSize int
	log      *slog.Logger
}

func New(client *rhood.Client, store *cache.Cache, poolSize int, log *slog.Logger) *Resolver {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		client: client,
		cache:  store,
		parsers: []parser{
			&stockParser{client: client, log: log},
			&optionParser{client: client, log: log},
		},
		poolSize: poolSize,
		log:      log,
	}
}

// ValidIdentifier reports whether any kind's grammar or URL form accepts
// the identifier.
func (r *Resolver) ValidIdentifier(identifier string) bool {
	for _, p := range r.parsers {
		if r.validURL(p, identifier) || p.Match(identifier) {
			return true
		}
	}
	return false
}

// StandardIdentifier normalizes an identifier to its canonical alias
// form. URLs pass through unchanged.
func (r *Resolver) StandardIdentifier(identifier string) (string, error) {
	for _, p := range r.parsers {
		if r.validURL(p, identifier) {
			return identifier, nil
		}
		if p.Match(identifier) {
			return p.StandardIdentifier(identifier)
		}
	}
	return "", r.badIdentifier(identifier)
}

// Resolve maps every identifier to its Instrument. The output map also
// carries each instrument under its canonical resource URL and standard
// identifier, so downstream code can look it up by whatever form it
// happens to hold.
func (r *Resolver) Resolve(ctx context.Context, identifiers ...string) (map[string]rhood.Instrument, error) {
	instruments := make(map[string]rhood.Instrument)

	for _, identifier := range identifiers {
		if !r.ValidIdentifier(identifier) {
			return nil, r.badIdentifier(identifier)
		}
	}

	for _, p := range r.parsers {
		directs := make(map[string]string) // resource URL → UUID
		var searches []string
		for _, identifier := range identifiers {
			switch {
			case strings.HasPrefix(identifier, p.BaseURL()):
				match := uuidPattern.FindStringSubmatch(identifier)
				if match == nil {
					return nil, &rhood.BadRequestError{Message: fmt.Sprintf("invalid %s UUID identifier in URL: '%s'", p.Kind(), identifier)}
				}
				if _, err := uuid.Parse(match[1]); err != nil {
					return nil, &rhood.BadRequestError{Message: fmt.Sprintf("invalid %s UUID identifier in URL: '%s'", p.Kind(), identifier)}
				}
				directs[identifier] = match[1]
			case p.Match(identifier) && !r.claimedByEarlier(p, identifier):
				searches = append(searches, identifier)
			}
		}
		if err := r.getInstruments(ctx, p, directs, instruments); err != nil {
			return nil, err
		}
		if err := r.searchInstruments(ctx, p, searches, instruments); err != nil {
			return nil, err
		}
	}
	return instruments, nil
}

func (r *Resolver) validURL(p parser, identifier string) bool {
	return strings.HasPrefix(identifier, p.BaseURL()) && uuidPattern.MatchString(identifier)
}

// claimedByEarlier keeps an identifier with the first grammar that
// accepts it (a bare ticker must not also be resolved as an option).
func (r *Resolver) claimedByEarlier(p parser, identifier string) bool {
	for _, earlier := range r.parsers {
		if earlier == p {
			return false
		}
		if earlier.Match(identifier) {
			return true
		}
	}
	return false
}

func (r *Resolver) badIdentifier(identifier string) error {
	examples := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		examples[i] = fmt.Sprintf("%s (e.g. %s)", p.Kind(), p.Example())
	}
	return &rhood.BadRequestError{
		Message: fmt.Sprintf("invalid identifier '%s'; supported formats: %s", identifier, strings.Join(examples, ", ")),
	}
}

// getInstruments resolves direct references: cache per-URL first, then
// one batched ids= search for the rest.
func (r *Resolver) getInstruments(ctx context.Context, p parser, directs map[string]string, out map[string]rhood.Instrument) error {
	var ids []string
	for resourceURL, id := range directs {
		if raw, ok := r.cacheGet(resourceURL); ok {
			if inst, err := p.Decode(raw); err == nil {
				r.setInstrument(p, out, inst, "")
				continue
			}
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	retrieved, err := p.Batch(ctx, ids)
	if err != nil {
		return err
	}
	for _, inst := range retrieved {
		r.setInstrument(p, out, inst, "")
		// Cache results of both a resource get and the equivalent search
		// query, so later resolutions of either form are free.
		r.cacheSet(inst.InstrumentURL(), inst.RawData())
		r.cacheSet(p.SearchURL(p.ParamsFor(inst)), resultsEnvelope(inst.RawData()))
	}
	return nil
}

type searchJob struct {
	identifier string
	params     rhood.Params
}

// searchInstruments resolves symbolic identifiers: cache by canonical
// search URL first, then one concurrent search task per remaining
// identifier on a bounded pool.
func (r *Resolver) searchInstruments(ctx context.Context, p parser, identifiers []string, out map[string]rhood.Instrument) error {
	var pending []searchJob
	for _, identifier := range identifiers {
		params, err := p.SearchParams(ctx, identifier)
		if err != nil {
			return err
		}
		if raw, ok := r.cacheGet(p.SearchURL(params)); ok {
			cached := r.decodeCached(p, raw)
			if matches := p.Filter(cached, params); len(matches) == 1 {
				r.setInstrument(p, out, matches[0], identifier)
				continue
			}
		}
		pending = append(pending, searchJob{identifier: identifier, params: params})
	}
	if len(pending) == 0 {
		return nil
	}

	results := make([][]rhood.Instrument, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.poolSize)
	for i, job := range pending {
		i, job := i, job
		g.Go(func() error {
			retrieved, err := p.Search(gctx, job.params)
			if err != nil {
				return err
			}
			results[i] = retrieved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, job := range pending {
		retrieved := results[i]
		raws := make([]json.RawMessage, len(retrieved))
		for j, inst := range retrieved {
			raws[j] = inst.RawData()
		}
		r.cacheSet(p.SearchURL(job.params), resultsEnvelope(raws...))

		matches := p.Filter(retrieved, job.params)
		switch {
		case len(matches) == 0:
			return &rhood.NotFoundError{Kind: p.Kind(), Identifier: job.identifier}
		case len(matches) > 1:
			// Should not occur if upstream invariants hold.
			return fmt.Errorf("multiple possible %ss found for %s, could not select a unique one", p.Kind(), job.identifier)
		}
		r.setInstrument(p, out, matches[0], job.identifier)
		r.cacheSet(matches[0].InstrumentURL(), matches[0].RawData())
	}
	return nil
}

// setInstrument registers an instrument under every alias it is known
// by: canonical identifier, resource URL, and the caller's exact string
// plus its standard form.
func (r *Resolver) setInstrument(p parser, out map[string]rhood.Instrument, inst rhood.Instrument, identifier string) {
	out[inst.Identifier()] = inst
	out[inst.InstrumentURL()] = inst
	if identifier != "" {
		out[identifier] = inst
		if std, err := p.StandardIdentifier(identifier); err == nil {
			out[std] = inst
		}
	}
}

func (r *Resolver) cacheGet(key string) (json.RawMessage, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key)
}

func (r *Resolver) cacheSet(key string, val json.RawMessage) {
	if r.cache == nil {
		return
	}
	r.cache.Set(key, val, cache.TTLInstrument)
}

// decodeCached rehydrates instruments from a cached search envelope or a
// cached single resource.
func (r *Resolver) decodeCached(p parser, raw json.RawMessage) []rhood.Instrument {
	var env struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Results != nil {
		var out []rhood.Instrument
		for _, item := range env.Results {
			if inst, err := p.Decode(item); err == nil {
				out = append(out, inst)
			}
		}
		return out
	}
	if inst, err := p.Decode(raw); err == nil {
		return []rhood.Instrument{inst}
	}
	return nil
}

func resultsEnvelope(raws ...json.RawMessage) json.RawMessage {
	env := struct {
		Results []json.RawMessage `json:"results"`
	}{Results: raws}
	b, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return b
}
