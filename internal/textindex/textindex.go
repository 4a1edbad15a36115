// Package textindex implements the Sharded Text Index (design §4.I): a
// bleve-backed full-text index per shard, with dynamic per-language
// caption fields and accent/case-insensitive fuzzy search.
package textindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/asciifolding"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/ejv2/ytsearch/internal/domain"
	"github.com/ejv2/ytsearch/internal/indexstore"
	"github.com/ejv2/ytsearch/internal/kvstore"
)

// foldingAnalyzer is the accent- and case-insensitive analyzer used for
// every field in a shard, per §4.I "Tokenisation is accent-insensitive
// and case-insensitive".
const foldingAnalyzer = "ytsearch_fold"

// NewMapping builds the index mapping shared by every shard. Caption
// fields are not declared up front: bleve indexes undeclared fields
// dynamically using the default analyzer, which is exactly what lets
// the shard grow a new caption.<language> field the first time a video
// with that language is added.
func NewMapping() *bleve.IndexMapping {
	m := bleve.NewIndexMapping()
	_ = m.AddCustomAnalyzer(foldingAnalyzer, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			asciifolding.Name,
		},
	})
	m.DefaultAnalyzer = foldingAnalyzer
	return m
}

// captionFieldPrefix names the dynamic per-language fields, per §3's
// data model ("dynamic per-language caption fields").
const captionFieldPrefix = "caption."

func captionField(language string) string { return captionFieldPrefix + language }

// KeywordSeparator joins a video's keywords into the single string
// indexed under the "keywords" field. Indexing the join (rather than
// the raw slice) means a search hit's locations land in a known,
// reproducible offset space, so a caller can map a match back to the
// keyword that produced it (see JoinKeywords).
const KeywordSeparator = "\x00"

// JoinKeywords concatenates keywords with KeywordSeparator: the exact
// text indexed under the "keywords" field.
func JoinKeywords(keywords []string) string {
	return strings.Join(keywords, KeywordSeparator)
}

// fuzzyEditDistance computes §4.I's default: term_len/3, clamped to
// bleve's supported [0,2] fuzziness range (the Open Question decision
// on max_sequential_edits: bleve has no equivalent parameter, so it is
// dropped and only the edit-distance ceiling is enforced here).
func fuzzyEditDistance(term string) int {
	d := len([]rune(term)) / 3
	if d > 2 {
		return 2
	}
	if d < 0 {
		return 0
	}
	return d
}

// Location is a term match's byte-offset span within a field's text.
type Location struct {
	Start int
	End   int
}

// Hit is one matched video from a shard search.
type Hit struct {
	VideoID        domain.VideoId
	Score          float64
	FieldLocations map[string][]Location
}

// Shard wraps one bleve index with the registry of per-language fields
// it has seen, so queries know which caption.<language> fields to
// search without probing the index schema.
type Shard struct {
	handle *indexstore.Handle
	key    string

	mu        sync.Mutex
	languages map[string]struct{}
	batch     *bleve.Batch
}

// Registry is the persisted set of languages known to a shard,
// recovered by Manager.Obtain so dynamic fields survive a process restart.
type Registry struct {
	Languages []string
}

func newShard(key string, handle *indexstore.Handle, known []string) *Shard {
	langs := make(map[string]struct{}, len(known))
	for _, l := range known {
		langs[l] = struct{}{}
	}
	return &Shard{handle: handle, key: key, languages: langs}
}

// Document is what gets upserted into a shard for one video.
type Document struct {
	Video    domain.Video
	FullText map[string]string // language -> flattened caption text (§4.H)
}

func (s *Shard) toBleveDoc(doc Document) map[string]interface{} {
	body := map[string]interface{}{
		"title":       doc.Video.Title,
		"description": doc.Video.Description,
		"keywords":    JoinKeywords(doc.Video.Keywords),
	}
	for lang, text := range doc.FullText {
		body[captionField(lang)] = text
		s.languages[lang] = struct{}{}
	}
	return body
}

// Add upserts a video document atomically. Callers are responsible for
// clearing the video's unindexed flag and persisting that change once
// Add returns successfully, per §4.I "clears unindexed_flag".
func (s *Shard) Add(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch != nil {
		return s.batch.Index(string(doc.Video.ID), s.toBleveDoc(doc))
	}

	if err := s.handle.Index.Index(string(doc.Video.ID), s.toBleveDoc(doc)); err != nil {
		return err
	}
	s.handle.MarkDirty()
	return nil
}

// Remove deletes a video document from the shard.
func (s *Shard) Remove(id domain.VideoId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch != nil {
		s.batch.Delete(string(id))
		return nil
	}

	if err := s.handle.Index.Delete(string(id)); err != nil {
		return err
	}
	s.handle.MarkDirty()
	return nil
}

// BeginBatch starts amortised-persistence mode: subsequent Add/Remove
// calls accumulate instead of writing immediately.
func (s *Shard) BeginBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = s.handle.Index.NewBatch()
}

// CommitBatch flushes the accumulated batch with a single save, per
// §4.I "one save per commit via callback".
func (s *Shard) CommitBatch() error {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if batch == nil {
		return nil
	}
	if err := s.handle.Index.Batch(batch); err != nil {
		return err
	}
	s.handle.MarkDirty()
	return nil
}

// Languages returns the shard's known caption languages.
func (s *Shard) Languages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.languages))
	for l := range s.languages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Close releases the shard's underlying index handle.
func (s *Shard) Close() error {
	return s.handle.Close()
}

// fields searched by default, before per-language caption fields are
// appended.
var baseFields = []string{"title", "description", "keywords"}

func (s *Shard) searchFields() []string {
	langs := s.Languages()
	fields := make([]string, 0, len(baseFields)+len(langs))
	fields = append(fields, baseFields...)
	for _, l := range langs {
		fields = append(fields, captionField(l))
	}
	return fields
}

// buildQuery constructs a fuzzy, multi-field disjunction over the query
// string's terms, restricted (via conjunction) to the given candidate
// ids when non-empty.
func (s *Shard) buildQuery(q string, restrict []domain.VideoId) query.Query {
	terms := strings.Fields(q)
	fields := s.searchFields()

	var fieldQueries []query.Query
	for _, term := range terms {
		dist := fuzzyEditDistance(term)
		for _, f := range fields {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(f)
			mq.Fuzziness = dist
			fieldQueries = append(fieldQueries, mq)
		}
	}

	var main query.Query
	if len(fieldQueries) == 0 {
		main = bleve.NewMatchAllQuery()
	} else {
		main = bleve.NewDisjunctionQuery(fieldQueries...)
	}

	if len(restrict) == 0 {
		return main
	}

	ids := make([]string, len(restrict))
	for i, id := range restrict {
		ids[i] = string(id)
	}
	idQuery := bleve.NewDocIDQuery(ids)

	return bleve.NewConjunctionQuery(main, idQuery)
}

// Search runs q against the shard, restricted to restrict when
// non-empty, and returns hits with their per-field term locations so
// callers can build padded matches (internal/match).
func (s *Shard) Search(q string, restrict []domain.VideoId) ([]Hit, error) {
	bq := s.buildQuery(q, restrict)

	req := bleve.NewSearchRequest(bq)
	req.Size = 10000
	req.Fields = []string{"*"}
	req.IncludeLocations = true

	res, err := s.handle.Index.Search(req)
	if err != nil {
		return nil, domain.NewInputError("search: %v", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, dm := range res.Hits {
		h := Hit{VideoID: domain.VideoId(dm.ID), Score: dm.Score, FieldLocations: make(map[string][]Location)}
		for field, terms := range dm.Locations {
			var locs []Location
			for _, occurrences := range terms {
				for _, loc := range occurrences {
					locs = append(locs, Location{Start: int(loc.Start), End: int(loc.End)})
				}
			}
			sort.Slice(locs, func(i, j int) bool { return locs[i].Start < locs[j].Start })
			h.FieldLocations[field] = locs
		}
		hits = append(hits, h)
	}

	return hits, nil
}

// Manager obtains and releases shards on demand, persisting each
// shard's language registry so dynamic caption fields are rediscovered
// across process restarts.
type Manager struct {
	store    *indexstore.Store
	registry *kvstore.Store

	mu     sync.Mutex
	shards map[string]*Shard
}

func NewManager(store *indexstore.Store, registry *kvstore.Store) *Manager {
	return &Manager{store: store, registry: registry, shards: make(map[string]*Shard)}
}

func registryKey(shardKey string) string { return "textindex.languages." + shardKey }

// Obtain returns the shard for shardKey, opening it from storage or
// building it fresh on a miss. The returned shard remains live until
// Release is called.
func (m *Manager) Obtain(shardKey string) (*Shard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sh, ok := m.shards[shardKey]; ok {
		return sh, nil
	}

	var reg Registry
	if _, err := m.registry.Get(registryKey(shardKey), &reg); err != nil {
		return nil, err
	}

	handle, ok, err := m.store.Get(shardKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		handle, err = m.store.Build(shardKey, NewMapping())
		if err != nil {
			return nil, err
		}
	}

	sh := newShard(shardKey, handle, reg.Languages)
	m.shards[shardKey] = sh
	return sh, nil
}

// Release persists the shard's language registry and closes its
// underlying handle, per §4.I "released when idle".
func (m *Manager) Release(shardKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sh, ok := m.shards[shardKey]
	if !ok {
		return nil
	}
	delete(m.shards, shardKey)

	if err := m.registry.Set(registryKey(shardKey), Registry{Languages: sh.Languages()}); err != nil {
		return err
	}
	return sh.Close()
}
