// Package ingest implements the Ingestion Service component (spec.md §4.6):
// a single-threaded cooperative worker that walks every configured KB's
// selection patterns, resolving each matched document through the KB's
// convertor chain and into the KB's vector store, honouring caches so a
// re-run only does work for documents that changed.
package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragocore/ragocore/pkg/config"
	"github.com/ragocore/ragocore/pkg/convertor"
	"github.com/ragocore/ragocore/pkg/core"
	"github.com/ragocore/ragocore/pkg/docfile"
	"github.com/ragocore/ragocore/pkg/docsource"
	"github.com/ragocore/ragocore/pkg/kb"
	"github.com/ragocore/ragocore/pkg/log"
	"github.com/ragocore/ragocore/pkg/runner"
)

// defaultDocConcurrency bounds how many documents within one KB are
// converted and stored at once; KBs themselves stay sequential so the
// status blob's kb_num/kb_name fields keep a single, unambiguous meaning
// (§4.6's status shape is specified for one KB in flight at a time).
const defaultDocConcurrency = 1

// Result is the terminal reason a run concluded, carried in the status
// blob's "result" field once the worker stops (§4.6 "final status").
type Result string

const (
	ResultNone      Result = ""
	ResultDone      Result = "done"
	ResultCancelled Result = "cancelled"
)

// Status is the JSON status blob readable at any time while (or after) the
// worker runs (§4.6): {status, kb_num, kb_name, kb_total, doc_num, doc_path,
// doc_total, convertor?, error?}. Active and Result are kept as distinct
// fields rather than folded into one "status" string: Active answers
// "is the worker currently running", Result answers "how did the last run
// end" — see DESIGN.md Open Question (c).
type Status struct {
	Active    bool   `json:"active"`
	Result    Result `json:"result,omitempty"`
	KBNum     int    `json:"kb_num"`
	KBName    string `json:"kb_name"`
	KBTotal   int    `json:"kb_total"`
	DocNum    int    `json:"doc_num"`
	DocPath   string `json:"doc_path"`
	DocTotal  int    `json:"doc_total"`
	Convertor string `json:"convertor,omitempty"`
	Error     bool   `json:"error,omitempty"`
}

// errCancelled is the sentinel cooperative-cancellation signal returned once
// an isStopped check sees the stop signal, rather than a context cancellation (the
// worker is not driven by a caller context; it is driven by Stop()).
var errCancelled = errors.New("ingest: cancelled")

// Service is the Ingestion Service: started on demand, stoppable
// cooperatively, with its progress readable via Status at any time. The
// active flag and start/stop shape are grounded on the teacher's
// pkg/llm/health.go HealthChecker (mutex-guarded running flag, a stop
// channel closed on Stop, a single background goroutine).
type Service struct {
	mu     sync.Mutex
	active bool
	stopCh chan struct{}
	status Status

	docSource   docsource.Source
	kbStore     kb.KBStore
	backend     runner.Backend
	ragSettings config.RAGSettings

	docConcurrency int
}

// New builds an Ingestion Service over the given document source and KB
// store (ordinarily composites spanning every configured doc_source /
// kbstore), using backend to build convertors that need model access and
// to embed chunks once a convertor result is ready to store.
func New(docSource docsource.Source, kbStore kb.KBStore, backend runner.Backend, ragSettings config.RAGSettings) *Service {
	return &Service{
		docSource:      docSource,
		kbStore:        kbStore,
		backend:        backend,
		ragSettings:    ragSettings,
		docConcurrency: defaultDocConcurrency,
	}
}

// SetConcurrency overrides how many documents within one KB are converted
// concurrently. n <= 0 is treated as 1 (fully sequential).
func (s *Service) SetConcurrency(n int) {
	if n <= 0 {
		n = 1
	}
	s.mu.Lock()
	s.docConcurrency = n
	s.mu.Unlock()
}

// Start spawns the worker iff it isn't already active (§4.6 "start()
// spawns the worker iff not already active").
func (s *Service) Start() {
	stopCh, ok := s.beginRun()
	if !ok {
		return
	}
	go s.run(stopCh)
}

// RunSync runs one ingestion pass synchronously and returns its terminal
// result, iff the worker isn't already active. Exercises the same run()
// used by Start, for callers (tests, a one-shot CLI invocation) that want
// to wait for completion rather than poll Status.
func (s *Service) RunSync() Result {
	stopCh, ok := s.beginRun()
	if !ok {
		return ResultNone
	}
	s.run(stopCh)
	return s.Status().Result
}

func (s *Service) beginRun() (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil, false
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.status = Status{Active: true}
	return s.stopCh, true
}

// Stop signals the worker to stop at its next checkpoint by closing the stop
// channel it polls; a repeated Stop is a no-op. The active flag stays set
// until the worker returns, so Start does not spawn a second worker while
// the first is still winding down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Status returns a snapshot of the worker's current progress, readable at
// any time regardless of whether a run is active.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) isStopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (s *Service) updateStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

// run drives one full ingestion pass across every KB. It never returns an
// error to its caller (there is none); failures are folded into the status
// blob's error field (§4.6 "error handling").
func (s *Service) run(stopCh chan struct{}) {
	result := s.ingestAll(stopCh)

	s.mu.Lock()
	s.status.Result = result
	s.status.Active = false
	s.active = false
	s.mu.Unlock()
}

func (s *Service) ingestAll(stopCh chan struct{}) Result {
	kbs := s.kbStore.List()
	s.updateStatus(func(st *Status) { st.KBTotal = len(kbs) })

	sawError := false
	for i, entry := range kbs {
		if s.isStopped(stopCh) {
			return ResultCancelled
		}
		s.updateStatus(func(st *Status) {
			st.KBNum = i + 1
			st.KBName = entry.FullName
			st.DocNum = 0
			st.DocTotal = 0
			st.DocPath = ""
			st.Convertor = ""
		})

		if err := s.ingestKB(context.Background(), stopCh, entry); err != nil {
			if errors.Is(err, errCancelled) {
				return ResultCancelled
			}
			log.Errf("ingest: kb %s failed: %v", entry.FullName, err)
			sawError = true
		}
	}

	if sawError {
		s.updateStatus(func(st *Status) { st.Error = true })
	}
	return ResultDone
}

// ingestKB implements the per-KB loop (§4.6): resolve selection into a
// sorted unique file list, build the convertor chain, and for each document
// either reuse an already-complete conversion (aliasing the new path) or
// attempt each convertor in turn until one succeeds.
func (s *Service) ingestKB(ctx context.Context, stopCh chan struct{}, k *kb.KnowledgeBase) error {
	files, err := s.resolveSelection(k.Selection)
	if err != nil {
		return err
	}

	convertors, err := s.buildConvertors(k.Convertors)
	if err != nil {
		return err
	}

	s.updateStatus(func(st *Status) { st.DocTotal = len(files) })
	docCtx := convertor.DocumentContext{CharacterSets: k.Languages}

	s.mu.Lock()
	concurrency := s.docConcurrency
	s.mu.Unlock()

	var completed int
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for _, path := range files {
		path := path
		if s.isStopped(stopCh) {
			break
		}
		group.Go(func() error {
			err := s.ingestDocument(groupCtx, stopCh, k, path, docCtx, convertors)
			s.updateStatus(func(st *Status) {
				completed++
				st.DocNum = completed
				st.DocPath = path
			})
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if s.isStopped(stopCh) {
		return errCancelled
	}
	return nil
}

// ingestDocument handles one document: reuse an already-complete conversion
// by aliasing the new path, or try each convertor in turn. A document that
// cannot be resolved, checked, aliased or converted sets the status blob's
// error flag and the run goes on with the next one. Documents within a KB
// run one at a time unless SetConcurrency raised docConcurrency above 1.
func (s *Service) ingestDocument(ctx context.Context, stopCh chan struct{}, k *kb.KnowledgeBase, path string, docCtx convertor.DocumentContext, convertors []configuredConvertor) error {
	doc, err := s.docSource.Get(path)
	if err != nil {
		log.Errf("ingest: resolving %s: %v", path, err)
		s.updateStatus(func(st *Status) { st.Error = true })
		return nil
	}
	if doc == nil {
		return nil
	}

	full, err := k.HasFullDocument(ctx, doc, false)
	if err != nil {
		log.Errf("ingest: checking %s: %v", path, err)
		s.updateStatus(func(st *Status) { st.Error = true })
		return nil
	}
	if full {
		if err := k.AddDocPath(ctx, doc, false); err != nil {
			log.Errf("ingest: aliasing %s: %v", path, err)
			s.updateStatus(func(st *Status) { st.Error = true })
		}
		if err := s.docSource.UpdateCache(doc); err != nil {
			log.Errf("ingest: updating cache for %s: %v", path, err)
		}
		if err := k.UpdateChecked(doc); err != nil {
			log.Errf("ingest: marking %s checked: %v", path, err)
		}
		return nil
	}

	if err := s.convertAndStore(ctx, stopCh, k, doc, docCtx, convertors); err != nil {
		if errors.Is(err, errCancelled) {
			return err
		}
		log.Errf("ingest: converting %s: %v", path, err)
		s.updateStatus(func(st *Status) { st.Error = true })
	}
	if err := s.docSource.UpdateCache(doc); err != nil {
		log.Errf("ingest: updating cache for %s: %v", path, err)
	}
	return nil
}

// convertAndStore tries each convertor in turn (skipping image-only
// dialects on non-image documents), storing and caching on the first
// success (§4.6 "for each convertor ... on first success, store the
// result, update caches, and break"). When no convertor succeeds it returns
// the last convertor or store error, if any occurred.
func (s *Service) convertAndStore(ctx context.Context, stopCh chan struct{}, k *kb.KnowledgeBase, doc *docfile.DocumentFile, docCtx convertor.DocumentContext, convertors []configuredConvertor) error {
	var lastErr error
	for _, cc := range convertors {
		if s.isStopped(stopCh) {
			return errCancelled
		}
		if cc.imageOnly && !doc.ImageBased {
			continue
		}

		s.updateStatus(func(st *Status) { st.Convertor = cc.name })

		result, err := cc.convertor.Convert(doc, docCtx)
		if err != nil {
			log.Errf("ingest: %s conversion failed for %s: %v", cc.name, doc.FilePath, err)
			lastErr = err
			continue
		}
		if result == nil || len(result.Pages) == 0 {
			continue
		}

		if err := k.StoreConvertorResult(ctx, s.backend, result, s.ragSettings); err != nil {
			log.Errf("ingest: storing %s result for %s: %v", cc.name, doc.FilePath, err)
			lastErr = err
			continue
		}
		if err := k.UpdateChecked(doc); err != nil {
			log.Errf("ingest: marking %s checked: %v", doc.FilePath, err)
		}
		return nil
	}
	return lastErr
}

type configuredConvertor struct {
	name      string
	convertor convertor.Convertor
	imageOnly bool
}

// imageOnlyConversions names the dialects that operate on rasterized page
// images rather than extracted text (§4.6 "skipping image-only convertors
// on non-image docs").
var imageOnlyConversions = map[string]bool{
	"ocr":     true,
	"ocr_llm": true,
	"llm":     true,
}

func (s *Service) buildConvertors(configs []kb.ConvertorConfig) ([]configuredConvertor, error) {
	out := make([]configuredConvertor, 0, len(configs))
	for _, cfg := range configs {
		c, err := convertor.FromConfig(convertor.Config{Conversion: cfg.Conversion, Model: cfg.Model}, s.backend)
		if err != nil {
			return nil, err
		}
		out = append(out, configuredConvertor{
			name:      cfg.Conversion,
			convertor: c,
			imageOnly: imageOnlyConversions[cfg.Conversion],
		})
	}
	return out, nil
}

// KBStatus partitions name's resolved document set into processed and
// not-processed lists without running a full ingest (§4.6 [SUPPLEMENT],
// ported from knowledge_base_service.py's kb_status): every path matching
// the KB's selection patterns is resolved and checked via HasFullDocument,
// the same read-only check ingestDocument uses to decide whether a document
// needs reconverting.
func (s *Service) KBStatus(name string) (processed, notProcessed []string, err error) {
	k := s.kbStore.Get(name)
	if k == nil {
		return nil, nil, core.NewValidationError("name", name, "no such knowledge base")
	}

	files, err := s.resolveSelection(k.Selection)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	for _, path := range files {
		doc, err := s.docSource.Get(path)
		if err != nil {
			log.Errf("ingest: resolving %s: %v", path, err)
			continue
		}
		if doc == nil {
			continue
		}

		full, err := k.HasFullDocument(ctx, doc, false)
		if err != nil {
			log.Errf("ingest: checking %s: %v", path, err)
			continue
		}
		if full {
			processed = append(processed, path)
		} else {
			notProcessed = append(notProcessed, path)
		}
	}
	return processed, notProcessed, nil
}

// resolveSelection expands every selection pattern into a sorted, unique
// list of document paths (§4.6 "Resolve selection into a sorted unique file
// list").
func (s *Service) resolveSelection(selection []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pattern := range selection {
		items, err := s.docSource.List(pattern)
		if err != nil {
			return nil, err
		}
		for _, path := range docsource.ListFiles(items) {
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
