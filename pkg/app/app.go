// Package app wires a loaded config.Config into the concrete components
// every ragocore command needs: a Backend fanning out over every
// configured llm_runner, a KB store fanning out over every configured
// kbstore, and a Document Source fanning out over every configured
// doc_source. This is the same composite-over-configured-backends shape
// the teacher's own client package builds for its four pillars, adapted
// here to front the four foundational services (runner, kb store, doc
// source, ingest service) this CLI drives directly.
package app

import (
	"fmt"
	"os"

	"github.com/ragocore/ragocore/pkg/chat"
	"github.com/ragocore/ragocore/pkg/config"
	"github.com/ragocore/ragocore/pkg/core"
	"github.com/ragocore/ragocore/pkg/docsource"
	"github.com/ragocore/ragocore/pkg/ingest"
	"github.com/ragocore/ragocore/pkg/kb"
	"github.com/ragocore/ragocore/pkg/runner"
)

// App bundles the components a command needs, all built from one loaded
// Config.
type App struct {
	Config    *config.Config
	Backend   runner.Backend
	KBStore   kb.KBStore
	DocSource docsource.Source
	Ingest    *ingest.Service
	Rooms     *chat.Register
}

// New builds an App from cfg: one Backend per configured llm_runner fanned
// out through a CompositeRunner, one KBStore per configured kbstore fanned
// out through a CompositeKBStore, and one Source per configured doc_source
// fanned out through a CompositeSource.
func New(cfg *config.Config) (*App, error) {
	backend, err := buildBackend(cfg.LLMRunners)
	if err != nil {
		return nil, err
	}

	kbStore, err := buildKBStore(cfg.KBStores)
	if err != nil {
		return nil, err
	}

	docSource, err := buildDocSource(cfg.DocSources)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		Backend:   backend,
		KBStore:   kbStore,
		DocSource: docSource,
		Ingest:    ingest.New(docSource, kbStore, backend, cfg.RAGSettings),
		Rooms:     chat.NewRegister(),
	}, nil
}

func buildBackend(runners []config.RunnerConfig) (runner.Backend, error) {
	backends := make([]runner.Backend, 0, len(runners))
	for _, r := range runners {
		switch r.Type {
		case "ollama":
			backends = append(backends, runner.NewOllama(r.Name, r.Host))
		case "openai":
			apiKey := ""
			if r.APIKeyEnv != "" {
				apiKey = os.Getenv(r.APIKeyEnv)
			}
			backends = append(backends, runner.NewOpenAI(r.Name, apiKey, r.Host))
		case "debug":
			backends = append(backends, runner.NewDebug(r.Name, nil, nil))
		default:
			return nil, core.NewConfigurationError("app", "llm_runners", fmt.Sprintf("unknown runner type %q", r.Type), nil)
		}
	}
	return runner.NewComposite(backends), nil
}

func buildKBStore(stores []config.KBStoreConfig) (kb.KBStore, error) {
	built := make([]kb.KBStore, 0, len(stores))
	for _, s := range stores {
		store := kb.NewFileKBStore(s)
		if err := store.Refresh(); err != nil {
			return nil, err
		}
		built = append(built, store)
	}
	return kb.NewCompositeKBStore(built), nil
}

func buildDocSource(sources []config.DocSourceConfig) (docsource.Source, error) {
	built := make([]docsource.Source, 0, len(sources))
	for _, s := range sources {
		src, err := docsource.NewLocalFS(s.Name, s.Root, "")
		if err != nil {
			return nil, err
		}
		built = append(built, src)
	}
	return docsource.NewComposite("", built), nil
}
