package feature

// Key identifies a feature within a Pipeline. It is also the key under which
// the feature publishes its instance.
type Key string

// Feature describes an installable cross-cutting component with a
// configuration of type C. Implementations are stateless descriptors; any
// per agent state is created inside Install and published with
// Pipeline.Provide.
type Feature[C any] interface {
	Key() Key
	DefaultConfig() C
	Install(cfg C, p *Pipeline) error
}

// Installer is a feature bound to its configuration, ready to be installed
// into a pipeline.
type Installer interface {
	Key() Key
	Install(p *Pipeline) error
}

type installer[C any] struct {
	feature   Feature[C]
	configure []func(c *C)
}

// Use binds f to its default configuration adjusted by configure.
//
//	p.Install(feature.Use(metrics.New(), func(c *metrics.Config) {
//		c.Registerer = reg
//	}))
func Use[C any](f Feature[C], configure ...func(c *C)) Installer {
	return installer[C]{feature: f, configure: configure}
}

func (i installer[C]) Key() Key { return i.feature.Key() }

func (i installer[C]) Install(p *Pipeline) error {
	cfg := i.feature.DefaultConfig()
	for _, fn := range i.configure {
		fn(&cfg)
	}
	return i.feature.Install(cfg, p)
}
