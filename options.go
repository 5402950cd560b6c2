package mdnsd

import "time"

// config holds the tunables spec §6 names under "Configuration options".
type config struct {
	maxServices           int
	maxInterfaces         int
	actionQueueDepth      int
	tickInterval          time.Duration
	respondReverseQueries bool
	suppressOwnQueries    bool
	nameBufLen            int
	netifPollInterval     time.Duration
}

func defaultConfig() config {
	return config{
		maxServices:           16,
		maxInterfaces:         3,
		actionQueueDepth:      16,
		tickInterval:          100 * time.Millisecond,
		respondReverseQueries: false,
		suppressOwnQueries:    true,
		nameBufLen:            64,
		netifPollInterval:     2 * time.Second,
	}
}

// Option configures a Server at construction time.
type Option func(*config)

// WithMaxServices bounds the number of concurrently registered services
// (spec §6 `max_services`, default 16).
func WithMaxServices(n int) Option {
	return func(c *config) { c.maxServices = n }
}

// WithMaxInterfaces bounds the static interface table size (spec §6
// `max_interfaces`, default 3).
func WithMaxInterfaces(n int) Option {
	return func(c *config) { c.maxInterfaces = n }
}

// WithActionQueueDepth sets the bounded action queue's capacity (spec §6
// `action_queue_depth`, default 16).
func WithActionQueueDepth(n int) Option {
	return func(c *config) { c.actionQueueDepth = n }
}

// WithTickInterval sets the periodic timer period driving the scheduler
// and query-timeout sweep (spec §6 `timer_tick_ms`, default 100ms).
func WithTickInterval(d time.Duration) Option {
	return func(c *config) { c.tickInterval = d }
}

// WithReverseQueries controls whether records from peers whose owner name
// is in the in-addr.arpa/ip6.arpa domain are accepted and fed to collision
// detection, queries and browses (spec §6 `respond_reverse_queries`,
// default false). It does not enable answering: no reverse PTR answer is
// built for an in-addr.arpa/ip6.arpa question in either setting.
func WithReverseQueries(enabled bool) Option {
	return func(c *config) { c.respondReverseQueries = enabled }
}

// WithSuppressOwnQueries controls whether datagrams sourced from one of
// our own interface addresses are dropped before dispatch (spec §6
// `suppress_own_queries`, default true).
func WithSuppressOwnQueries(enabled bool) Option {
	return func(c *config) { c.suppressOwnQueries = enabled }
}

// WithNameBufLen bounds the length of any hostname, instance name, or
// delegated hostname the Server will accept (spec §6 `name_buf_len`,
// default 64 — the original fixed-size per-name buffer).
func WithNameBufLen(n int) Option {
	return func(c *config) { c.nameBufLen = n }
}

// WithNetifPollInterval sets how often the interface watcher re-polls the
// host's network interfaces for up/down/address changes.
func WithNetifPollInterval(d time.Duration) Option {
	return func(c *config) { c.netifPollInterval = d }
}
