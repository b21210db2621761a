package presence

import (
	"sort"
	"time"

	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/protocol"
)

// Expiry multipliers applied to a participant's report interval.
const (
	DownAfter   = 2
	RemoveAfter = 5
)

// DefaultReportInterval is used when neither the registration nor the
// static entry carries an interval.
const DefaultReportInterval = 5 * time.Second

// Participant is one tracked host.
type Participant struct {
	ID                string
	ReportTopic       string
	AvailabilityTopic string
	ReportInterval    time.Duration
	LastSeen          time.Time

	// MarkedUp is the availability value last published (or adopted).
	MarkedUp bool

	// Static participants come from configuration and are never removed.
	Static bool
}

// StaticParticipant is a participant declared in configuration.
type StaticParticipant struct {
	ID             string
	ReportTopic    string
	ReportInterval time.Duration
}

// RegistrationResult tells the caller what to do after a registration.
type RegistrationResult struct {
	Participant Participant

	// MarkAvailable is set when "true" must be published to the
	// participant's availability topic. Record the outcome with SetMarked
	// once the publish succeeds.
	MarkAvailable bool

	// Subscribe is set when the report topic was not tracked before.
	Subscribe bool

	// Unsubscribe names a report topic superseded by this registration.
	Unsubscribe string

	// Merged is set when the registration refreshed a static participant.
	Merged bool
}

// ReportResult is returned by ObserveReport.
type ReportResult struct {
	Known         bool
	MarkAvailable bool
	Participant   Participant
}

// ActionKind identifies a sweep action.
type ActionKind int

const (
	// MarkDown means "false" must be published to the availability topic.
	MarkDown ActionKind = iota + 1
	// Remove means the report topic is no longer tracked and should be
	// unsubscribed. The retained availability value is left in place.
	Remove
)

// String returns the action name.
func (k ActionKind) String() string {
	switch k {
	case MarkDown:
		return "mark-down"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Action is one consequence of a sweep.
type Action struct {
	Kind        ActionKind
	Participant Participant
	SilentFor   time.Duration
}

// Registry is the in-memory participant table. It is not safe for
// concurrent use; the monitor drives it from the connection event loop.
type Registry struct {
	topics          protocol.Topics
	defaultInterval time.Duration

	byTopic map[string]*Participant
	byID    map[string]string
}

// New creates an empty registry. A non-positive defaultInterval selects
// DefaultReportInterval.
func New(topics protocol.Topics, defaultInterval time.Duration) *Registry {
	if defaultInterval <= 0 {
		defaultInterval = DefaultReportInterval
	}
	return &Registry{
		topics:          topics,
		defaultInterval: defaultInterval,
		byTopic:         make(map[string]*Participant),
		byID:            make(map[string]string),
	}
}

// DefaultInterval returns the interval applied to registrations without one.
func (r *Registry) DefaultInterval() time.Duration {
	return r.defaultInterval
}

// RegisterStatic adds a participant from configuration.
func (r *Registry) RegisterStatic(sp StaticParticipant) error {
	if sp.ID == "" || sp.ReportTopic == "" {
		return errors.Config("static participant needs both id and report topic",
			errors.WithMetadata("id", sp.ID),
			errors.WithMetadata("topic", sp.ReportTopic))
	}
	if sp.ReportInterval > protocol.MaxReportInterval {
		return errors.Config("static participant report interval is too large",
			errors.WithMetadata("id", sp.ID),
			errors.WithMetadata("interval", sp.ReportInterval.String()))
	}
	if _, ok := r.byID[sp.ID]; ok {
		return errors.Configf("static participant id %q declared twice", sp.ID)
	}
	if existing, ok := r.byTopic[sp.ReportTopic]; ok {
		return errors.Configf("report topic %q declared for both %q and %q",
			sp.ReportTopic, existing.ID, sp.ID)
	}

	r.insert(&Participant{
		ID:                sp.ID,
		ReportTopic:       sp.ReportTopic,
		AvailabilityTopic: r.topics.Availability(sp.ID),
		ReportInterval:    r.intervalOr(sp.ReportInterval),
		Static:            true,
	})
	return nil
}

// ObserveRegistration records a registration received at now.
//
// A registration for a static participant's report topic with the same id
// refreshes it and keeps the configured interval. A registration that
// would take a static participant's report topic or id is rejected with
// ErrCodeConflict. A dynamic participant re-registering under a new report
// topic replaces its old record.
func (r *Registry) ObserveRegistration(reg protocol.Registration, now time.Time) (RegistrationResult, error) {
	var res RegistrationResult
	if reg.ID == "" || reg.ReportTopic == "" {
		return res, errors.ProtocolParse("registration needs both id and report topic")
	}
	if reg.ReportInterval > protocol.MaxReportInterval {
		return res, errors.ProtocolParse("registration report interval is too large",
			errors.WithMetadata("id", reg.ID))
	}

	current := r.byTopic[reg.ReportTopic]
	if current != nil && current.Static {
		if current.ID != reg.ID {
			return res, conflict("report topic belongs to a configured participant", reg, current)
		}
		current.LastSeen = now
		res.MarkAvailable = !current.MarkedUp
		res.Merged = true
		res.Participant = *current
		return res, nil
	}

	var previous *Participant
	if topic, ok := r.byID[reg.ID]; ok && topic != reg.ReportTopic {
		previous = r.byTopic[topic]
		if previous.Static {
			return res, conflict("id belongs to a configured participant", reg, previous)
		}
	}

	interval := r.intervalOr(reg.ReportInterval)

	if current != nil && current.ID == reg.ID {
		current.ReportInterval = interval
		current.LastSeen = now
		res.MarkAvailable = !current.MarkedUp
		res.Participant = *current
		return res, nil
	}

	carriedUp := false
	if previous != nil {
		carriedUp = previous.MarkedUp
		r.remove(previous)
		res.Unsubscribe = previous.ReportTopic
	}
	if current != nil {
		// Another dynamic id reported on this topic before; it is superseded.
		r.remove(current)
	}

	p := &Participant{
		ID:                reg.ID,
		ReportTopic:       reg.ReportTopic,
		AvailabilityTopic: r.topics.Availability(reg.ID),
		ReportInterval:    interval,
		LastSeen:          now,
		MarkedUp:          carriedUp,
	}
	r.insert(p)

	res.MarkAvailable = !p.MarkedUp
	res.Subscribe = current == nil
	res.Participant = *p
	return res, nil
}

// ObserveReport records a report on topic at now. Unknown topics are ignored.
func (r *Registry) ObserveReport(topic string, now time.Time) ReportResult {
	p, ok := r.byTopic[topic]
	if !ok {
		return ReportResult{}
	}
	p.LastSeen = now
	return ReportResult{
		Known:         true,
		MarkAvailable: !p.MarkedUp,
		Participant:   *p,
	}
}

// Sweep evaluates every participant against now. Decisions are taken on a
// snapshot and applied afterwards: Remove deletes the record, MarkDown is
// left for the caller to commit with SetMarked after publishing, so a
// failed publish is retried on the next sweep. Actions are ordered by
// report topic.
func (r *Registry) Sweep(now time.Time) []Action {
	topics := make([]string, 0, len(r.byTopic))
	for topic := range r.byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	var actions []Action
	for _, topic := range topics {
		p := r.byTopic[topic]
		silent := now.Sub(p.LastSeen)
		if p.MarkedUp && silent > DownAfter*p.ReportInterval {
			actions = append(actions, Action{Kind: MarkDown, Participant: *p, SilentFor: silent})
		}
		if !p.Static && silent > RemoveAfter*p.ReportInterval {
			actions = append(actions, Action{Kind: Remove, Participant: *p, SilentFor: silent})
		}
	}

	for _, a := range actions {
		if a.Kind != Remove {
			continue
		}
		if p, ok := r.byTopic[a.Participant.ReportTopic]; ok {
			r.remove(p)
		}
	}
	return actions
}

// SetMarked records the availability value published for the participant
// tracked on reportTopic. Returns false if the topic is no longer tracked.
func (r *Registry) SetMarked(reportTopic string, up bool) bool {
	p, ok := r.byTopic[reportTopic]
	if !ok {
		return false
	}
	p.MarkedUp = up
	return true
}

// OwnsAvailabilityTopic reports whether topic is the availability topic of
// a tracked participant.
func (r *Registry) OwnsAvailabilityTopic(topic string) bool {
	_, ok := r.byAvailability(topic)
	return ok
}

// AdoptAvailability records a retained availability value observed on the
// broker without publishing anything. A participant that has never been
// seen gets now as its last-seen time, so it is marked down only after a
// full grace period of silence. Returns false for topics not owned by a
// tracked participant.
func (r *Registry) AdoptAvailability(topic string, up bool, now time.Time) bool {
	p, ok := r.byAvailability(topic)
	if !ok {
		return false
	}
	p.MarkedUp = up
	if p.LastSeen.IsZero() {
		p.LastSeen = now
	}
	return true
}

// Get returns the participant with the given id.
func (r *Registry) Get(id string) (Participant, bool) {
	topic, ok := r.byID[id]
	if !ok {
		return Participant{}, false
	}
	return *r.byTopic[topic], true
}

// List returns every participant, sorted by id.
func (r *Registry) List() []Participant {
	out := make([]Participant, 0, len(r.byTopic))
	for _, p := range r.byTopic {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReportTopics returns every tracked report topic, sorted.
func (r *Registry) ReportTopics() []string {
	out := make([]string, 0, len(r.byTopic))
	for topic := range r.byTopic {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	return len(r.byTopic)
}

// Counts returns the number of static, dynamic and marked-up participants.
func (r *Registry) Counts() (static, dynamic, up int) {
	for _, p := range r.byTopic {
		if p.Static {
			static++
		} else {
			dynamic++
		}
		if p.MarkedUp {
			up++
		}
	}
	return static, dynamic, up
}

func (r *Registry) intervalOr(d time.Duration) time.Duration {
	if d <= 0 {
		return r.defaultInterval
	}
	return d
}

func (r *Registry) insert(p *Participant) {
	r.byTopic[p.ReportTopic] = p
	r.byID[p.ID] = p.ReportTopic
}

func (r *Registry) remove(p *Participant) {
	delete(r.byTopic, p.ReportTopic)
	if r.byID[p.ID] == p.ReportTopic {
		delete(r.byID, p.ID)
	}
}

func (r *Registry) byAvailability(topic string) (*Participant, bool) {
	id, ok := r.topics.IsAvailability(topic)
	if !ok {
		return nil, false
	}
	reportTopic, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.byTopic[reportTopic], true
}

func conflict(msg string, reg protocol.Registration, existing *Participant) error {
	return errors.Conflict(msg,
		errors.WithMetadata("id", reg.ID),
		errors.WithMetadata("topic", reg.ReportTopic),
		errors.WithMetadata("existing_id", existing.ID),
		errors.WithMetadata("existing_topic", existing.ReportTopic))
}
