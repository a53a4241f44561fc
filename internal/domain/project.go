package domain

import "time"

// RenderStatus enumerates persisted render outcomes for a target.
type RenderStatus string

const (
	RenderStatusDone   RenderStatus = "done"
	RenderStatusFailed RenderStatus = "failed"
)

// RenderResult is the committed outcome of one render job for a target.
type RenderResult struct {
	TargetID    string       `json:"target_id"`
	Kind        string       `json:"kind"`
	Status      RenderStatus `json:"status"`
	AssetURL    string       `json:"asset_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	CompletedAt time.Time    `json:"completed_at"`
}

// CacheEntry maps a local asset fingerprint to a remote, time-limited URL.
type CacheEntry struct {
	RemoteURL       string    `json:"remote_url"`
	LastValidatedAt time.Time `json:"last_validated_at"`
}

// CostLedger accumulates provider spend for one project.
type CostLedger struct {
	TotalCents int64            `json:"total_cents"`
	ByKind     map[string]int64 `json:"by_kind,omitempty"`
}

// Add records spend for a job kind.
func (l *CostLedger) Add(kind string, cents int64) {
	if l.ByKind == nil {
		l.ByKind = make(map[string]int64)
	}
	l.ByKind[kind] += cents
	l.TotalCents += cents
}

// ProjectState is the authoritative document for one project. All concurrent
// mutations go through the render state store's per-project lock; readers
// load a fresh copy for display.
type ProjectState struct {
	ProjectID string                  `json:"project_id"`
	Title     string                  `json:"title"`
	Locale    string                  `json:"locale,omitempty"`
	Audio     *AudioAnalysis          `json:"audio,omitempty"`
	Cast      []CastMember            `json:"cast,omitempty"`
	Scenes    []Scene                 `json:"scenes,omitempty"`
	Shots     []Shot                  `json:"shots,omitempty"`
	Cache     map[string]CacheEntry   `json:"cache,omitempty"`
	Renders   map[string]RenderResult `json:"renders,omitempty"`
	Costs     CostLedger              `json:"costs"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// NewProjectState initializes an empty document.
func NewProjectState(projectID, title string, now time.Time) *ProjectState {
	return &ProjectState{
		ProjectID: projectID,
		Title:     title,
		Cache:     make(map[string]CacheEntry),
		Renders:   make(map[string]RenderResult),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CacheEntryFor returns the cache entry for an asset fingerprint, if present.
func (s *ProjectState) CacheEntryFor(key string) (CacheEntry, bool) {
	e, ok := s.Cache[key]
	return e, ok
}

// PutCacheEntry records a freshly uploaded remote URL for an asset fingerprint.
func (s *ProjectState) PutCacheEntry(key, remoteURL string, at time.Time) {
	if s.Cache == nil {
		s.Cache = make(map[string]CacheEntry)
	}
	s.Cache[key] = CacheEntry{RemoteURL: remoteURL, LastValidatedAt: at}
}

// TouchCacheEntry refreshes the validation timestamp after a successful probe.
func (s *ProjectState) TouchCacheEntry(key string, at time.Time) {
	e, ok := s.Cache[key]
	if !ok {
		return
	}
	e.LastValidatedAt = at
	s.Cache[key] = e
}

// PutRender stores the committed result for a target, replacing any earlier one.
func (s *ProjectState) PutRender(r RenderResult) {
	if s.Renders == nil {
		s.Renders = make(map[string]RenderResult)
	}
	s.Renders[r.TargetID] = r
}

// ShotByID finds a shot in the storyboard.
func (s *ProjectState) ShotByID(id string) (Shot, bool) {
	for _, sh := range s.Shots {
		if sh.ID == id {
			return sh, true
		}
	}
	return Shot{}, false
}

// CastByID finds a cast member.
func (s *ProjectState) CastByID(id string) (CastMember, bool) {
	for _, c := range s.Cast {
		if c.ID == id {
			return c, true
		}
	}
	return CastMember{}, false
}
