package leadimport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/pkg/distlock"
	"github.com/ignite/lead-import/internal/pkg/logger"
)

// LockFactory returns a distributed lock for key.
type LockFactory func(key string) distlock.DistLock

// Settings are the user-facing import defaults.
type Settings struct {
	DefaultStatus      string
	DefaultTemperature string
	FollowUpDays       int
	Policy             Policy
	PreviewRows        int
	MaxFileBytes       int64
	MaxReportedErrors  int
	ProgressEvery      int
	// CommitLockTTL is how long a commit lock lives between extensions.
	CommitLockTTL time.Duration
}

// Deps are the collaborators of the service. Sessions, Stores and Mapper are
// required; the rest switch features on when set.
type Deps struct {
	Sessions  SessionRepository
	Stores    LeadStoreFactory
	Mapper    *datanorm.Mapper
	Jobs      JobRepository
	Archive   UploadArchive
	Extractor Extractor
	Locks     LockFactory
}

// CommitOptions override Settings for one commit. Nil fields use the default.
type CommitOptions struct {
	SkipDuplicates *bool   `json:"skip_duplicates,omitempty"`
	UpdateExisting *bool   `json:"update_existing,omitempty"`
	Status         *string `json:"default_status,omitempty"`
	Temperature    *string `json:"default_temperature,omitempty"`
	FollowUpDays   *int    `json:"followup_days,omitempty"`
}

// Service implements the import wizard: upload, preview, remap, commit.
// Session state is reloaded from the SessionRepository on every call, so
// the service itself only tracks imports running in this process.
type Service struct {
	deps     Deps
	settings Settings
	reader   *datanorm.SourceReader
	now      func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewService(deps Deps, settings Settings) *Service {
	if settings.PreviewRows <= 0 {
		settings.PreviewRows = 20
	}
	if settings.ProgressEvery <= 0 {
		settings.ProgressEvery = DefaultProgressEvery
	}
	if settings.DefaultTemperature == "" {
		settings.DefaultTemperature = domain.TemperatureAuto
	}
	if deps.Mapper == nil {
		deps.Mapper = datanorm.NewMapper(datanorm.DefaultDictionary())
	}
	return &Service{
		deps:     deps,
		settings: settings,
		reader:   datanorm.NewSourceReader(),
		now:      time.Now,
		running:  make(map[string]context.CancelFunc),
	}
}

// Settings returns the effective defaults.
func (s *Service) Settings() Settings {
	return s.settings
}

// Mapper returns the column mapper used for new uploads.
func (s *Service) Mapper() *datanorm.Mapper {
	return s.deps.Mapper
}

// Upload decodes a file into a new session ready for preview. When the file
// is rejected the session is still saved, idle, with LastError set, and the
// read error is returned alongside it.
func (s *Service) Upload(ctx context.Context, orgID, filename, contentType string, data []byte) (*Session, error) {
	if s.settings.MaxFileBytes > 0 && int64(len(data)) > s.settings.MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}

	sess := NewSession(orgID)
	if err := s.load(ctx, sess, filename, contentType, data); err != nil {
		return sess, err
	}

	if s.deps.Archive != nil {
		key := uploadKey(orgID, sess.ID, filename)
		if err := s.deps.Archive.Put(ctx, key, data, contentType); err != nil {
			logger.Warn("archive upload failed", "session", sess.ID, "key", key, "error", err)
		} else {
			sess.ArchiveKey = key
		}
	}
	return sess, s.deps.Sessions.Save(ctx, sess)
}

// UploadFromArchive starts a session from a file already stored under key.
func (s *Service) UploadFromArchive(ctx context.Context, orgID, key string) (*Session, error) {
	if s.deps.Archive == nil {
		return nil, ErrNoStorage
	}
	data, err := s.deps.Archive.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch upload %s: %w", key, err)
	}
	if s.settings.MaxFileBytes > 0 && int64(len(data)) > s.settings.MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}

	sess := NewSession(orgID)
	if err := s.load(ctx, sess, path.Base(key), "", data); err != nil {
		return sess, err
	}
	sess.ArchiveKey = key
	return sess, s.deps.Sessions.Save(ctx, sess)
}

func (s *Service) load(ctx context.Context, sess *Session, filename, contentType string, data []byte) error {
	if err := sess.BeginParsing(filename); err != nil {
		return err
	}

	src, err := s.reader.Read(filename, contentType, data)
	if err != nil {
		logger.Warn("upload rejected", "session", sess.ID, "file", filename, "error", err)
		if ferr := sess.ParseFailed(err); ferr != nil {
			return ferr
		}
		if serr := s.deps.Sessions.Save(ctx, sess); serr != nil {
			logger.Error("save rejected session failed", "session", sess.ID, "error", serr)
		}
		return err
	}

	var mapping datanorm.ColumnMapping
	if src.Table != nil {
		mapping = s.deps.Mapper.AutoMap(src.Table.Header)
	}
	cands, excluded := datanorm.NormalizeSource(src, mapping)
	if err := sess.Loaded(src, mapping, cands, excluded); err != nil {
		return err
	}

	logger.Info("import session ready",
		"session", sess.ID, "org", sess.OrganizationID, "kind", src.Kind,
		"candidates", len(cands), "excluded", len(excluded), "malformed", src.MalformedCount)
	return nil
}

// UploadExtracted starts a session from extraction records, skipping file
// parsing and column mapping.
func (s *Service) UploadExtracted(ctx context.Context, orgID string, recs []datanorm.ExtractedContact) (*Session, error) {
	cands, excluded := datanorm.NormalizeExtracted(recs)

	sess := NewSession(orgID)
	if err := sess.LoadExtracted(cands, excluded); err != nil {
		return nil, err
	}
	logger.Info("extracted import session ready",
		"session", sess.ID, "org", orgID, "candidates", len(cands), "excluded", len(excluded))
	return sess, s.deps.Sessions.Save(ctx, sess)
}

// UploadScreenshot sends an image to the extraction service and starts a
// session from the returned records.
func (s *Service) UploadScreenshot(ctx context.Context, orgID string, image []byte, contentType string) (*Session, error) {
	if s.deps.Extractor == nil {
		return nil, ErrNoExtractor
	}
	if s.settings.MaxFileBytes > 0 && int64(len(image)) > s.settings.MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(image))
	}
	recs, err := s.deps.Extractor.Extract(ctx, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("extract contacts: %w", err)
	}
	return s.UploadExtracted(ctx, orgID, recs)
}

// Get returns a session of the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Session, error) {
	sess, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.OrganizationID != orgID {
		return nil, ErrSessionNotFound
	}
	if sess.State == StateImporting && !s.isRunning(id) {
		s.repairFinished(ctx, sess)
	}
	return sess, nil
}

// repairFinished moves a session stuck in Importing to Done when its outcome
// was stored. That only happens when the final session save failed.
func (s *Service) repairFinished(ctx context.Context, sess *Session) {
	outcome, err := s.deps.Sessions.LoadOutcome(ctx, sess.OrganizationID, sess.ID)
	if err != nil {
		return
	}
	if err := sess.Finish(*outcome); err != nil {
		return
	}
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		logger.Warn("repair finished session failed", "session", sess.ID, "error", err)
		return
	}
	logger.Info("finished session repaired from outcome", "session", sess.ID)
}

// Preview returns the user-facing summary of a session.
func (s *Service) Preview(sess *Session) Preview {
	return sess.Preview(s.settings.PreviewRows)
}

// Summarize bounds the error list of an outcome for display.
func (s *Service) Summarize(o domain.ImportOutcome) Summary {
	return Summarize(o, s.settings.MaxReportedErrors)
}

// Remap applies a mapping patch (field → header, nil to unassign) and
// re-normalizes the table. Patch entries are applied in canonical field
// order, so when two fields claim one header the later field wins.
func (s *Service) Remap(ctx context.Context, orgID, id string, patch map[datanorm.CanonicalField]*string) (*Session, error) {
	sess, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !sess.CanRemap() {
		return nil, fmt.Errorf("%w: session has no table to remap", ErrInvalidTransition)
	}

	mapping := sess.Mapping.Clone()
	fields := make([]datanorm.CanonicalField, 0, len(patch))
	for f := range patch {
		if !datanorm.IsCanonicalField(f) {
			return nil, &ValidationError{Field: string(f), Message: "unknown field"}
		}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fieldOrder(fields[i]) < fieldOrder(fields[j]) })

	for _, f := range fields {
		header := patch[f]
		if header == nil {
			mapping.Unassign(f)
			continue
		}
		if !hasHeader(sess.Table.Header, *header) {
			return nil, &ValidationError{Field: string(f), Message: fmt.Sprintf("unknown column %q", *header)}
		}
		mapping.Assign(f, *header)
	}

	src := &datanorm.Source{Kind: sess.Kind, Filename: sess.Filename, Table: sess.Table}
	cands, excluded := datanorm.NormalizeSource(src, mapping)
	if err := sess.Remap(mapping, cands, excluded); err != nil {
		return nil, err
	}
	return sess, s.deps.Sessions.Save(ctx, sess)
}

// Commit resolves and imports the session's candidates. Only one commit per
// organization runs at a time. The session always ends in Done with an
// outcome accounting for every candidate.
func (s *Service) Commit(ctx context.Context, orgID, id string, opts CommitOptions) (*domain.ImportOutcome, error) {
	sess, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(sess.State, StateImporting) {
		return nil, fmt.Errorf("%w: cannot commit in state %s", ErrInvalidTransition, sess.State)
	}

	if s.deps.Locks != nil {
		lock := s.deps.Locks(commitLockKey(orgID))
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire commit lock: %w", err)
		}
		if !acquired {
			return nil, ErrCommitInProgress
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release commit lock failed", "org", orgID, "error", err)
			}
		}()
		stop := s.keepLockAlive(ctx, lock, orgID)
		defer stop()

		// a commit that held the lock before us may have imported this session
		if sess, err = s.Get(ctx, orgID, id); err != nil {
			return nil, err
		}
	}

	if err := sess.BeginImport(); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.SaveIfState(ctx, sess, StatePreviewReady); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.track(id, cancel)
	defer s.untrack(id)
	defer cancel()

	startedAt := s.now().UTC()
	policy, defaults := s.commitSettings(opts)
	outcome := s.run(runCtx, sess, policy, defaults)

	// the caller may have gone away; the result must still be stored
	saveCtx := context.WithoutCancel(ctx)
	if err := sess.Finish(outcome); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.SaveOutcome(saveCtx, orgID, id, &outcome); err != nil {
		logger.Error("save outcome failed", "session", id, "error", err)
	}
	s.saveFinished(saveCtx, sess)
	s.saveProgress(saveCtx, &Progress{
		SessionID: id, State: StateDone, Total: len(sess.Candidates), Processed: outcome.Total(),
		Created: outcome.Created, Updated: outcome.Updated, Skipped: outcome.DuplicatesSkipped,
		Errors: len(outcome.Errors), UpdatedAt: s.now().UTC(),
	})
	s.recordJob(saveCtx, sess, outcome, startedAt)
	s.archiveProcessed(saveCtx, sess)

	logger.Info("import committed",
		"session", id, "org", orgID, "created", outcome.Created, "updated", outcome.Updated,
		"skipped", outcome.DuplicatesSkipped, "errors", len(outcome.Errors))
	return &outcome, nil
}

// keepLockAlive extends an expiring commit lock every third of its TTL until
// the returned stop func is called or ctx ends.
func (s *Service) keepLockAlive(ctx context.Context, lock distlock.DistLock, orgID string) (stop func()) {
	ext, ok := lock.(distlock.Extender)
	ttl := s.settings.CommitLockTTL
	if !ok || ttl <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := ext.Extend(ctx, ttl)
				if err == nil {
					continue
				}
				logger.Warn("extend commit lock failed", "org", orgID, "error", err)
				if errors.Is(err, distlock.ErrNotHeld) {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// saveFinished stores the done session, retrying once. The outcome is saved
// first, so Get can still repair a session whose final save was lost.
func (s *Service) saveFinished(ctx context.Context, sess *Session) {
	err := s.deps.Sessions.Save(ctx, sess)
	if err != nil {
		logger.Warn("save finished session failed, retrying", "session", sess.ID, "error", err)
		err = s.deps.Sessions.Save(ctx, sess)
	}
	if err != nil {
		logger.Error("save finished session failed", "session", sess.ID, "error", err)
	}
}

func (s *Service) run(ctx context.Context, sess *Session, policy Policy, defaults domain.LeadDefaults) domain.ImportOutcome {
	store := s.deps.Stores(sess.OrganizationID)

	idx, err := PrefetchIndex(ctx, store, sess.Candidates)
	if err != nil {
		msg := "duplicate lookup failed"
		switch {
		case IsUnavailable(err):
			msg = msgStoreUnavailable
		case ctx.Err() != nil:
			msg = msgCancelled
		}
		logger.Error("duplicate lookup failed, nothing imported", "session", sess.ID, "error", err)
		return FailAll(sess.Candidates, msg)
	}

	resolved := Resolve(sess.Candidates, idx, policy)

	im := NewImporter(store)
	im.ProgressEvery = s.settings.ProgressEvery
	im.OnProgress = func(p Progress) {
		p.SessionID = sess.ID
		p.State = StateImporting
		s.saveProgress(context.WithoutCancel(ctx), &p)
	}
	return im.Import(ctx, resolved, defaults)
}

func (s *Service) commitSettings(opts CommitOptions) (Policy, domain.LeadDefaults) {
	policy := s.settings.Policy
	if opts.SkipDuplicates != nil {
		policy.SkipDuplicates = *opts.SkipDuplicates
	}
	if opts.UpdateExisting != nil {
		policy.UpdateExisting = *opts.UpdateExisting
	}

	defaults := domain.LeadDefaults{Status: s.settings.DefaultStatus, Temperature: s.settings.DefaultTemperature}
	if opts.Status != nil {
		defaults.Status = *opts.Status
	}
	if opts.Temperature != nil {
		defaults.Temperature = *opts.Temperature
	}
	days := s.settings.FollowUpDays
	if opts.FollowUpDays != nil {
		days = *opts.FollowUpDays
	}
	if days > 0 {
		at := s.now().UTC().AddDate(0, 0, days)
		defaults.FollowUpAt = &at
	}
	return policy, defaults
}

func (s *Service) saveProgress(ctx context.Context, p *Progress) {
	if err := s.deps.Sessions.SaveProgress(ctx, p); err != nil {
		logger.Warn("save progress failed", "session", p.SessionID, "error", err)
	}
}

func (s *Service) recordJob(ctx context.Context, sess *Session, outcome domain.ImportOutcome, startedAt time.Time) {
	if s.deps.Jobs == nil {
		return
	}
	status := domain.ImportJobCompleted
	if len(sess.Candidates) > 0 && len(outcome.Errors) == len(sess.Candidates) {
		status = domain.ImportJobFailed
	}
	job := &domain.ImportJob{
		ID:             uuid.New().String(),
		OrganizationID: sess.OrganizationID,
		SessionID:      sess.ID,
		Filename:       sess.Filename,
		Source:         sess.Source,
		Status:         status,
		TotalRecords:   len(sess.Candidates),
		Outcome:        outcome,
		StartedAt:      startedAt,
		CompletedAt:    s.now().UTC(),
	}
	if err := s.deps.Jobs.SaveJob(ctx, job); err != nil {
		logger.Error("save import job failed", "session", sess.ID, "error", err)
	}
}

func (s *Service) archiveProcessed(ctx context.Context, sess *Session) {
	if s.deps.Archive == nil || sess.ArchiveKey == "" {
		return
	}
	if _, err := s.deps.Archive.MarkProcessed(ctx, sess.ArchiveKey); err != nil {
		logger.Warn("move upload to processed failed", "key", sess.ArchiveKey, "error", err)
	}
}

// Cancel stops a session. Before import it drops the session; during an
// import running in this process it stops the batch between records.
func (s *Service) Cancel(ctx context.Context, orgID, id string) error {
	sess, err := s.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if sess.State == StateImporting {
		if s.cancelRunning(id) {
			logger.Info("import cancel requested", "session", id)
			return nil
		}
		return fmt.Errorf("%w: import is running on another instance", ErrInvalidTransition)
	}
	if err := sess.Cancel(); err != nil {
		return err
	}
	return s.deps.Sessions.Delete(ctx, id)
}

// Progress returns the latest progress snapshot of a session.
func (s *Service) Progress(ctx context.Context, orgID, id string) (*Progress, error) {
	sess, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	p, err := s.deps.Sessions.LoadProgress(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return &Progress{SessionID: id, State: sess.State, Total: len(sess.Candidates)}, nil
	}
	return p, err
}

// Outcome returns the outcome of a committed session. Outcomes are kept
// longer than sessions.
func (s *Service) Outcome(ctx context.Context, orgID, id string) (*domain.ImportOutcome, error) {
	return s.deps.Sessions.LoadOutcome(ctx, orgID, id)
}

// Jobs lists the most recent committed imports of an organization.
func (s *Service) Jobs(ctx context.Context, orgID string, limit int) ([]domain.ImportJob, error) {
	if s.deps.Jobs == nil {
		return []domain.ImportJob{}, nil
	}
	return s.deps.Jobs.ListJobs(ctx, orgID, limit)
}

func (s *Service) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Service) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Service) cancelRunning(id string) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func commitLockKey(orgID string) string {
	return "leadimport:commit:" + orgID
}

func uploadKey(orgID, sessionID, filename string) string {
	return path.Join("uploads", orgID, sessionID, path.Base(filename))
}

func hasHeader(header []string, h string) bool {
	for _, candidate := range header {
		if candidate == h {
			return true
		}
	}
	return false
}

func fieldOrder(f datanorm.CanonicalField) int {
	for i, c := range datanorm.CanonicalFields {
		if c == f {
			return i
		}
	}
	return len(datanorm.CanonicalFields)
}
