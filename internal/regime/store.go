package regime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tickwatch/pkg/model"
)

// Store holds the active thresholds and system status. In-process readers
// get an immutable snapshot via an atomic pointer, so a decision call can
// never observe a torn update; on disk the status artifact is replaced by
// a temp-file rename for the same reason.
type Store struct {
	path string
	log  zerolog.Logger
	cur  atomic.Pointer[model.SystemStatus]
}

// NewStore creates a store persisting the status artifact at path. If the
// file already exists its snapshot is loaded, so thresholds survive a
// restart; otherwise the LOW_VOLATILITY defaults apply until the first
// classification.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading status file: %w", err)
	}
	var st model.SystemStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing status file %s: %w", path, err)
	}
	s.cur.Store(&st)
	log.Info().
		Str("market_state", string(st.MarketState)).
		Time("last_updated", st.LastUpdated).
		Msg("loaded persisted regime status")
	return s, nil
}

// Active returns the current thresholds snapshot. Before the first
// classification this is the LOW_VOLATILITY set.
func (s *Store) Active() model.Thresholds {
	if st := s.cur.Load(); st != nil {
		return st.ActiveThresholds
	}
	return model.ThresholdsFor(model.RegimeLowVolatility)
}

// Status returns the last written snapshot, if any.
func (s *Store) Status() (model.SystemStatus, bool) {
	if st := s.cur.Load(); st != nil {
		return *st, true
	}
	return model.SystemStatus{}, false
}

// Update swaps in the thresholds for the given regime and persists the
// status snapshot. The in-memory swap happens only after the file write
// succeeds, so readers see the old state or the new one, never a mix.
func (s *Store) Update(state model.Regime, now time.Time) error {
	st := &model.SystemStatus{
		LastUpdated:      now,
		MarketState:      state,
		ActiveThresholds: model.ThresholdsFor(state),
	}
	if err := s.writeFile(st); err != nil {
		return err
	}
	s.cur.Store(st)
	return nil
}

func (s *Store) writeFile(st *model.SystemStatus) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("creating temp status file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing status file: %w", err)
	}
	return nil
}
