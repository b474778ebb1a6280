// Package registry tracks trained model checkpoints as immutable
// generations with an atomically advanced CURRENT pointer.
//
// Every registration writes a new numbered manifest blob under
// manifest/ and repoints CURRENT at it, so the full generation history
// stays readable and a crashed writer never leaves a half-updated
// registry. Stores with conditional writes (S3 If-None-Match, DynamoDB
// commit log) make the advance safe across processes; plain stores
// rely on their atomic-rename Put.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/exprvec/exprvec/blobstore"
	"github.com/exprvec/exprvec/codec"
)

const (
	// ManifestDir is the blob directory holding manifest generations.
	ManifestDir = "manifest"
	// ManifestPrefix names manifest blobs: manifest/MANIFEST-%06d.json.
	ManifestPrefix = "MANIFEST"
	// CurrentName is the pointer blob naming the active manifest.
	CurrentName = "CURRENT"
	// HistoryName is the training history blob of the latest run.
	HistoryName = "history.json"
	// JournalName is the epoch journal blob of the latest run.
	JournalName = "epochs.log"

	// CurrentVersion is the manifest schema version written by Save.
	CurrentVersion = 1
)

// ErrNoModel is returned when the registry has no registered
// generation to serve.
var ErrNoModel = errors.New("no model registered")

// Manifest is the registry state at one point in time.
type Manifest struct {
	Version int    `json:"version"`
	ID      uint64 `json:"id"`
	Model   string `json:"model,omitempty"`
	// Current is the generation id inference resolves by default.
	Current     uint64       `json:"current"`
	Generations []Generation `json:"generations,omitempty"`
}

// Generation describes one registered checkpoint. Blob names are
// relative to the registry directory.
type Generation struct {
	ID uint64 `json:"id"`
	// Checkpoint names the best-validation weights bundle.
	Checkpoint string `json:"checkpoint"`
	// FinalCheckpoint names the last-epoch weights bundle, when kept.
	FinalCheckpoint string `json:"final_checkpoint,omitempty"`
	History         string `json:"history,omitempty"`
	Journal         string `json:"journal,omitempty"`

	InputDim     int    `json:"input_dim"`
	LatentDim    int    `json:"latent_dim"`
	ModelVersion string `json:"model_version,omitempty"`

	BestValLoss float64   `json:"best_val_loss"`
	BestEpoch   int       `json:"best_epoch"`
	Epochs      int       `json:"num_epochs"`
	CreatedAt   time.Time `json:"created_at"`
}

// NextGenerationID returns the id the next registration will receive.
func (m *Manifest) NextGenerationID() uint64 {
	var max uint64
	for _, g := range m.Generations {
		if g.ID > max {
			max = g.ID
		}
	}
	return max + 1
}

// Generation returns the generation with the given id.
func (m *Manifest) Generation(id uint64) (Generation, bool) {
	for _, g := range m.Generations {
		if g.ID == id {
			return g, true
		}
	}
	return Generation{}, false
}

// CurrentGeneration returns the generation CURRENT points at.
func (m *Manifest) CurrentGeneration() (Generation, bool) {
	if m.Current == 0 {
		return Generation{}, false
	}
	return m.Generation(m.Current)
}

// CheckpointName returns the conventional blob name of a generation's
// best weights.
func CheckpointName(id uint64) string {
	return fmt.Sprintf("gen-%06d.ckpt", id)
}

// FinalCheckpointName returns the conventional blob name of a
// generation's last-epoch weights.
func FinalCheckpointName(id uint64) string {
	return fmt.Sprintf("gen-%06d-final.ckpt", id)
}

// conditionalPutter is implemented by stores with create-once writes.
type conditionalPutter interface {
	PutIfNotExists(ctx context.Context, name string, data []byte) error
}

// Store manages one model's registry inside a blob store directory.
type Store struct {
	store blobstore.BlobStore
	dir   string
	model string

	mu sync.Mutex
}

// NewStore creates a registry store rooted at dir, e.g.
// "models/default". An empty dir roots the registry at the store
// itself, for stores dedicated to a single model.
func NewStore(store blobstore.BlobStore, dir string) *Store {
	s := &Store{store: store, dir: dir}
	if dir != "" {
		s.model = path.Base(dir)
	}
	return s
}

// Path returns the store-wide blob name for a registry-relative name.
// Callers use it to read generation artifacts through the same store.
func (s *Store) Path(name string) string {
	return path.Join(s.dir, name)
}

// Load reads the manifest CURRENT points at. A registry with no
// commits yet loads as an empty manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*Manifest, error) {
	content, err := blobstore.ReadAll(ctx, s.store, s.Path(CurrentName))
	if errors.Is(err, blobstore.ErrNotFound) {
		return &Manifest{Version: CurrentVersion, Model: s.model}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", CurrentName, err)
	}

	name := string(content)
	data, err := blobstore.ReadAll(ctx, s.store, s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", name, err)
	}

	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", name, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}
	return &m, nil
}

// Save commits a manifest as the next numbered generation and advances
// CURRENT. The manifest blob is create-once where the store supports
// conditional writes, so two writers cannot silently overwrite the
// same commit.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, m)
}

func (s *Store) save(ctx context.Context, m *Manifest) error {
	m.Version = CurrentVersion
	if m.Model == "" {
		m.Model = s.model
	}
	m.ID++

	name := fmt.Sprintf("%s/%s-%06d.json", ManifestDir, ManifestPrefix, m.ID)
	data, err := codec.Default.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if cp, ok := s.store.(conditionalPutter); ok {
		if err := cp.PutIfNotExists(ctx, s.Path(name), data); err != nil {
			return fmt.Errorf("commit manifest %s: %w", name, err)
		}
	} else if err := s.store.Put(ctx, s.Path(name), data); err != nil {
		return fmt.Errorf("write manifest %s: %w", name, err)
	}

	if err := s.store.Put(ctx, s.Path(CurrentName), []byte(name)); err != nil {
		return fmt.Errorf("advance %s: %w", CurrentName, err)
	}
	return nil
}

// Register appends a generation and points CURRENT at it. A zero
// generation id is assigned the next free id, a zero creation time is
// stamped now. Returns the committed manifest.
func (s *Store) Register(ctx context.Context, gen Generation) (*Manifest, error) {
	if gen.Checkpoint == "" {
		return nil, errors.New("register generation: checkpoint name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if gen.ID == 0 {
		gen.ID = m.NextGenerationID()
	} else if _, exists := m.Generation(gen.ID); exists {
		return nil, fmt.Errorf("register generation: id %d already registered", gen.ID)
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now().UTC()
	}

	m.Generations = append(m.Generations, gen)
	m.Current = gen.ID
	if err := s.save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CurrentGeneration resolves the generation CURRENT points at.
// Returns ErrNoModel when nothing has been registered.
func (s *Store) CurrentGeneration(ctx context.Context) (Generation, error) {
	m, err := s.Load(ctx)
	if err != nil {
		return Generation{}, err
	}
	gen, ok := m.CurrentGeneration()
	if !ok {
		return Generation{}, ErrNoModel
	}
	return gen, nil
}
