package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

const snapshotComponents = "accounts,activity_log"

// BlobStore is the durable external store for snapshot payloads, keyed by
// snapshot id.
type BlobStore interface {
	Put(id string, data []byte) error
	Get(id string) ([]byte, error)
}

// FSBlobStore keeps snapshot blobs as files under a directory.
type FSBlobStore struct {
	dir string
}

// NewFSBlobStore creates the directory if needed.
func NewFSBlobStore(dir string) (*FSBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSBlobStore{dir: dir}, nil
}

func (s *FSBlobStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Put writes the blob atomically via a temp file rename.
func (s *FSBlobStore) Put(id string, data []byte) error {
	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(id))
}

// Get returns the stored blob.
func (s *FSBlobStore) Get(id string) ([]byte, error) {
	return os.ReadFile(s.path(id))
}

// accountSnapshot couples one account with its full activity log.
type accountSnapshot struct {
	Account models.Account            `json:"account"`
	Entries []models.ActivityLogEntry `json:"entries"`
}

// snapshotPayload is the serialized export format.
type snapshotPayload struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Accounts  []accountSnapshot `json:"accounts"`
}

// SnapshotGateway exports the ledger to a blob store and restores it
// wholesale. Export is a per-account consistent read (an eventual snapshot,
// not a global point-in-time cut); Restore takes the exclusive gate so no
// balance mutation can race it.
type SnapshotGateway struct {
	db     *gorm.DB
	ledger *Ledger
	gate   *restoreGate
	store  BlobStore
}

// NewSnapshotGateway creates a gateway sharing the ledger's restore gate.
func NewSnapshotGateway(db *gorm.DB, ledger *Ledger, gate *restoreGate, store BlobStore) *SnapshotGateway {
	return &SnapshotGateway{db: db, ledger: ledger, gate: gate, store: store}
}

// Export serializes every account and its activity log to the blob store.
// Each account is read under its serialization lock so no account is captured
// mid-mutation; accounts may be captured at slightly different instants.
func (g *SnapshotGateway) Export(ctx context.Context, description string) (*models.SnapshotMetadata, error) {
	meta := models.SnapshotMetadata{
		ID:            uuid.NewString(),
		Description:   description,
		ComponentList: snapshotComponents,
		Status:        models.SnapshotStatusInProgress,
	}
	if err := g.db.WithContext(ctx).Create(&meta).Error; err != nil {
		return nil, err
	}

	payload, err := g.collect(ctx)
	if err != nil {
		g.markFailed(ctx, &meta, err)
		return &meta, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		g.markFailed(ctx, &meta, err)
		return &meta, err
	}
	if err := g.store.Put(meta.ID, data); err != nil {
		g.markFailed(ctx, &meta, err)
		return &meta, err
	}

	sum := sha256.Sum256(data)
	meta.SizeBytes = int64(len(data))
	meta.Checksum = hex.EncodeToString(sum[:])
	meta.Status = models.SnapshotStatusCompleted
	if err := g.db.WithContext(ctx).Model(&meta).Updates(map[string]interface{}{
		"size_bytes": meta.SizeBytes,
		"checksum":   meta.Checksum,
		"status":     meta.Status,
	}).Error; err != nil {
		return &meta, err
	}
	utils.Sugar.Infof("snapshot %s exported, %d accounts, %d bytes", meta.ID, len(payload.Accounts), meta.SizeBytes)
	return &meta, nil
}

func (g *SnapshotGateway) collect(ctx context.Context) (*snapshotPayload, error) {
	var ids []uint
	if err := g.db.WithContext(ctx).Model(&models.Account{}).Unscoped().
		Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}

	payload := &snapshotPayload{Version: 1, CreatedAt: time.Now()}
	for _, id := range ids {
		snap, err := g.collectAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		payload.Accounts = append(payload.Accounts, *snap)
	}
	return payload, nil
}

// collectAccount reads one account and its log under the account lock.
func (g *SnapshotGateway) collectAccount(ctx context.Context, id uint) (*accountSnapshot, error) {
	if err := g.ledger.lockAccounts(ctx, id); err != nil {
		return nil, err
	}
	defer g.ledger.locks.release(id)

	var snap accountSnapshot
	if err := g.db.WithContext(ctx).Unscoped().First(&snap.Account, id).Error; err != nil {
		return nil, err
	}
	if err := g.db.WithContext(ctx).Where("user_id = ?", id).
		Order("id").Find(&snap.Entries).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// Restore replaces all account and activity log state from a completed
// snapshot. Protected accounts keep their current state. Any failure leaves
// current state untouched; the replacement runs in one transaction.
func (g *SnapshotGateway) Restore(ctx context.Context, snapshotID string) error {
	var meta models.SnapshotMetadata
	err := g.db.WithContext(ctx).First(&meta, "id = ?", snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if meta.Status != models.SnapshotStatusCompleted {
		return fmt.Errorf("%w: snapshot %s is %s", ErrSnapshotCorrupt, snapshotID, meta.Status)
	}

	data, err := g.store.Get(snapshotID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != meta.Checksum {
		return ErrSnapshotCorrupt
	}
	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	g.gate.beginRestore()
	defer g.gate.endRestore()

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var protected []uint
		if err := tx.Model(&models.Account{}).Unscoped().
			Where("is_protected = ?", true).Pluck("user_id", &protected).Error; err != nil {
			return err
		}
		keep := make(map[uint]bool, len(protected))
		for _, id := range protected {
			keep[id] = true
		}

		if err := deleteExcept(tx, &models.Account{}, protected); err != nil {
			return err
		}
		if err := deleteExcept(tx, &models.ActivityLogEntry{}, protected); err != nil {
			return err
		}

		for _, snap := range payload.Accounts {
			if keep[snap.Account.UserID] {
				continue
			}
			account := snap.Account
			if err := tx.Create(&account).Error; err != nil {
				return err
			}
			for _, entry := range snap.Entries {
				e := entry
				e.ID = 0 // let ids reallocate; per-account order is preserved
				if err := tx.Create(&e).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	utils.InvalidateAllBalances()
	utils.Sugar.Infof("restored snapshot %s (%d accounts)", snapshotID, len(payload.Accounts))
	return nil
}

// List returns snapshot metadata, newest first.
func (g *SnapshotGateway) List(ctx context.Context) ([]models.SnapshotMetadata, error) {
	var metas []models.SnapshotMetadata
	err := g.db.WithContext(ctx).Order("created_at DESC").Find(&metas).Error
	return metas, err
}

func (g *SnapshotGateway) markFailed(ctx context.Context, meta *models.SnapshotMetadata, cause error) {
	utils.Sugar.Errorf("snapshot %s failed: %v", meta.ID, cause)
	meta.Status = models.SnapshotStatusFailed
	if err := g.db.WithContext(ctx).Model(meta).Update("status", meta.Status).Error; err != nil {
		utils.Sugar.Errorf("failed to mark snapshot %s failed: %v", meta.ID, err)
	}
}

func deleteExcept(tx *gorm.DB, model interface{}, keep []uint) error {
	q := tx.Unscoped()
	if len(keep) > 0 {
		q = q.Where("user_id NOT IN ?", keep)
	} else {
		q = q.Where("1 = 1")
	}
	return q.Delete(model).Error
}
