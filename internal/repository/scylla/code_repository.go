package scylla

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"access-gate/internal/bucketing"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

// CodeRepository stores codes twice: once partitioned by contact hash for
// verification lookups, and once in a bucketed log for the admin view.
type CodeRepository struct {
	client  *ScyllaClient
	codec   model.FieldCodec
	buckets *bucketing.BucketingManager
}

func NewCodeRepository(client *ScyllaClient, codec model.FieldCodec, buckets *bucketing.BucketingManager) *CodeRepository {
	return &CodeRepository{
		client:  client,
		codec:   codec,
		buckets: buckets,
	}
}

// codeRow is a code as stored, with sensitive fields still encrypted.
type codeRow struct {
	ID            string
	CreatedAt     time.Time
	ContactHash   string
	CodeHash      string
	CodeSalt      string
	PepperVersion int
	CodeEnc       string
	ContactEnc    string
	ContactType   string
	Site          string
	IPEnc         string
	Used          bool
	UsedAt        time.Time
	UsedIPEnc     string
	IsAdmin       bool
}

func (r *CodeRepository) CreateCode(ctx context.Context, code *model.VerificationCode) error {
	code.CreatedAt = code.CreatedAt.UTC().Truncate(time.Millisecond)

	codeEnc, err := r.codec.Encrypt(ctx, code.Code)
	if err != nil {
		return fmt.Errorf("failed to encrypt code: %w", err)
	}
	contactEnc, err := r.codec.Encrypt(ctx, code.Contact)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact: %w", err)
	}
	ipEnc, err := r.codec.Encrypt(ctx, code.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to encrypt ip: %w", err)
	}

	applied, err := r.client.Query(ctx, r.client.Stmts.InsertCode,
		code.ContactHash, code.CreatedAt, code.ID, code.CodeHash, code.CodeSalt, code.PepperVersion,
		codeEnc, contactEnc, string(code.ContactType), code.Site, ipEnc, code.IsAdminContact,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to create access code",
			zap.String("code_id", code.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create access code: %w", err)
	}
	if !applied {
		return fmt.Errorf("access code %s already exists", code.ID)
	}

	bucket := r.buckets.LogBucket(code.ID)
	logQuery := r.client.Query(ctx, r.client.Stmts.InsertCodeLog,
		bucket, code.CreatedAt, code.ID, code.ContactHash, codeEnc, contactEnc,
		string(code.ContactType), code.Site, ipEnc, code.IsAdminContact,
	)
	if err := r.client.ExecuteWithRetry(ctx, logQuery, 2); err != nil {
		util.Error("Failed to write access code log",
			zap.String("code_id", code.ID),
			zap.Int("log_bucket", bucket),
			zap.Error(err))
		return fmt.Errorf("failed to write access code log: %w", err)
	}

	util.Debug("Access code stored",
		zap.String("code_id", code.ID),
		zap.String("site", code.Site),
		zap.Int("log_bucket", bucket))
	return nil
}

// FindUnusedCodes reads only the clustering range at or after since. since is
// floored to the millisecond precision of the timestamp column.
func (r *CodeRepository) FindUnusedCodes(ctx context.Context, contactHash string, since time.Time) ([]*model.VerificationCode, error) {
	since = since.UTC().Truncate(time.Millisecond)
	iter := r.client.Query(ctx, r.client.Stmts.SelectCodes, contactHash, since).Iter()

	var rows []codeRow
	var row codeRow
	for iter.Scan(&row.ID, &row.CreatedAt, &row.CodeHash, &row.CodeSalt, &row.PepperVersion, &row.CodeEnc,
		&row.ContactEnc, &row.ContactType, &row.Site, &row.IPEnc, &row.Used, &row.UsedAt, &row.UsedIPEnc, &row.IsAdmin) {
		if !row.Used {
			row.ContactHash = contactHash
			rows = append(rows, row)
		}
		row = codeRow{}
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to read access codes", zap.Error(err))
		return nil, fmt.Errorf("failed to read access codes: %w", err)
	}

	return r.decodeAll(ctx, rows)
}

// MarkCodeUsed is a lightweight transaction on the lookup table. The log
// table copy is updated afterwards and only logged on failure, since the
// code has already been consumed at that point.
func (r *CodeRepository) MarkCodeUsed(ctx context.Context, code *model.VerificationCode, usedAt time.Time, usedFromIP string) (bool, error) {
	usedAt = usedAt.UTC().Truncate(time.Millisecond)

	ipEnc, err := r.codec.Encrypt(ctx, usedFromIP)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt ip: %w", err)
	}

	applied, err := r.client.Query(ctx, r.client.Stmts.MarkCodeUsed,
		usedAt, ipEnc, code.ContactHash, code.CreatedAt, code.ID,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to mark access code used",
			zap.String("code_id", code.ID),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark access code used: %w", err)
	}
	if !applied {
		util.Debug("Access code already consumed", zap.String("code_id", code.ID))
		return false, nil
	}

	bucket := r.buckets.LogBucket(code.ID)
	logQuery := r.client.Query(ctx, r.client.Stmts.MarkCodeLogUsed,
		usedAt, ipEnc, bucket, code.CreatedAt, code.ID)
	if err := r.client.ExecuteWithRetry(ctx, logQuery, 2); err != nil {
		util.Error("Failed to update access code log",
			zap.String("code_id", code.ID),
			zap.Int("log_bucket", bucket),
			zap.Error(err))
	}

	return true, nil
}

// ListRecentCodes reads the newest rows of every log bucket in parallel and
// merges them.
func (r *CodeRepository) ListRecentCodes(ctx context.Context, limit int) ([]*model.VerificationCode, error) {
	buckets := r.buckets.AllLogBuckets()
	perBucket := make([][]codeRow, len(buckets))

	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			iter := r.client.Query(gctx, r.client.Stmts.SelectCodeLog, bucket, limit).Iter()
			var row codeRow
			for iter.Scan(&row.ID, &row.CreatedAt, &row.ContactHash, &row.CodeEnc, &row.ContactEnc, &row.ContactType,
				&row.Site, &row.IPEnc, &row.Used, &row.UsedAt, &row.UsedIPEnc, &row.IsAdmin) {
				perBucket[i] = append(perBucket[i], row)
				row = codeRow{}
			}
			if err := iter.Close(); err != nil {
				return fmt.Errorf("bucket %d: %w", bucket, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		util.Error("Failed to read access code log", zap.Error(err))
		return nil, fmt.Errorf("failed to read access code log: %w", err)
	}

	return r.decodeAll(ctx, mergeNewest(perBucket, limit))
}

// mergeNewest merges per-bucket rows into one list ordered like the
// clustering key (created_at DESC, code_id ASC) and keeps at most limit rows.
func mergeNewest(perBucket [][]codeRow, limit int) []codeRow {
	var merged []codeRow
	for _, rows := range perBucket {
		merged = append(merged, rows...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func (r *CodeRepository) CodeStats(ctx context.Context) (*model.CodeStats, error) {
	var (
		mu       sync.Mutex
		stats    model.CodeStats
		contacts = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, bucket := range r.buckets.AllLogBuckets() {
		bucket := bucket
		g.Go(func() error {
			var total, verified int
			seen := make(map[string]struct{})

			iter := r.client.Query(gctx, r.client.Stmts.SelectCodeLogAgg, bucket).Iter()
			var contactHash string
			var used bool
			for iter.Scan(&contactHash, &used) {
				total++
				if used {
					verified++
				}
				seen[contactHash] = struct{}{}
			}
			if err := iter.Close(); err != nil {
				return fmt.Errorf("bucket %d: %w", bucket, err)
			}

			mu.Lock()
			defer mu.Unlock()
			stats.TotalRequests += total
			stats.VerifiedAccess += verified
			for h := range seen {
				contacts[h] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		util.Error("Failed to aggregate access code log", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate access code log: %w", err)
	}

	stats.UniqueVisitors = len(contacts)
	return &stats, nil
}

func (r *CodeRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func (r *CodeRepository) decodeAll(ctx context.Context, rows []codeRow) ([]*model.VerificationCode, error) {
	out := make([]*model.VerificationCode, 0, len(rows))
	for _, row := range rows {
		code, err := r.decode(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

func (r *CodeRepository) decode(ctx context.Context, row codeRow) (*model.VerificationCode, error) {
	code := &model.VerificationCode{
		ID:             row.ID,
		CodeHash:       row.CodeHash,
		CodeSalt:       row.CodeSalt,
		PepperVersion:  row.PepperVersion,
		ContactHash:    row.ContactHash,
		ContactType:    model.ContactType(row.ContactType),
		Site:           row.Site,
		CreatedAt:      row.CreatedAt,
		Used:           row.Used,
		IsAdminContact: row.IsAdmin,
	}
	if !row.UsedAt.IsZero() {
		usedAt := row.UsedAt
		code.UsedAt = &usedAt
	}

	var err error
	if code.Code, err = r.codec.Decrypt(ctx, row.CodeEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt code %s: %w", row.ID, err)
	}
	if code.Contact, err = r.codec.Decrypt(ctx, row.ContactEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt contact for %s: %w", row.ID, err)
	}
	if code.IPAddress, err = r.codec.Decrypt(ctx, row.IPEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt ip for %s: %w", row.ID, err)
	}
	if code.UsedFromIP, err = r.codec.Decrypt(ctx, row.UsedIPEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt used ip for %s: %w", row.ID, err)
	}
	return code, nil
}

var _ model.CodeStore = (*CodeRepository)(nil)
